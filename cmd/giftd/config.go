package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/giftgrove/internal/adminapi"
	"github.com/MarkoPoloResearchLab/giftgrove/internal/scheduler"
)

const (
	defaultDatabaseURL        = "sqlite:///tmp/giftgrove.db"
	defaultGRPCListenAddr     = ":7000"
	defaultAutoProcessTimeout = 30 * time.Second
	defaultReservationRetries = 3
)

// runtimeConfig aggregates every setting giftd reads from flags and the environment.
type runtimeConfig struct {
	DatabaseURL        string
	GRPCListenAddr     string
	AMQPURL            string
	RedisAddr          string
	ClaimLeaseTTL      time.Duration
	AutoProcessTimeout time.Duration
	ReservationRetries int
	SweepSchedule      string
	CardPollSchedule   string
	Admin              adminapi.Config
}

// Validate fills defaults and rejects values the service cannot run with.
func (cfg *runtimeConfig) Validate() error {
	cfg.DatabaseURL = defaultIfEmpty(cfg.DatabaseURL, defaultDatabaseURL)
	cfg.GRPCListenAddr = defaultIfEmpty(cfg.GRPCListenAddr, defaultGRPCListenAddr)
	cfg.AMQPURL = strings.TrimSpace(cfg.AMQPURL)
	cfg.RedisAddr = strings.TrimSpace(cfg.RedisAddr)
	if cfg.AutoProcessTimeout <= 0 {
		cfg.AutoProcessTimeout = defaultAutoProcessTimeout
	}
	if cfg.ReservationRetries <= 0 {
		cfg.ReservationRetries = defaultReservationRetries
	}
	if cfg.ClaimLeaseTTL < 0 {
		return fmt.Errorf("claim lease ttl must not be negative")
	}
	if cfg.ClaimLeaseTTL == 0 {
		// Nothing ever expires, so there is nothing to sweep.
		cfg.SweepSchedule = ""
	}
	if err := cfg.Admin.Validate(); err != nil {
		return fmt.Errorf("admin api: %w", err)
	}
	if cfg.Admin.ListenAddr == cfg.GRPCListenAddr {
		return fmt.Errorf("http and grpc listen addresses must differ")
	}
	return nil
}

func (cfg *runtimeConfig) schedulerConfig() scheduler.Config {
	return scheduler.Config{
		SweepSchedule:    cfg.SweepSchedule,
		CardPollSchedule: cfg.CardPollSchedule,
	}
}

func defaultIfEmpty(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return strings.TrimSpace(value)
}
