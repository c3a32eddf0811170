package adminapi

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/giftgrove/internal/listing"
	"github.com/MarkoPoloResearchLab/giftgrove/pkg/gifting"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/tyemirov/tauth/pkg/sessionvalidator"
	"go.uber.org/zap"
)

const (
	claimsContextKey    = "auth_claims"
	callbackTokenHeader = "X-Callback-Token"
	idempotencyHeader   = "Idempotency-Key"
)

// Run boots the admin HTTP API and blocks until ctx is cancelled.
func Run(ctx context.Context, cfg Config, giftingService *gifting.Service, logger *zap.Logger) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	handler, err := newHTTPHandler(cfg, giftingService, logger)
	if err != nil {
		return err
	}
	sessionValidator, err := sessionvalidator.New(sessionvalidator.Config{
		SigningKey: []byte(cfg.SessionSigningKey),
		Issuer:     cfg.SessionIssuer,
		CookieName: cfg.SessionCookieName,
	})
	if err != nil {
		return fmt.Errorf("session validator: %w", err)
	}

	router := setupRouter(cfg, handler, sessionValidator)

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("admin api listening", zap.String("addr", cfg.ListenAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.Warn("server shutdown error", zap.Error(shutdownErr))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func setupRouter(cfg Config, handler *httpHandler, sessionValidator *sessionvalidator.Validator) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Origin", "Accept", idempotencyHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	api.Use(sessionValidator.GinMiddleware(claimsContextKey))
	api.Use(requireSession)
	api.Use(handler.invalidateListingOnWrite)

	api.GET("/session", handler.handleSession)
	api.GET("/requests", handler.handleListRequests)
	api.POST("/requests", handler.handleCreateRequest)
	api.GET("/requests/:id", handler.handleGetRequest)
	api.PATCH("/requests/:id", handler.handleUpdateRequest)
	api.DELETE("/requests/:id", handler.handleDeleteRequest)
	api.PUT("/requests/:id/tags", handler.handleSetTags)
	api.POST("/requests/:id/clone", handler.handleCloneRequest)
	api.POST("/requests/:id/pick", handler.handlePick)
	api.DELETE("/requests/:id/pick", handler.handleUnpick)
	api.POST("/requests/:id/reservations", handler.handleReserve)
	api.DELETE("/requests/:id/reservations", handler.handleUnreserve)
	api.GET("/requests/:id/recipients", handler.handleListRecipients)
	api.POST("/requests/:id/recipients", handler.handleAddRecipients)
	api.PATCH("/requests/:id/recipients/:recipientID", handler.handleUpdateRecipient)
	api.DELETE("/requests/:id/recipients/:recipientID", handler.handleDeleteRecipient)
	api.POST("/requests/:id/assign", handler.handleAssign)
	api.POST("/requests/:id/auto-process", handler.handleAutoProcess)
	api.POST("/requests/:id/emails", handler.handleSendEmails)
	api.POST("/requests/:id/cards", handler.handleEnqueueCards)
	api.POST("/requests/:id/payment", handler.handleAttachPayment)
	api.POST("/requests/:id/albums", handler.handleAttachAlbum)
	api.GET("/card-jobs/:jobID", handler.handleGetCardJob)

	if cfg.CallbackToken != "" {
		callbacks := router.Group("/callbacks")
		callbacks.Use(requireCallbackToken(cfg.CallbackToken))
		callbacks.Use(handler.invalidateListingOnWrite)
		callbacks.POST("/card-jobs/:jobID", handler.handleCardCallback)
		callbacks.POST("/payments/:paymentID/confirm", handler.handlePaymentConfirmed)
	}

	return router
}

type httpHandler struct {
	logger         *zap.Logger
	giftingService *gifting.Service
	listing        *listing.Cache
	validate       *validator.Validate
	cfg            Config
}

func newHTTPHandler(cfg Config, giftingService *gifting.Service, logger *zap.Logger) (*httpHandler, error) {
	if giftingService == nil {
		return nil, fmt.Errorf("gifting service is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	listingCache, err := listing.New(giftingService, cfg.ListCacheSize)
	if err != nil {
		return nil, fmt.Errorf("listing cache: %w", err)
	}
	return &httpHandler{
		logger:         logger,
		giftingService: giftingService,
		listing:        listingCache,
		validate:       newPayloadValidator(),
		cfg:            cfg,
	}, nil
}

// newPayloadValidator reports field errors by their JSON names.
func newPayloadValidator() *validator.Validate {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return validate
}

// invalidateListingOnWrite drops cached listing positions after any mutating call.
func (handler *httpHandler) invalidateListingOnWrite(ctx *gin.Context) {
	ctx.Next()
	if ctx.Request.Method != http.MethodGet && ctx.Request.Method != http.MethodOptions {
		handler.listing.Invalidate()
	}
}

func requireSession(ctx *gin.Context) {
	if getClaims(ctx) == nil {
		ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse(errorUnauthorized, "missing session"))
		return
	}
	ctx.Next()
}

func requireCallbackToken(expected string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		presented := ctx.GetHeader(callbackTokenHeader)
		if subtle.ConstantTimeCompare([]byte(presented), []byte(expected)) != 1 {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse(errorUnauthorized, "invalid callback token"))
			return
		}
		ctx.Next()
	}
}

func (handler *httpHandler) requestContext(ctx *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx.Request.Context(), handler.cfg.RequestTimeout)
}

func (handler *httpHandler) respondError(ctx *gin.Context, err error) {
	failure := mapToHTTPError(err)
	if failure.status >= http.StatusInternalServerError {
		handler.logger.Error("admin api request failed",
			zap.String("method", ctx.Request.Method),
			zap.String("path", ctx.FullPath()),
			zap.Error(err))
	}
	ctx.JSON(failure.status, failure.body())
}

// bindPayload decodes and validates a JSON body, writing the failure response itself.
func (handler *httpHandler) bindPayload(ctx *gin.Context, payload any, optional bool) bool {
	if err := ctx.ShouldBindJSON(payload); err != nil {
		if !optional || !errors.Is(err, io.EOF) {
			failure := payloadError(err)
			ctx.JSON(failure.status, failure.body())
			return false
		}
	}
	if err := handler.validate.Struct(payload); err != nil {
		failure := payloadError(err)
		ctx.JSON(failure.status, failure.body())
		return false
	}
	return true
}

func (handler *httpHandler) requestIDParam(ctx *gin.Context) (gifting.RequestID, bool) {
	requestID, err := gifting.NewRequestID(ctx.Param("id"))
	if err != nil {
		handler.respondError(ctx, err)
		return gifting.RequestID{}, false
	}
	return requestID, true
}

// staffID resolves the acting staff member from the session claims.
func (handler *httpHandler) staffID(ctx *gin.Context) (gifting.StaffID, bool) {
	claims := getClaims(ctx)
	if claims == nil {
		ctx.JSON(http.StatusUnauthorized, errorResponse(errorUnauthorized, "missing session"))
		return gifting.StaffID{}, false
	}
	raw := claims.GetUserID()
	if strings.TrimSpace(raw) == "" {
		raw = claims.GetUserEmail()
	}
	holder, err := gifting.NewStaffID(raw)
	if err != nil {
		ctx.JSON(http.StatusUnauthorized, errorResponse(errorUnauthorized, "session carries no user"))
		return gifting.StaffID{}, false
	}
	return holder, true
}

func getClaims(ctx *gin.Context) *sessionvalidator.Claims {
	claimsValue, ok := ctx.Get(claimsContextKey)
	if !ok {
		return nil
	}
	claims, _ := claimsValue.(*sessionvalidator.Claims)
	return claims
}
