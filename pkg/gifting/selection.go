package gifting

import (
	"sort"
	"strings"
)

// SelectTrees picks up to required trees from candidates.
//
// Without diversification plots are exhausted in the order supplied. With diversification
// trees are interleaved round-robin starting from the plot with the most candidates. With
// habitat coverage, the first pass takes one tree per distinct habitat before any habitat repeats.
func SelectTrees(candidates []Tree, plotOrder []PlotID, required int, options ReserveOptions) []Tree {
	if required <= 0 || len(candidates) == 0 {
		return nil
	}
	ordered := orderCandidates(candidates, plotOrder, options.Diversify)

	picked := make([]Tree, 0, min(required, len(ordered)))
	taken := make(map[TreeID]struct{}, required)
	if options.BookAllHabits {
		seenHabitats := make(map[string]struct{})
		for _, tree := range ordered {
			if len(picked) == required {
				break
			}
			habitat := normalizeHabitat(tree.Habitat)
			if habitat == "" {
				continue
			}
			if _, seen := seenHabitats[habitat]; seen {
				continue
			}
			seenHabitats[habitat] = struct{}{}
			picked = append(picked, tree)
			taken[tree.ID] = struct{}{}
		}
	}
	for _, tree := range ordered {
		if len(picked) == required {
			break
		}
		if _, already := taken[tree.ID]; already {
			continue
		}
		picked = append(picked, tree)
		taken[tree.ID] = struct{}{}
	}
	return picked
}

func orderCandidates(candidates []Tree, plotOrder []PlotID, diversify bool) []Tree {
	groups := make(map[PlotID][]Tree)
	plots := make([]PlotID, 0, len(plotOrder))
	for _, plotID := range plotOrder {
		if _, seen := groups[plotID]; seen {
			continue
		}
		groups[plotID] = nil
		plots = append(plots, plotID)
	}
	for _, tree := range candidates {
		if _, known := groups[tree.PlotID]; !known {
			plots = append(plots, tree.PlotID)
		}
		groups[tree.PlotID] = append(groups[tree.PlotID], tree)
	}

	ordered := make([]Tree, 0, len(candidates))
	if !diversify {
		for _, plotID := range plots {
			ordered = append(ordered, groups[plotID]...)
		}
		return ordered
	}

	sort.SliceStable(plots, func(left, right int) bool {
		return len(groups[plots[left]]) > len(groups[plots[right]])
	})
	for round := 0; len(ordered) < len(candidates); round++ {
		for _, plotID := range plots {
			if round < len(groups[plotID]) {
				ordered = append(ordered, groups[plotID][round])
			}
		}
	}
	return ordered
}

func normalizeHabitat(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// DefaultReserveOptions derives the options AutoProcess uses for a request type.
func DefaultReserveOptions(requestType RequestType) ReserveOptions {
	return ReserveOptions{
		Diversify:       requestType == RequestTypeGiftCards || requestType == RequestTypePromotion,
		BookNonGiftable: requestType.BooksNonGiftable(),
	}
}
