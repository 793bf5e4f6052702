// Package matching ranks available items against caller preferences with an
// additive heuristic score, and serves recommendation and similar-item
// queries.
package matching

import (
	"context"
	"sort"
	"strings"

	"github.com/swapam/marketplace/internal/app/domain/item"
	"github.com/swapam/marketplace/internal/app/metrics"
	"github.com/swapam/marketplace/internal/app/storage"
	apperrors "github.com/swapam/marketplace/internal/errors"
	"github.com/swapam/marketplace/internal/logging"
)

// Scoring weights. The score starts at baseScore and is clamped at maxScore;
// keyword hits are uncapped before the clamp.
const (
	baseScore      = 50
	categoryBonus  = 30
	priceBonus     = 20
	conditionBonus = 15
	keywordBonus   = 10
	maxScore       = 100

	// candidateLimit caps how many of the newest matching items are scored.
	candidateLimit = 20

	recommendationLimit = 10
	similarLimit        = 6
)

// Preferences are the caller-supplied matching criteria. Zero-valued fields
// are ignored.
type Preferences struct {
	Category   item.Category
	Keywords   []string
	MaxPrice   *float64
	Conditions []item.Condition
}

// Match pairs an item with its relevance score.
type Match struct {
	Item  item.Item `json:"item"`
	Score int       `json:"score"`
}

// Service executes matching queries. All operations are read-only.
type Service struct {
	items storage.ItemStore
	log   *logging.Logger
}

// New constructs a matching service.
func New(items storage.ItemStore, log *logging.Logger) *Service {
	if log == nil {
		log = logging.NewDefault("matching")
	}
	return &Service{items: items, log: log}
}

// FindMatches filters available items against the preferences, scores the
// newest candidates, and returns them ranked by score. Ties keep the
// newest-first candidate order.
func (s *Service) FindMatches(ctx context.Context, excludeOwnerID string, prefs Preferences) ([]Match, error) {
	candidates, err := s.items.ListItems(ctx, storage.ItemFilter{
		Status:         item.StatusAvailable,
		ExcludeOwnerID: excludeOwnerID,
		Category:       prefs.Category,
		Conditions:     prefs.Conditions,
		MaxPrice:       prefs.MaxPrice,
		Keywords:       prefs.Keywords,
		Sort:           storage.SortNewest,
		Limit:          candidateLimit,
	})
	if err != nil {
		return nil, apperrors.Internal("query candidate items", err)
	}

	matches := make([]Match, 0, len(candidates))
	for _, it := range candidates {
		matches = append(matches, Match{Item: it, Score: Score(it, prefs)})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})

	metrics.RecordMatchQuery(len(matches))
	return matches, nil
}

// Score computes the 0-100 relevance of an item for the preferences.
func Score(it item.Item, prefs Preferences) int {
	score := baseScore

	if prefs.Category != "" && it.Category == prefs.Category {
		score += categoryBonus
	}
	if prefs.MaxPrice != nil && it.Price <= *prefs.MaxPrice {
		score += priceBonus
	}
	for _, c := range prefs.Conditions {
		if it.Condition == c {
			score += conditionBonus
			break
		}
	}

	haystack := strings.ToLower(it.Title + " " + it.Description)
	for _, kw := range prefs.Keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		if strings.Contains(haystack, kw) {
			score += keywordBonus
		}
	}

	if score > maxScore {
		score = maxScore
	}
	return score
}

// Recommendations returns up to ten available items from other owners in the
// categories the user already lists in, most viewed first.
func (s *Service) Recommendations(ctx context.Context, userID string) ([]item.Item, error) {
	own, err := s.items.ListItems(ctx, storage.ItemFilter{OwnerID: userID})
	if err != nil {
		return nil, apperrors.Internal("query own items", err)
	}

	seen := make(map[item.Category]bool)
	categories := make([]item.Category, 0)
	for _, it := range own {
		if !seen[it.Category] {
			seen[it.Category] = true
			categories = append(categories, it.Category)
		}
	}
	if len(categories) == 0 {
		return []item.Item{}, nil
	}

	recs, err := s.items.ListItems(ctx, storage.ItemFilter{
		Status:         item.StatusAvailable,
		ExcludeOwnerID: userID,
		Categories:     categories,
		Sort:           storage.SortViews,
		Limit:          recommendationLimit,
	})
	if err != nil {
		return nil, apperrors.Internal("query recommendations", err)
	}
	return recs, nil
}

// Similar returns up to six other available items in the same category as
// the given item, newest first.
func (s *Service) Similar(ctx context.Context, itemID string) ([]item.Item, error) {
	it, err := s.items.GetItem(ctx, itemID)
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, apperrors.NotFound("item", itemID)
		}
		return nil, apperrors.Internal("load item", err)
	}

	similar, err := s.items.ListItems(ctx, storage.ItemFilter{
		Status:    item.StatusAvailable,
		Category:  it.Category,
		ExcludeID: it.ID,
		Sort:      storage.SortNewest,
		Limit:     similarLimit,
	})
	if err != nil {
		return nil, apperrors.Internal("query similar items", err)
	}
	return similar, nil
}
