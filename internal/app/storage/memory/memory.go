// Package memory provides an in-memory implementation of the storage
// interfaces. It is safe for concurrent use and is primarily intended for
// tests and local development.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/swapam/marketplace/internal/app/domain/item"
	"github.com/swapam/marketplace/internal/app/domain/swap"
	"github.com/swapam/marketplace/internal/app/domain/user"
	"github.com/swapam/marketplace/internal/app/storage"
)

// Store is the in-memory backend.
type Store struct {
	mu      sync.RWMutex
	nextID  int64
	nextSeq int64
	items   map[string]item.Item
	swaps   map[string]swap.Swap
	users   map[string]user.User
	// seq records insertion order so queries with equal timestamps stay
	// deterministic.
	seq map[string]int64
}

var _ storage.ItemStore = (*Store)(nil)
var _ storage.SwapStore = (*Store)(nil)
var _ storage.UserStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		nextID: 1,
		items:  make(map[string]item.Item),
		swaps:  make(map[string]swap.Swap),
		users:  make(map[string]user.User),
		seq:    make(map[string]int64),
	}
}

func (s *Store) nextIDLocked() string {
	id := s.nextID
	s.nextID++
	return fmt.Sprintf("%d", id)
}

// ItemStore implementation ----------------------------------------------------

func (s *Store) CreateItem(_ context.Context, it item.Item) (item.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if it.ID == "" {
		it.ID = s.nextIDLocked()
	} else if _, exists := s.items[it.ID]; exists {
		return item.Item{}, fmt.Errorf("item %s already exists", it.ID)
	}

	now := time.Now().UTC()
	if it.CreatedAt.IsZero() {
		it.CreatedAt = now
	}
	it.UpdatedAt = now
	it.WantedItems = append([]string(nil), it.WantedItems...)
	it.Likes = append([]string(nil), it.Likes...)

	s.items[it.ID] = it
	s.nextSeq++
	s.seq[it.ID] = s.nextSeq
	return cloneItem(it), nil
}

func (s *Store) UpdateItem(_ context.Context, it item.Item) (item.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.items[it.ID]
	if !ok {
		return item.Item{}, &storage.NotFoundError{Resource: "item", ID: it.ID}
	}

	it.CreatedAt = original.CreatedAt
	it.UpdatedAt = time.Now().UTC()
	it.WantedItems = append([]string(nil), it.WantedItems...)
	it.Likes = append([]string(nil), it.Likes...)

	s.items[it.ID] = it
	return cloneItem(it), nil
}

func (s *Store) GetItem(_ context.Context, id string) (item.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	it, ok := s.items[id]
	if !ok {
		return item.Item{}, &storage.NotFoundError{Resource: "item", ID: id}
	}
	return cloneItem(it), nil
}

func (s *Store) ListItems(_ context.Context, filter storage.ItemFilter) ([]item.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]item.Item, 0)
	for _, it := range s.items {
		if matchesFilter(it, filter) {
			result = append(result, cloneItem(it))
		}
	}

	switch filter.Sort {
	case storage.SortViews:
		sort.SliceStable(result, func(i, j int) bool {
			if result[i].Views != result[j].Views {
				return result[i].Views > result[j].Views
			}
			return s.newerLocked(result[i], result[j])
		})
	default:
		sort.SliceStable(result, func(i, j int) bool {
			return s.newerLocked(result[i], result[j])
		})
	}

	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (s *Store) DeleteItem(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[id]; !ok {
		return &storage.NotFoundError{Resource: "item", ID: id}
	}
	delete(s.items, id)
	delete(s.seq, id)
	return nil
}

func (s *Store) SetItemStatus(_ context.Context, id string, status item.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.items[id]
	if !ok {
		return &storage.NotFoundError{Resource: "item", ID: id}
	}
	it.Status = status
	it.UpdatedAt = time.Now().UTC()
	s.items[id] = it
	return nil
}

func (s *Store) IncrementViews(_ context.Context, id string) (item.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.items[id]
	if !ok {
		return item.Item{}, &storage.NotFoundError{Resource: "item", ID: id}
	}
	it.Views++
	s.items[id] = it
	return cloneItem(it), nil
}

func (s *Store) newerLocked(a, b item.Item) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return s.seq[a.ID] > s.seq[b.ID]
}

func matchesFilter(it item.Item, filter storage.ItemFilter) bool {
	if filter.Status != "" && it.Status != filter.Status {
		return false
	}
	if filter.OwnerID != "" && it.OwnerID != filter.OwnerID {
		return false
	}
	if filter.ExcludeOwnerID != "" && it.OwnerID == filter.ExcludeOwnerID {
		return false
	}
	if filter.ExcludeID != "" && it.ID == filter.ExcludeID {
		return false
	}
	if filter.Category != "" && it.Category != filter.Category {
		return false
	}
	if len(filter.Categories) > 0 {
		found := false
		for _, c := range filter.Categories {
			if it.Category == c {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if len(filter.Conditions) > 0 {
		found := false
		for _, c := range filter.Conditions {
			if it.Condition == c {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if filter.MaxPrice != nil && it.Price > *filter.MaxPrice {
		return false
	}
	if len(filter.Keywords) > 0 {
		haystack := strings.ToLower(it.Title + " " + it.Description)
		found := false
		for _, kw := range filter.Keywords {
			if kw == "" {
				continue
			}
			if strings.Contains(haystack, strings.ToLower(kw)) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// SwapStore implementation ----------------------------------------------------

func (s *Store) CreateSwap(_ context.Context, sw swap.Swap) (swap.Swap, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sw.ID == "" {
		sw.ID = s.nextIDLocked()
	} else if _, exists := s.swaps[sw.ID]; exists {
		return swap.Swap{}, fmt.Errorf("swap %s already exists", sw.ID)
	}

	now := time.Now().UTC()
	if sw.CreatedAt.IsZero() {
		sw.CreatedAt = now
	}
	sw.UpdatedAt = now

	s.swaps[sw.ID] = sw
	s.nextSeq++
	s.seq[sw.ID] = s.nextSeq
	return sw, nil
}

func (s *Store) UpdateSwap(_ context.Context, sw swap.Swap) (swap.Swap, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.swaps[sw.ID]
	if !ok {
		return swap.Swap{}, &storage.NotFoundError{Resource: "swap", ID: sw.ID}
	}

	sw.CreatedAt = original.CreatedAt
	sw.UpdatedAt = time.Now().UTC()
	s.swaps[sw.ID] = sw
	return sw, nil
}

func (s *Store) GetSwap(_ context.Context, id string) (swap.Swap, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sw, ok := s.swaps[id]
	if !ok {
		return swap.Swap{}, &storage.NotFoundError{Resource: "swap", ID: id}
	}
	return sw, nil
}

func (s *Store) ListSwaps(_ context.Context, filter storage.SwapFilter) ([]swap.Swap, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]swap.Swap, 0)
	for _, sw := range s.swaps {
		if filter.RequesterID != "" && sw.RequesterID != filter.RequesterID {
			continue
		}
		if filter.OwnerID != "" && sw.OwnerID != filter.OwnerID {
			continue
		}
		if filter.ParticipantID != "" && !sw.Participant(filter.ParticipantID) {
			continue
		}
		if filter.ItemID != "" && sw.RequestedItemID != filter.ItemID && sw.OfferedItemID != filter.ItemID {
			continue
		}
		if len(filter.Statuses) > 0 {
			found := false
			for _, st := range filter.Statuses {
				if sw.Status == st {
					found = true
					break
				}
			}
			if !found {
				continue
			}
		}
		result = append(result, sw)
	}

	sort.SliceStable(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return s.seq[result[i].ID] > s.seq[result[j].ID]
	})
	return result, nil
}

// UserStore implementation ----------------------------------------------------

func (s *Store) EnsureUser(_ context.Context, u user.User) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u.ID == "" {
		u.ID = s.nextIDLocked()
	}
	if existing, ok := s.users[u.ID]; ok {
		if u.Name != "" {
			existing.Name = u.Name
		}
		if u.Email != "" {
			existing.Email = u.Email
		}
		existing.UpdatedAt = time.Now().UTC()
		s.users[u.ID] = existing
		return existing, nil
	}

	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now
	s.users[u.ID] = u
	return u, nil
}

func (s *Store) GetUser(_ context.Context, id string) (user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return user.User{}, &storage.NotFoundError{Resource: "user", ID: id}
	}
	return u, nil
}

func (s *Store) IncrementUserStats(_ context.Context, id string, points, swaps int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return &storage.NotFoundError{Resource: "user", ID: id}
	}
	u.CampusPoints += points
	u.TotalSwaps += swaps
	u.UpdatedAt = time.Now().UTC()
	s.users[id] = u
	return nil
}

// Helpers ---------------------------------------------------------------------

func cloneItem(it item.Item) item.Item {
	out := it
	out.WantedItems = append([]string(nil), it.WantedItems...)
	out.Likes = append([]string(nil), it.Likes...)
	return out
}
