// Package storage declares the persistence interfaces consumed by the
// marketplace services. Every operation is a direct query; no caching or
// cross-document transaction is provided, and concurrent writes resolve
// last-write-wins in the backing store.
package storage

import (
	"context"
	"errors"

	"github.com/swapam/marketplace/internal/app/domain/item"
	"github.com/swapam/marketplace/internal/app/domain/swap"
	"github.com/swapam/marketplace/internal/app/domain/user"
)

// Sort orders for item queries.
type ItemSort string

const (
	// SortNewest orders by creation time descending.
	SortNewest ItemSort = "newest"
	// SortViews orders by view count descending, then creation time
	// descending.
	SortViews ItemSort = "views"
)

// ItemFilter narrows an item listing query. Zero-valued fields are ignored.
type ItemFilter struct {
	Status         item.Status
	OwnerID        string
	ExcludeOwnerID string
	ExcludeID      string
	Category       item.Category
	Categories     []item.Category
	Conditions     []item.Condition
	MaxPrice       *float64
	// Keywords match case-insensitively as substrings of title or
	// description; any single hit qualifies the item.
	Keywords []string
	Sort     ItemSort
	Limit    int
}

// ItemStore persists item listings.
type ItemStore interface {
	CreateItem(ctx context.Context, it item.Item) (item.Item, error)
	UpdateItem(ctx context.Context, it item.Item) (item.Item, error)
	GetItem(ctx context.Context, id string) (item.Item, error)
	ListItems(ctx context.Context, filter ItemFilter) ([]item.Item, error)
	DeleteItem(ctx context.Context, id string) error
	// SetItemStatus overwrites only the status field. The swap lifecycle
	// uses it for its multi-document side effects.
	SetItemStatus(ctx context.Context, id string, status item.Status) error
	// IncrementViews bumps the view counter and returns the updated item.
	IncrementViews(ctx context.Context, id string) (item.Item, error)
}

// SwapFilter narrows a swap listing query. Zero-valued fields are ignored.
type SwapFilter struct {
	RequesterID   string
	OwnerID       string
	ParticipantID string
	ItemID        string
	Statuses      []swap.Status
}

// SwapStore persists swap offers.
type SwapStore interface {
	CreateSwap(ctx context.Context, sw swap.Swap) (swap.Swap, error)
	UpdateSwap(ctx context.Context, sw swap.Swap) (swap.Swap, error)
	GetSwap(ctx context.Context, id string) (swap.Swap, error)
	ListSwaps(ctx context.Context, filter SwapFilter) ([]swap.Swap, error)
}

// UserStore persists the marketplace view of users.
type UserStore interface {
	EnsureUser(ctx context.Context, u user.User) (user.User, error)
	GetUser(ctx context.Context, id string) (user.User, error)
	// IncrementUserStats atomically adds to the campus points and total
	// swaps counters.
	IncrementUserStats(ctx context.Context, id string, points, swaps int64) error
}

// NotFoundError is returned by stores when an id does not resolve, so
// services can translate it into the API taxonomy.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return e.Resource + " " + e.ID + " not found"
}

// IsNotFound reports whether err is a store-level not-found error.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
