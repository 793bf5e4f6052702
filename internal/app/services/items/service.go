// Package items implements the item catalog: listing CRUD, the view
// counter, and likes.
package items

import (
	"context"
	"fmt"
	"strings"

	"github.com/swapam/marketplace/internal/app/domain/item"
	"github.com/swapam/marketplace/internal/app/domain/swap"
	"github.com/swapam/marketplace/internal/app/storage"
	apperrors "github.com/swapam/marketplace/internal/errors"
	"github.com/swapam/marketplace/internal/logging"
)

// Service manages item listings.
type Service struct {
	items storage.ItemStore
	swaps storage.SwapStore
	log   *logging.Logger
}

// New constructs an item service.
func New(items storage.ItemStore, swaps storage.SwapStore, log *logging.Logger) *Service {
	if log == nil {
		log = logging.NewDefault("items")
	}
	return &Service{items: items, swaps: swaps, log: log}
}

// CreateRequest carries the caller-supplied fields of a new listing.
type CreateRequest struct {
	Title        string
	Description  string
	Category     item.Category
	Condition    item.Condition
	ExchangeType item.ExchangeType
	Price        float64
	WantedItems  []string
	Location     string
}

func (r CreateRequest) validate() error {
	if strings.TrimSpace(r.Title) == "" {
		return apperrors.Validation("title is required")
	}
	if !r.Category.Valid() {
		return apperrors.Validation(fmt.Sprintf("unknown category %q", r.Category))
	}
	if !r.Condition.Valid() {
		return apperrors.Validation(fmt.Sprintf("unknown condition %q", r.Condition))
	}
	if !r.ExchangeType.Valid() {
		return apperrors.Validation(fmt.Sprintf("unknown exchange type %q", r.ExchangeType))
	}
	if r.Price < 0 {
		return apperrors.Validation("price cannot be negative")
	}
	return nil
}

// Create lists a new item for the owner. Price is kept only for items being
// sold.
func (s *Service) Create(ctx context.Context, ownerID string, req CreateRequest) (item.Item, error) {
	if strings.TrimSpace(ownerID) == "" {
		return item.Item{}, apperrors.Validation("owner id is required")
	}
	if err := req.validate(); err != nil {
		return item.Item{}, err
	}

	price := 0.0
	if req.ExchangeType == item.ExchangeSell {
		price = req.Price
	}

	created, err := s.items.CreateItem(ctx, item.Item{
		Title:        strings.TrimSpace(req.Title),
		Description:  req.Description,
		Category:     req.Category,
		Condition:    req.Condition,
		ExchangeType: req.ExchangeType,
		Price:        price,
		WantedItems:  req.WantedItems,
		Status:       item.StatusAvailable,
		Location:     req.Location,
		OwnerID:      ownerID,
	})
	if err != nil {
		return item.Item{}, apperrors.Internal("create item", err)
	}

	s.log.WithField("item_id", created.ID).
		WithField("owner_id", ownerID).
		WithField("category", string(created.Category)).
		Info("item listed")
	return created, nil
}

// Get returns an item and bumps its view counter.
func (s *Service) Get(ctx context.Context, id string) (item.Item, error) {
	it, err := s.items.IncrementViews(ctx, id)
	if err != nil {
		if storage.IsNotFound(err) {
			return item.Item{}, apperrors.NotFound("item", id)
		}
		return item.Item{}, apperrors.Internal("load item", err)
	}
	return it, nil
}

// ListFilter narrows the catalog listing.
type ListFilter struct {
	Category item.Category
	Status   item.Status
	OwnerID  string
	Search   string
	Limit    int
}

// List returns catalog items, newest first.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]item.Item, error) {
	var keywords []string
	if strings.TrimSpace(filter.Search) != "" {
		keywords = []string{strings.TrimSpace(filter.Search)}
	}

	result, err := s.items.ListItems(ctx, storage.ItemFilter{
		Category: filter.Category,
		Status:   filter.Status,
		OwnerID:  filter.OwnerID,
		Keywords: keywords,
		Sort:     storage.SortNewest,
		Limit:    filter.Limit,
	})
	if err != nil {
		return nil, apperrors.Internal("list items", err)
	}
	return result, nil
}

// UpdateRequest carries optional listing changes; nil fields are untouched.
type UpdateRequest struct {
	Title       *string
	Description *string
	Condition   *item.Condition
	Price       *float64
	WantedItems []string
	Location    *string
}

// Update applies owner edits to a listing.
func (s *Service) Update(ctx context.Context, id, actorID string, req UpdateRequest) (item.Item, error) {
	it, err := s.items.GetItem(ctx, id)
	if err != nil {
		if storage.IsNotFound(err) {
			return item.Item{}, apperrors.NotFound("item", id)
		}
		return item.Item{}, apperrors.Internal("load item", err)
	}
	if it.OwnerID != actorID {
		return item.Item{}, apperrors.Forbidden("only the owner can update an item")
	}

	if req.Title != nil {
		if strings.TrimSpace(*req.Title) == "" {
			return item.Item{}, apperrors.Validation("title cannot be empty")
		}
		it.Title = strings.TrimSpace(*req.Title)
	}
	if req.Description != nil {
		it.Description = *req.Description
	}
	if req.Condition != nil {
		if !req.Condition.Valid() {
			return item.Item{}, apperrors.Validation(fmt.Sprintf("unknown condition %q", *req.Condition))
		}
		it.Condition = *req.Condition
	}
	if req.Price != nil {
		if *req.Price < 0 {
			return item.Item{}, apperrors.Validation("price cannot be negative")
		}
		if it.ExchangeType == item.ExchangeSell {
			it.Price = *req.Price
		}
	}
	if req.WantedItems != nil {
		it.WantedItems = req.WantedItems
	}
	if req.Location != nil {
		it.Location = *req.Location
	}

	updated, err := s.items.UpdateItem(ctx, it)
	if err != nil {
		return item.Item{}, apperrors.Internal("update item", err)
	}
	return updated, nil
}

// Delete removes a listing. The owner cannot delete an item that a pending
// or accepted swap still references.
func (s *Service) Delete(ctx context.Context, id, actorID string) error {
	it, err := s.items.GetItem(ctx, id)
	if err != nil {
		if storage.IsNotFound(err) {
			return apperrors.NotFound("item", id)
		}
		return apperrors.Internal("load item", err)
	}
	if it.OwnerID != actorID {
		return apperrors.Forbidden("only the owner can delete an item")
	}

	active, err := s.swaps.ListSwaps(ctx, storage.SwapFilter{
		ItemID:   id,
		Statuses: []swap.Status{swap.StatusPending, swap.StatusAccepted},
	})
	if err != nil {
		return apperrors.Internal("check open swaps", err)
	}
	if len(active) > 0 {
		return apperrors.InvalidOperation("cannot delete an item with open swap offers")
	}

	if err := s.items.DeleteItem(ctx, id); err != nil {
		return apperrors.Internal("delete item", err)
	}

	s.log.WithField("item_id", id).WithField("owner_id", actorID).Info("item deleted")
	return nil
}

// Like toggles the actor's like on an item and returns the updated item.
func (s *Service) Like(ctx context.Context, id, actorID string) (item.Item, error) {
	it, err := s.items.GetItem(ctx, id)
	if err != nil {
		if storage.IsNotFound(err) {
			return item.Item{}, apperrors.NotFound("item", id)
		}
		return item.Item{}, apperrors.Internal("load item", err)
	}

	if it.LikedBy(actorID) {
		likes := make([]string, 0, len(it.Likes))
		for _, uid := range it.Likes {
			if uid != actorID {
				likes = append(likes, uid)
			}
		}
		it.Likes = likes
	} else {
		it.Likes = append(it.Likes, actorID)
	}

	updated, err := s.items.UpdateItem(ctx, it)
	if err != nil {
		return item.Item{}, apperrors.Internal("update item likes", err)
	}
	return updated, nil
}
