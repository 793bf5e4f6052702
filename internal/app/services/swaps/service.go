// Package swaps implements the swap-offer lifecycle: creation, status
// transitions, their side effects on items and user statistics, and
// post-completion ratings.
package swaps

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/swapam/marketplace/internal/app/domain/item"
	"github.com/swapam/marketplace/internal/app/domain/swap"
	"github.com/swapam/marketplace/internal/app/domain/user"
	"github.com/swapam/marketplace/internal/app/metrics"
	"github.com/swapam/marketplace/internal/app/storage"
	apperrors "github.com/swapam/marketplace/internal/errors"
	"github.com/swapam/marketplace/internal/logging"
)

// Service manages swap offers and their side effects.
type Service struct {
	items storage.ItemStore
	swaps storage.SwapStore
	users storage.UserStore
	log   *logging.Logger
}

// New constructs a swap service.
func New(items storage.ItemStore, swaps storage.SwapStore, users storage.UserStore, log *logging.Logger) *Service {
	if log == nil {
		log = logging.NewDefault("swaps")
	}
	return &Service{items: items, swaps: swaps, users: users, log: log}
}

// CreateRequest carries the caller-supplied fields of a new swap offer.
type CreateRequest struct {
	RequestedItemID string
	OfferedItemID   string
	OfferType       swap.OfferType
	OfferAmount     float64
	Message         string
}

// Create opens a new pending swap offer against the requested item.
func (s *Service) Create(ctx context.Context, requesterID string, req CreateRequest) (swap.Swap, error) {
	if strings.TrimSpace(requesterID) == "" {
		return swap.Swap{}, apperrors.Validation("requester id is required")
	}
	if strings.TrimSpace(req.RequestedItemID) == "" {
		return swap.Swap{}, apperrors.Validation("requested item id is required")
	}
	if !req.OfferType.Valid() {
		return swap.Swap{}, apperrors.Validation(fmt.Sprintf("unknown offer type %q", req.OfferType))
	}

	requested, err := s.items.GetItem(ctx, req.RequestedItemID)
	if err != nil {
		if storage.IsNotFound(err) {
			return swap.Swap{}, apperrors.NotFound("item", req.RequestedItemID)
		}
		return swap.Swap{}, apperrors.Internal("load requested item", err)
	}
	if requested.OwnerID == requesterID {
		return swap.Swap{}, apperrors.InvalidOperation("Cannot swap with yourself")
	}

	if req.OfferedItemID != "" {
		offered, err := s.items.GetItem(ctx, req.OfferedItemID)
		if err != nil {
			if storage.IsNotFound(err) {
				return swap.Swap{}, apperrors.NotFound("item", req.OfferedItemID)
			}
			return swap.Swap{}, apperrors.Internal("load offered item", err)
		}
		if offered.OwnerID != requesterID {
			return swap.Swap{}, apperrors.InvalidOperation("offered item does not belong to the requester")
		}
	}

	// Offer amount only carries meaning for purchases.
	amount := 0.0
	if req.OfferType == swap.OfferBuy {
		amount = req.OfferAmount
	}

	created, err := s.swaps.CreateSwap(ctx, swap.Swap{
		RequesterID:     requesterID,
		OwnerID:         requested.OwnerID,
		RequestedItemID: req.RequestedItemID,
		OfferedItemID:   req.OfferedItemID,
		OfferType:       req.OfferType,
		OfferAmount:     amount,
		Message:         req.Message,
		Status:          swap.StatusPending,
	})
	if err != nil {
		return swap.Swap{}, apperrors.Internal("create swap", err)
	}

	metrics.RecordSwapCreated(string(created.OfferType))
	s.log.WithField("swap_id", created.ID).
		WithField("requester_id", requesterID).
		WithField("owner_id", created.OwnerID).
		Info("swap created")
	return created, nil
}

// Get returns a single swap by id.
func (s *Service) Get(ctx context.Context, id string) (swap.Swap, error) {
	sw, err := s.swaps.GetSwap(ctx, id)
	if err != nil {
		if storage.IsNotFound(err) {
			return swap.Swap{}, apperrors.NotFound("swap", id)
		}
		return swap.Swap{}, apperrors.Internal("load swap", err)
	}
	return sw, nil
}

// ListForUser returns the user's swaps, newest first. Kind is "all", "sent"
// (user is requester), or "received" (user is item owner).
func (s *Service) ListForUser(ctx context.Context, userID, kind string) ([]swap.Swap, error) {
	filter := storage.SwapFilter{}
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", "all":
		filter.ParticipantID = userID
	case "sent":
		filter.RequesterID = userID
	case "received":
		filter.OwnerID = userID
	default:
		return nil, apperrors.Validation(fmt.Sprintf("unknown swap list type %q", kind))
	}

	swaps, err := s.swaps.ListSwaps(ctx, filter)
	if err != nil {
		return nil, apperrors.Internal("list swaps", err)
	}
	return swaps, nil
}

// StatusUpdate carries the fields of a transition request. Meeting fields
// are applied only when set.
type StatusUpdate struct {
	Status          swap.Status
	MeetingLocation string
	MeetingTime     *time.Time
}

// UpdateStatus moves a swap through its lifecycle. The transition table is
// enforced: pending may become accepted, rejected, or cancelled; accepted may
// become completed or cancelled. Accept and reject are restricted to the item
// owner; completion and cancellation to either participant.
//
// Completing a swap marks the referenced items sold (buy) or swapped, stamps
// completedAt, and credits both participants. The item and user writes are
// independent documents with no transaction; a failure partway through is
// surfaced as an internal error with earlier writes left in place.
func (s *Service) UpdateStatus(ctx context.Context, swapID, actorID string, upd StatusUpdate) (swap.Swap, error) {
	sw, err := s.swaps.GetSwap(ctx, swapID)
	if err != nil {
		if storage.IsNotFound(err) {
			return swap.Swap{}, apperrors.NotFound("swap", swapID)
		}
		return swap.Swap{}, apperrors.Internal("load swap", err)
	}

	if !upd.Status.Valid() {
		return swap.Swap{}, apperrors.Validation(fmt.Sprintf("unknown swap status %q", upd.Status))
	}
	if !swap.CanTransition(sw.Status, upd.Status) {
		return swap.Swap{}, apperrors.InvalidOperation(
			fmt.Sprintf("cannot transition swap from %s to %s", sw.Status, upd.Status))
	}

	switch upd.Status {
	case swap.StatusAccepted, swap.StatusRejected:
		if actorID != sw.OwnerID {
			return swap.Swap{}, apperrors.Forbidden("only the item owner can accept or reject a swap")
		}
	case swap.StatusCompleted, swap.StatusCancelled:
		if !sw.Participant(actorID) {
			return swap.Swap{}, apperrors.Forbidden("only a swap participant can complete or cancel it")
		}
	}

	from := sw.Status
	sw.Status = upd.Status
	if upd.MeetingLocation != "" {
		sw.MeetingLocation = upd.MeetingLocation
	}
	if upd.MeetingTime != nil {
		sw.MeetingTime = upd.MeetingTime
	}

	switch upd.Status {
	case swap.StatusAccepted:
		if err := s.markItems(ctx, sw, item.StatusPending); err != nil {
			return swap.Swap{}, err
		}
	case swap.StatusCompleted:
		now := time.Now().UTC()
		sw.CompletedAt = &now

		terminal := item.StatusSwapped
		if sw.OfferType == swap.OfferBuy {
			terminal = item.StatusSold
		}
		if err := s.markItems(ctx, sw, terminal); err != nil {
			return swap.Swap{}, err
		}
		if err := s.creditParticipants(ctx, sw); err != nil {
			return swap.Swap{}, err
		}
	}

	updated, err := s.swaps.UpdateSwap(ctx, sw)
	if err != nil {
		return swap.Swap{}, apperrors.Internal("update swap", err)
	}

	metrics.RecordSwapTransition(string(from), string(updated.Status))
	s.log.WithField("swap_id", updated.ID).
		WithField("actor_id", actorID).
		WithField("from", string(from)).
		WithField("to", string(updated.Status)).
		Info("swap status changed")
	return updated, nil
}

// Rate records a 1-5 rating from a participant of a completed swap. Each
// participant writes only their own rating field.
func (s *Service) Rate(ctx context.Context, swapID, actorID string, rating int) (swap.Swap, error) {
	sw, err := s.swaps.GetSwap(ctx, swapID)
	if err != nil {
		if storage.IsNotFound(err) {
			return swap.Swap{}, apperrors.NotFound("swap", swapID)
		}
		return swap.Swap{}, apperrors.Internal("load swap", err)
	}

	if sw.Status != swap.StatusCompleted {
		return swap.Swap{}, apperrors.InvalidOperation("Can only rate completed swaps")
	}
	if !sw.Participant(actorID) {
		return swap.Swap{}, apperrors.Forbidden("only a swap participant can rate it")
	}
	if rating < 1 || rating > 5 {
		return swap.Swap{}, apperrors.Validation("rating must be between 1 and 5")
	}

	if actorID == sw.RequesterID {
		sw.Rating.RequesterRating = rating
	} else {
		sw.Rating.OwnerRating = rating
	}

	updated, err := s.swaps.UpdateSwap(ctx, sw)
	if err != nil {
		return swap.Swap{}, apperrors.Internal("update swap rating", err)
	}

	s.log.WithField("swap_id", updated.ID).
		WithField("actor_id", actorID).
		WithField("rating", rating).
		Info("swap rated")
	return updated, nil
}

func (s *Service) markItems(ctx context.Context, sw swap.Swap, status item.Status) error {
	if err := s.items.SetItemStatus(ctx, sw.RequestedItemID, status); err != nil {
		return apperrors.Internal("update requested item status", err)
	}
	if sw.OfferedItemID != "" {
		if err := s.items.SetItemStatus(ctx, sw.OfferedItemID, status); err != nil {
			return apperrors.Internal("update offered item status", err)
		}
	}
	return nil
}

func (s *Service) creditParticipants(ctx context.Context, sw swap.Swap) error {
	for _, id := range []string{sw.RequesterID, sw.OwnerID} {
		if err := s.users.IncrementUserStats(ctx, id, user.CompletionPoints, 1); err != nil {
			return apperrors.Internal("credit participant", err)
		}
	}
	return nil
}
