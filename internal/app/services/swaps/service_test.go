package swaps

import (
	"context"
	"testing"

	"github.com/swapam/marketplace/internal/app/domain/item"
	"github.com/swapam/marketplace/internal/app/domain/swap"
	"github.com/swapam/marketplace/internal/app/domain/user"
	"github.com/swapam/marketplace/internal/app/storage/memory"
	apperrors "github.com/swapam/marketplace/internal/errors"
)

func seedItem(t *testing.T, store *memory.Store, owner string, exchange item.ExchangeType) item.Item {
	t.Helper()
	it, err := store.CreateItem(context.Background(), item.Item{
		Title:        "Calculus Textbook",
		Category:     item.CategoryBooks,
		Condition:    item.ConditionGood,
		ExchangeType: exchange,
		Status:       item.StatusAvailable,
		OwnerID:      owner,
	})
	if err != nil {
		t.Fatalf("seed item: %v", err)
	}
	return it
}

func seedUser(t *testing.T, store *memory.Store, id string) {
	t.Helper()
	if _, err := store.EnsureUser(context.Background(), user.User{ID: id}); err != nil {
		t.Fatalf("seed user %s: %v", id, err)
	}
}

func TestService_CreateRejectsSelfSwap(t *testing.T) {
	store := memory.New()
	it := seedItem(t, store, "alice", item.ExchangeSwap)

	svc := New(store, store, store, nil)
	_, err := svc.Create(context.Background(), "alice", CreateRequest{
		RequestedItemID: it.ID,
		OfferType:       swap.OfferSwap,
	})
	if !apperrors.Is(err, apperrors.CodeInvalidOperation) {
		t.Fatalf("expected invalid operation, got %v", err)
	}
	if se := apperrors.GetServiceError(err); se.Message != "Cannot swap with yourself" {
		t.Fatalf("unexpected message: %s", se.Message)
	}
}

func TestService_CreateRejectsForeignOfferedItem(t *testing.T) {
	store := memory.New()
	requested := seedItem(t, store, "alice", item.ExchangeSwap)
	foreign := seedItem(t, store, "carol", item.ExchangeSwap)

	svc := New(store, store, store, nil)
	_, err := svc.Create(context.Background(), "bob", CreateRequest{
		RequestedItemID: requested.ID,
		OfferedItemID:   foreign.ID,
		OfferType:       swap.OfferSwap,
	})
	if !apperrors.Is(err, apperrors.CodeInvalidOperation) {
		t.Fatalf("expected invalid operation, got %v", err)
	}
}

func TestService_CreateZeroesAmountForNonBuyOffers(t *testing.T) {
	store := memory.New()
	it := seedItem(t, store, "alice", item.ExchangeSwap)

	svc := New(store, store, store, nil)
	created, err := svc.Create(context.Background(), "bob", CreateRequest{
		RequestedItemID: it.ID,
		OfferType:       swap.OfferSwap,
		OfferAmount:     25,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.OfferAmount != 0 {
		t.Fatalf("amount should be zeroed for swap offers: %v", created.OfferAmount)
	}
	if created.Status != swap.StatusPending {
		t.Fatalf("new swap should be pending: %s", created.Status)
	}
}

func TestService_OnlyOwnerAcceptsOrRejects(t *testing.T) {
	store := memory.New()
	it := seedItem(t, store, "alice", item.ExchangeSwap)

	svc := New(store, store, store, nil)
	created, err := svc.Create(context.Background(), "bob", CreateRequest{
		RequestedItemID: it.ID,
		OfferType:       swap.OfferSwap,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	_, err = svc.UpdateStatus(context.Background(), created.ID, "bob", StatusUpdate{Status: swap.StatusAccepted})
	if !apperrors.Is(err, apperrors.CodeForbidden) {
		t.Fatalf("requester must not accept, got %v", err)
	}

	// The rejected attempt must leave the swap untouched.
	unchanged, err := store.GetSwap(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("get swap: %v", err)
	}
	if unchanged.Status != swap.StatusPending {
		t.Fatalf("status changed by forbidden accept: %s", unchanged.Status)
	}

	accepted, err := svc.UpdateStatus(context.Background(), created.ID, "alice", StatusUpdate{Status: swap.StatusAccepted})
	if err != nil {
		t.Fatalf("owner accept: %v", err)
	}
	if accepted.Status != swap.StatusAccepted {
		t.Fatalf("unexpected status: %s", accepted.Status)
	}

	// Accepting puts the requested item on hold.
	held, err := store.GetItem(context.Background(), it.ID)
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if held.Status != item.StatusPending {
		t.Fatalf("item should be pending after accept: %s", held.Status)
	}
}

func TestService_TransitionTableEnforced(t *testing.T) {
	store := memory.New()
	it := seedItem(t, store, "alice", item.ExchangeSwap)

	svc := New(store, store, store, nil)
	created, err := svc.Create(context.Background(), "bob", CreateRequest{
		RequestedItemID: it.ID,
		OfferType:       swap.OfferSwap,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// pending -> completed skips acceptance.
	_, err = svc.UpdateStatus(context.Background(), created.ID, "alice", StatusUpdate{Status: swap.StatusCompleted})
	if !apperrors.Is(err, apperrors.CodeInvalidOperation) {
		t.Fatalf("expected transition rejection, got %v", err)
	}

	if _, err = svc.UpdateStatus(context.Background(), created.ID, "alice", StatusUpdate{Status: swap.StatusRejected}); err != nil {
		t.Fatalf("reject: %v", err)
	}

	// Rejected is terminal.
	_, err = svc.UpdateStatus(context.Background(), created.ID, "alice", StatusUpdate{Status: swap.StatusAccepted})
	if !apperrors.Is(err, apperrors.CodeInvalidOperation) {
		t.Fatalf("terminal state must not transition, got %v", err)
	}
}

func TestService_CompletionCreditsBothParticipants(t *testing.T) {
	store := memory.New()
	requested := seedItem(t, store, "alice", item.ExchangeSwap)
	offered := seedItem(t, store, "bob", item.ExchangeSwap)
	seedUser(t, store, "alice")
	seedUser(t, store, "bob")

	svc := New(store, store, store, nil)
	created, err := svc.Create(context.Background(), "bob", CreateRequest{
		RequestedItemID: requested.ID,
		OfferedItemID:   offered.ID,
		OfferType:       swap.OfferSwap,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.UpdateStatus(context.Background(), created.ID, "alice", StatusUpdate{Status: swap.StatusAccepted}); err != nil {
		t.Fatalf("accept: %v", err)
	}

	completed, err := svc.UpdateStatus(context.Background(), created.ID, "bob", StatusUpdate{Status: swap.StatusCompleted})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if completed.CompletedAt == nil {
		t.Fatalf("completedAt not stamped")
	}

	for _, id := range []string{"alice", "bob"} {
		u, err := store.GetUser(context.Background(), id)
		if err != nil {
			t.Fatalf("get user %s: %v", id, err)
		}
		if u.CampusPoints != user.CompletionPoints {
			t.Fatalf("%s campus points = %d, want %d", id, u.CampusPoints, user.CompletionPoints)
		}
		if u.TotalSwaps != 1 {
			t.Fatalf("%s total swaps = %d, want 1", id, u.TotalSwaps)
		}
	}

	for _, itemID := range []string{requested.ID, offered.ID} {
		it, err := store.GetItem(context.Background(), itemID)
		if err != nil {
			t.Fatalf("get item: %v", err)
		}
		if it.Status != item.StatusSwapped {
			t.Fatalf("item %s status = %s, want swapped", itemID, it.Status)
		}
	}
}

func TestService_BuyCompletionMarksItemSold(t *testing.T) {
	store := memory.New()
	it := seedItem(t, store, "alice", item.ExchangeSell)
	seedUser(t, store, "alice")
	seedUser(t, store, "bob")

	svc := New(store, store, store, nil)
	created, err := svc.Create(context.Background(), "bob", CreateRequest{
		RequestedItemID: it.ID,
		OfferType:       swap.OfferBuy,
		OfferAmount:     40,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.OfferAmount != 40 {
		t.Fatalf("buy amount should be kept: %v", created.OfferAmount)
	}

	if _, err := svc.UpdateStatus(context.Background(), created.ID, "alice", StatusUpdate{Status: swap.StatusAccepted}); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if _, err := svc.UpdateStatus(context.Background(), created.ID, "alice", StatusUpdate{Status: swap.StatusCompleted}); err != nil {
		t.Fatalf("complete: %v", err)
	}

	sold, err := store.GetItem(context.Background(), it.ID)
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if sold.Status != item.StatusSold {
		t.Fatalf("bought item should be sold: %s", sold.Status)
	}
}

func TestService_RateRequiresCompletedSwap(t *testing.T) {
	store := memory.New()
	it := seedItem(t, store, "alice", item.ExchangeSwap)
	seedUser(t, store, "alice")
	seedUser(t, store, "bob")

	svc := New(store, store, store, nil)
	created, err := svc.Create(context.Background(), "bob", CreateRequest{
		RequestedItemID: it.ID,
		OfferType:       swap.OfferSwap,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	_, err = svc.Rate(context.Background(), created.ID, "bob", 5)
	if !apperrors.Is(err, apperrors.CodeInvalidOperation) {
		t.Fatalf("rating a pending swap must fail, got %v", err)
	}
	if se := apperrors.GetServiceError(err); se.Message != "Can only rate completed swaps" {
		t.Fatalf("unexpected message: %s", se.Message)
	}

	if _, err := svc.UpdateStatus(context.Background(), created.ID, "alice", StatusUpdate{Status: swap.StatusAccepted}); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if _, err := svc.UpdateStatus(context.Background(), created.ID, "bob", StatusUpdate{Status: swap.StatusCompleted}); err != nil {
		t.Fatalf("complete: %v", err)
	}

	if _, err := svc.Rate(context.Background(), created.ID, "carol", 5); !apperrors.Is(err, apperrors.CodeForbidden) {
		t.Fatalf("outsider rating must be forbidden, got %v", err)
	}
	if _, err := svc.Rate(context.Background(), created.ID, "bob", 6); !apperrors.Is(err, apperrors.CodeValidation) {
		t.Fatalf("out of range rating must fail, got %v", err)
	}

	rated, err := svc.Rate(context.Background(), created.ID, "bob", 4)
	if err != nil {
		t.Fatalf("rate as requester: %v", err)
	}
	if rated.Rating.RequesterRating != 4 || rated.Rating.OwnerRating != 0 {
		t.Fatalf("requester rating not isolated: %+v", rated.Rating)
	}

	rated, err = svc.Rate(context.Background(), created.ID, "alice", 5)
	if err != nil {
		t.Fatalf("rate as owner: %v", err)
	}
	if rated.Rating.RequesterRating != 4 || rated.Rating.OwnerRating != 5 {
		t.Fatalf("both ratings should persist: %+v", rated.Rating)
	}
}

func TestService_ListForUser(t *testing.T) {
	store := memory.New()
	first := seedItem(t, store, "alice", item.ExchangeSwap)
	second := seedItem(t, store, "bob", item.ExchangeSwap)

	svc := New(store, store, store, nil)
	if _, err := svc.Create(context.Background(), "bob", CreateRequest{RequestedItemID: first.ID, OfferType: swap.OfferRequest}); err != nil {
		t.Fatalf("create sent: %v", err)
	}
	if _, err := svc.Create(context.Background(), "alice", CreateRequest{RequestedItemID: second.ID, OfferType: swap.OfferRequest}); err != nil {
		t.Fatalf("create received: %v", err)
	}

	sent, err := svc.ListForUser(context.Background(), "bob", "sent")
	if err != nil {
		t.Fatalf("list sent: %v", err)
	}
	if len(sent) != 1 || sent[0].RequesterID != "bob" {
		t.Fatalf("unexpected sent list: %+v", sent)
	}

	received, err := svc.ListForUser(context.Background(), "bob", "received")
	if err != nil {
		t.Fatalf("list received: %v", err)
	}
	if len(received) != 1 || received[0].OwnerID != "bob" {
		t.Fatalf("unexpected received list: %+v", received)
	}

	all, err := svc.ListForUser(context.Background(), "bob", "all")
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected both swaps, got %d", len(all))
	}

	if _, err := svc.ListForUser(context.Background(), "bob", "bogus"); !apperrors.Is(err, apperrors.CodeValidation) {
		t.Fatalf("unknown kind must fail validation, got %v", err)
	}
}
