// Package swap defines the swap-offer domain model and its transition rules.
package swap

import "time"

// OfferType classifies a swap offer: a direct item swap, a cash purchase,
// or a one-sided request.
type OfferType string

const (
	OfferSwap    OfferType = "swap"
	OfferBuy     OfferType = "buy"
	OfferRequest OfferType = "request"
)

// Valid reports whether o is a known offer type.
func (o OfferType) Valid() bool {
	switch o {
	case OfferSwap, OfferBuy, OfferRequest:
		return true
	}
	return false
}

// Status is the lifecycle state of a swap offer.
type Status string

const (
	StatusPending   Status = "pending"
	StatusAccepted  Status = "accepted"
	StatusRejected  Status = "rejected"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// transitions is the legal state graph. Rejected, completed, and cancelled
// are terminal.
var transitions = map[Status][]Status{
	StatusPending:  {StatusAccepted, StatusRejected, StatusCancelled},
	StatusAccepted: {StatusCompleted, StatusCancelled},
}

// CanTransition reports whether moving from one status to the next is legal.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusRejected, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Rating holds the optional 1-5 scores each participant leaves after
// completion.
type Rating struct {
	RequesterRating int `json:"requesterRating,omitempty" bson:"requesterRating,omitempty"`
	OwnerRating     int `json:"ownerRating,omitempty" bson:"ownerRating,omitempty"`
}

// Swap represents a negotiation between a requester and an item owner over
// one or two items.
type Swap struct {
	ID              string     `json:"id" bson:"_id,omitempty"`
	RequesterID     string     `json:"requesterId" bson:"requesterId"`
	OwnerID         string     `json:"ownerId" bson:"ownerId"`
	RequestedItemID string     `json:"requestedItemId" bson:"requestedItemId"`
	OfferedItemID   string     `json:"offeredItemId,omitempty" bson:"offeredItemId,omitempty"`
	OfferType       OfferType  `json:"offerType" bson:"offerType"`
	OfferAmount     float64    `json:"offerAmount" bson:"offerAmount"`
	Message         string     `json:"message,omitempty" bson:"message,omitempty"`
	Status          Status     `json:"status" bson:"status"`
	MeetingLocation string     `json:"meetingLocation,omitempty" bson:"meetingLocation,omitempty"`
	MeetingTime     *time.Time `json:"meetingTime,omitempty" bson:"meetingTime,omitempty"`
	Rating          Rating     `json:"rating" bson:"rating"`
	CreatedAt       time.Time  `json:"createdAt" bson:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt" bson:"updatedAt"`
	CompletedAt     *time.Time `json:"completedAt,omitempty" bson:"completedAt,omitempty"`
}

// Participant reports whether the user is the requester or the owner.
func (s Swap) Participant(userID string) bool {
	return userID == s.RequesterID || userID == s.OwnerID
}
