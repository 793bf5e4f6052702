// Package user defines the marketplace view of a campus user.
package user

import "time"

// CompletionPoints is added to both participants' campus points when a swap
// completes.
const CompletionPoints = 10

// User carries the gamification counters the swap lifecycle maintains.
// Authentication and profile data live outside this service.
type User struct {
	ID           string    `json:"id" bson:"_id,omitempty"`
	Name         string    `json:"name,omitempty" bson:"name,omitempty"`
	Email        string    `json:"email,omitempty" bson:"email,omitempty"`
	CampusPoints int64     `json:"campusPoints" bson:"campusPoints"`
	TotalSwaps   int64     `json:"totalSwaps" bson:"totalSwaps"`
	CreatedAt    time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt" bson:"updatedAt"`
}
