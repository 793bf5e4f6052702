// Package item defines the listed-item domain model.
package item

import "time"

// Category classifies a listed item.
type Category string

const (
	CategoryBooks       Category = "Books"
	CategoryElectronics Category = "Electronics"
	CategoryClothing    Category = "Clothing"
	CategoryFurniture   Category = "Furniture"
	CategorySports      Category = "Sports"
	CategoryOther       Category = "Other"
)

// Categories lists every valid category.
var Categories = []Category{
	CategoryBooks,
	CategoryElectronics,
	CategoryClothing,
	CategoryFurniture,
	CategorySports,
	CategoryOther,
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Condition grades the physical state of an item.
type Condition string

const (
	ConditionNew     Condition = "new"
	ConditionLikeNew Condition = "like-new"
	ConditionGood    Condition = "good"
	ConditionFair    Condition = "fair"
	ConditionPoor    Condition = "poor"
)

// Valid reports whether c is a known condition.
func (c Condition) Valid() bool {
	switch c {
	case ConditionNew, ConditionLikeNew, ConditionGood, ConditionFair, ConditionPoor:
		return true
	}
	return false
}

// ExchangeType states how the owner wants to part with the item.
type ExchangeType string

const (
	ExchangeSwap   ExchangeType = "swap"
	ExchangeSell   ExchangeType = "sell"
	ExchangeDonate ExchangeType = "donate"
)

// Valid reports whether e is a known exchange type.
func (e ExchangeType) Valid() bool {
	switch e {
	case ExchangeSwap, ExchangeSell, ExchangeDonate:
		return true
	}
	return false
}

// Status is the listing lifecycle state. It only moves forward:
// available -> pending -> swapped|sold.
type Status string

const (
	StatusAvailable Status = "available"
	StatusPending   Status = "pending"
	StatusSwapped   Status = "swapped"
	StatusSold      Status = "sold"
)

// Item represents a listed physical object available for swap, sale, or
// donation.
type Item struct {
	ID           string       `json:"id" bson:"_id,omitempty"`
	Title        string       `json:"title" bson:"title"`
	Description  string       `json:"description" bson:"description"`
	Category     Category     `json:"category" bson:"category"`
	Condition    Condition    `json:"condition" bson:"condition"`
	ExchangeType ExchangeType `json:"exchangeType" bson:"exchangeType"`
	Price        float64      `json:"price" bson:"price"`
	WantedItems  []string     `json:"wantedItems,omitempty" bson:"wantedItems,omitempty"`
	Status       Status       `json:"status" bson:"status"`
	Views        int64        `json:"views" bson:"views"`
	Likes        []string     `json:"likes,omitempty" bson:"likes,omitempty"`
	Location     string       `json:"location,omitempty" bson:"location,omitempty"`
	OwnerID      string       `json:"ownerId" bson:"ownerId"`
	CreatedAt    time.Time    `json:"createdAt" bson:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt" bson:"updatedAt"`
}

// LikedBy reports whether the user already liked the item.
func (i Item) LikedBy(userID string) bool {
	for _, id := range i.Likes {
		if id == userID {
			return true
		}
	}
	return false
}
