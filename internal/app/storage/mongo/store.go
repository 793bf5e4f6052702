// Package mongo implements the storage interfaces on MongoDB. Query shapes
// mirror the document-store contract: equality, $ne, $lte, $in, and a
// case-insensitive regex OR across title and description.
package mongo

import (
	"context"
	"errors"
	"regexp"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/swapam/marketplace/internal/app/domain/item"
	"github.com/swapam/marketplace/internal/app/domain/swap"
	"github.com/swapam/marketplace/internal/app/domain/user"
	"github.com/swapam/marketplace/internal/app/storage"
)

// Store implements the storage interfaces backed by a Mongo database.
type Store struct {
	client *mongo.Client
	items  *mongo.Collection
	swaps  *mongo.Collection
	users  *mongo.Collection
}

var _ storage.ItemStore = (*Store)(nil)
var _ storage.SwapStore = (*Store)(nil)
var _ storage.UserStore = (*Store)(nil)

// New creates a Store over the given database handle.
func New(db *mongo.Database) *Store {
	return &Store{
		items: db.Collection("items"),
		swaps: db.Collection("swaps"),
		users: db.Collection("users"),
	}
}

// Connect dials a Mongo deployment and returns a Store over the named
// database.
func Connect(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, err
	}
	store := New(client.Database(database))
	store.client = client
	return store, nil
}

// Close disconnects the underlying client. No-op for stores built over an
// externally managed database handle.
func (s *Store) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}

// --- ItemStore ---------------------------------------------------------------

func (s *Store) CreateItem(ctx context.Context, it item.Item) (item.Item, error) {
	if it.ID == "" {
		it.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if it.CreatedAt.IsZero() {
		it.CreatedAt = now
	}
	it.UpdatedAt = now

	if _, err := s.items.InsertOne(ctx, it); err != nil {
		return item.Item{}, err
	}
	return it, nil
}

func (s *Store) UpdateItem(ctx context.Context, it item.Item) (item.Item, error) {
	it.UpdatedAt = time.Now().UTC()

	res, err := s.items.ReplaceOne(ctx, bson.M{"_id": it.ID}, it)
	if err != nil {
		return item.Item{}, err
	}
	if res.MatchedCount == 0 {
		return item.Item{}, &storage.NotFoundError{Resource: "item", ID: it.ID}
	}
	return it, nil
}

func (s *Store) GetItem(ctx context.Context, id string) (item.Item, error) {
	var it item.Item
	err := s.items.FindOne(ctx, bson.M{"_id": id}).Decode(&it)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return item.Item{}, &storage.NotFoundError{Resource: "item", ID: id}
	}
	if err != nil {
		return item.Item{}, err
	}
	return it, nil
}

func (s *Store) ListItems(ctx context.Context, filter storage.ItemFilter) ([]item.Item, error) {
	query := bson.M{}
	if filter.Status != "" {
		query["status"] = filter.Status
	}
	if filter.OwnerID != "" {
		query["ownerId"] = filter.OwnerID
	}
	if filter.ExcludeOwnerID != "" {
		query["ownerId"] = bson.M{"$ne": filter.ExcludeOwnerID}
	}
	if filter.ExcludeID != "" {
		query["_id"] = bson.M{"$ne": filter.ExcludeID}
	}
	if filter.Category != "" {
		query["category"] = filter.Category
	}
	if len(filter.Categories) > 0 {
		query["category"] = bson.M{"$in": filter.Categories}
	}
	if len(filter.Conditions) > 0 {
		query["condition"] = bson.M{"$in": filter.Conditions}
	}
	if filter.MaxPrice != nil {
		query["price"] = bson.M{"$lte": *filter.MaxPrice}
	}
	if len(filter.Keywords) > 0 {
		var or bson.A
		for _, kw := range filter.Keywords {
			if kw == "" {
				continue
			}
			re := primitive.Regex{Pattern: regexp.QuoteMeta(kw), Options: "i"}
			or = append(or, bson.M{"title": re}, bson.M{"description": re})
		}
		if len(or) > 0 {
			query["$or"] = or
		}
	}

	opts := options.Find()
	switch filter.Sort {
	case storage.SortViews:
		opts.SetSort(bson.D{{Key: "views", Value: -1}, {Key: "createdAt", Value: -1}})
	default:
		opts.SetSort(bson.D{{Key: "createdAt", Value: -1}})
	}
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}

	cur, err := s.items.Find(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	result := make([]item.Item, 0)
	if err := cur.All(ctx, &result); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) DeleteItem(ctx context.Context, id string) error {
	res, err := s.items.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return &storage.NotFoundError{Resource: "item", ID: id}
	}
	return nil
}

func (s *Store) SetItemStatus(ctx context.Context, id string, status item.Status) error {
	res, err := s.items.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{"status": status, "updatedAt": time.Now().UTC()},
	})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return &storage.NotFoundError{Resource: "item", ID: id}
	}
	return nil
}

func (s *Store) IncrementViews(ctx context.Context, id string) (item.Item, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var it item.Item
	err := s.items.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{
		"$inc": bson.M{"views": 1},
	}, opts).Decode(&it)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return item.Item{}, &storage.NotFoundError{Resource: "item", ID: id}
	}
	if err != nil {
		return item.Item{}, err
	}
	return it, nil
}

// --- SwapStore ---------------------------------------------------------------

func (s *Store) CreateSwap(ctx context.Context, sw swap.Swap) (swap.Swap, error) {
	if sw.ID == "" {
		sw.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if sw.CreatedAt.IsZero() {
		sw.CreatedAt = now
	}
	sw.UpdatedAt = now

	if _, err := s.swaps.InsertOne(ctx, sw); err != nil {
		return swap.Swap{}, err
	}
	return sw, nil
}

func (s *Store) UpdateSwap(ctx context.Context, sw swap.Swap) (swap.Swap, error) {
	sw.UpdatedAt = time.Now().UTC()

	res, err := s.swaps.ReplaceOne(ctx, bson.M{"_id": sw.ID}, sw)
	if err != nil {
		return swap.Swap{}, err
	}
	if res.MatchedCount == 0 {
		return swap.Swap{}, &storage.NotFoundError{Resource: "swap", ID: sw.ID}
	}
	return sw, nil
}

func (s *Store) GetSwap(ctx context.Context, id string) (swap.Swap, error) {
	var sw swap.Swap
	err := s.swaps.FindOne(ctx, bson.M{"_id": id}).Decode(&sw)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return swap.Swap{}, &storage.NotFoundError{Resource: "swap", ID: id}
	}
	if err != nil {
		return swap.Swap{}, err
	}
	return sw, nil
}

func (s *Store) ListSwaps(ctx context.Context, filter storage.SwapFilter) ([]swap.Swap, error) {
	query := bson.M{}
	if filter.RequesterID != "" {
		query["requesterId"] = filter.RequesterID
	}
	if filter.OwnerID != "" {
		query["ownerId"] = filter.OwnerID
	}
	// Each alternation goes through $and so combined filters don't clobber
	// each other's $or clause.
	var ors bson.A
	if filter.ParticipantID != "" {
		ors = append(ors, bson.M{"$or": bson.A{
			bson.M{"requesterId": filter.ParticipantID},
			bson.M{"ownerId": filter.ParticipantID},
		}})
	}
	if filter.ItemID != "" {
		ors = append(ors, bson.M{"$or": bson.A{
			bson.M{"requestedItemId": filter.ItemID},
			bson.M{"offeredItemId": filter.ItemID},
		}})
	}
	if len(ors) > 0 {
		query["$and"] = ors
	}
	if len(filter.Statuses) > 0 {
		query["status"] = bson.M{"$in": filter.Statuses}
	}

	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cur, err := s.swaps.Find(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	result := make([]swap.Swap, 0)
	if err := cur.All(ctx, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// --- UserStore ---------------------------------------------------------------

func (s *Store) EnsureUser(ctx context.Context, u user.User) (user.User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	now := time.Now().UTC()

	set := bson.M{"updatedAt": now}
	if u.Name != "" {
		set["name"] = u.Name
	}
	if u.Email != "" {
		set["email"] = u.Email
	}

	_, err := s.users.UpdateOne(ctx, bson.M{"_id": u.ID}, bson.M{
		"$set": set,
		"$setOnInsert": bson.M{
			"campusPoints": u.CampusPoints,
			"totalSwaps":   u.TotalSwaps,
			"createdAt":    now,
		},
	}, options.Update().SetUpsert(true))
	if err != nil {
		return user.User{}, err
	}
	return s.GetUser(ctx, u.ID)
}

func (s *Store) GetUser(ctx context.Context, id string) (user.User, error) {
	var u user.User
	err := s.users.FindOne(ctx, bson.M{"_id": id}).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return user.User{}, &storage.NotFoundError{Resource: "user", ID: id}
	}
	if err != nil {
		return user.User{}, err
	}
	return u, nil
}

func (s *Store) IncrementUserStats(ctx context.Context, id string, points, swaps int64) error {
	res, err := s.users.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$inc": bson.M{"campusPoints": points, "totalSwaps": swaps},
		"$set": bson.M{"updatedAt": time.Now().UTC()},
	})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return &storage.NotFoundError{Resource: "user", ID: id}
	}
	return nil
}
