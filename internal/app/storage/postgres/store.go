// Package postgres implements the storage interfaces backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/swapam/marketplace/internal/app/domain/item"
	"github.com/swapam/marketplace/internal/app/domain/swap"
	"github.com/swapam/marketplace/internal/app/domain/user"
	"github.com/swapam/marketplace/internal/app/storage"
)

// Store implements the storage interfaces over a SQL database handle.
type Store struct {
	db *sql.DB
}

var _ storage.ItemStore = (*Store)(nil)
var _ storage.SwapStore = (*Store)(nil)
var _ storage.UserStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open dials PostgreSQL with the given DSN.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return New(db), nil
}

// EnsureSchema creates the marketplace tables when they do not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS market_users (
			id            TEXT PRIMARY KEY,
			name          TEXT NOT NULL DEFAULT '',
			email         TEXT NOT NULL DEFAULT '',
			campus_points BIGINT NOT NULL DEFAULT 0,
			total_swaps   BIGINT NOT NULL DEFAULT 0,
			created_at    TIMESTAMPTZ NOT NULL,
			updated_at    TIMESTAMPTZ NOT NULL
		);
		CREATE TABLE IF NOT EXISTS market_items (
			id            TEXT PRIMARY KEY,
			title         TEXT NOT NULL,
			description   TEXT NOT NULL DEFAULT '',
			category      TEXT NOT NULL,
			condition     TEXT NOT NULL,
			exchange_type TEXT NOT NULL,
			price         DOUBLE PRECISION NOT NULL DEFAULT 0,
			wanted_items  JSONB NOT NULL DEFAULT '[]',
			status        TEXT NOT NULL,
			views         BIGINT NOT NULL DEFAULT 0,
			likes         JSONB NOT NULL DEFAULT '[]',
			location      TEXT NOT NULL DEFAULT '',
			owner_id      TEXT NOT NULL,
			created_at    TIMESTAMPTZ NOT NULL,
			updated_at    TIMESTAMPTZ NOT NULL
		);
		CREATE TABLE IF NOT EXISTS market_swaps (
			id                TEXT PRIMARY KEY,
			requester_id      TEXT NOT NULL,
			owner_id          TEXT NOT NULL,
			requested_item_id TEXT NOT NULL,
			offered_item_id   TEXT NOT NULL DEFAULT '',
			offer_type        TEXT NOT NULL,
			offer_amount      DOUBLE PRECISION NOT NULL DEFAULT 0,
			message           TEXT NOT NULL DEFAULT '',
			status            TEXT NOT NULL,
			meeting_location  TEXT NOT NULL DEFAULT '',
			meeting_time      TIMESTAMPTZ,
			requester_rating  INT NOT NULL DEFAULT 0,
			owner_rating      INT NOT NULL DEFAULT 0,
			created_at        TIMESTAMPTZ NOT NULL,
			updated_at        TIMESTAMPTZ NOT NULL,
			completed_at      TIMESTAMPTZ
		);
	`)
	return err
}

// --- ItemStore ---------------------------------------------------------------

const itemColumns = `id, title, description, category, condition, exchange_type,
	price, wanted_items, status, views, likes, location, owner_id, created_at, updated_at`

func (s *Store) CreateItem(ctx context.Context, it item.Item) (item.Item, error) {
	if it.ID == "" {
		it.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if it.CreatedAt.IsZero() {
		it.CreatedAt = now
	}
	it.UpdatedAt = now

	wanted, err := json.Marshal(emptySlice(it.WantedItems))
	if err != nil {
		return item.Item{}, err
	}
	likes, err := json.Marshal(emptySlice(it.Likes))
	if err != nil {
		return item.Item{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO market_items (id, title, description, category, condition,
			exchange_type, price, wanted_items, status, views, likes, location,
			owner_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`, it.ID, it.Title, it.Description, it.Category, it.Condition, it.ExchangeType,
		it.Price, wanted, it.Status, it.Views, likes, it.Location, it.OwnerID,
		it.CreatedAt, it.UpdatedAt)
	if err != nil {
		return item.Item{}, err
	}
	return it, nil
}

func (s *Store) UpdateItem(ctx context.Context, it item.Item) (item.Item, error) {
	it.UpdatedAt = time.Now().UTC()

	wanted, err := json.Marshal(emptySlice(it.WantedItems))
	if err != nil {
		return item.Item{}, err
	}
	likes, err := json.Marshal(emptySlice(it.Likes))
	if err != nil {
		return item.Item{}, err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE market_items
		SET title = $2, description = $3, category = $4, condition = $5,
			exchange_type = $6, price = $7, wanted_items = $8, status = $9,
			views = $10, likes = $11, location = $12, updated_at = $13
		WHERE id = $1
	`, it.ID, it.Title, it.Description, it.Category, it.Condition, it.ExchangeType,
		it.Price, wanted, it.Status, it.Views, likes, it.Location, it.UpdatedAt)
	if err != nil {
		return item.Item{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return item.Item{}, &storage.NotFoundError{Resource: "item", ID: it.ID}
	}
	return s.GetItem(ctx, it.ID)
}

func (s *Store) GetItem(ctx context.Context, id string) (item.Item, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM market_items WHERE id = $1`, id)
	it, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return item.Item{}, &storage.NotFoundError{Resource: "item", ID: id}
	}
	return it, err
}

func (s *Store) ListItems(ctx context.Context, filter storage.ItemFilter) ([]item.Item, error) {
	var (
		where []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Status != "" {
		where = append(where, "status = "+arg(string(filter.Status)))
	}
	if filter.OwnerID != "" {
		where = append(where, "owner_id = "+arg(filter.OwnerID))
	}
	if filter.ExcludeOwnerID != "" {
		where = append(where, "owner_id <> "+arg(filter.ExcludeOwnerID))
	}
	if filter.ExcludeID != "" {
		where = append(where, "id <> "+arg(filter.ExcludeID))
	}
	if filter.Category != "" {
		where = append(where, "category = "+arg(string(filter.Category)))
	}
	if len(filter.Categories) > 0 {
		placeholders := make([]string, 0, len(filter.Categories))
		for _, c := range filter.Categories {
			placeholders = append(placeholders, arg(string(c)))
		}
		where = append(where, "category IN ("+strings.Join(placeholders, ", ")+")")
	}
	if len(filter.Conditions) > 0 {
		placeholders := make([]string, 0, len(filter.Conditions))
		for _, c := range filter.Conditions {
			placeholders = append(placeholders, arg(string(c)))
		}
		where = append(where, "condition IN ("+strings.Join(placeholders, ", ")+")")
	}
	if filter.MaxPrice != nil {
		where = append(where, "price <= "+arg(*filter.MaxPrice))
	}
	if len(filter.Keywords) > 0 {
		var ors []string
		for _, kw := range filter.Keywords {
			if kw == "" {
				continue
			}
			pattern := arg("%" + kw + "%")
			ors = append(ors, "title ILIKE "+pattern+" OR description ILIKE "+pattern)
		}
		if len(ors) > 0 {
			where = append(where, "("+strings.Join(ors, " OR ")+")")
		}
	}

	query := `SELECT ` + itemColumns + ` FROM market_items`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	switch filter.Sort {
	case storage.SortViews:
		query += " ORDER BY views DESC, created_at DESC"
	default:
		query += " ORDER BY created_at DESC"
	}
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]item.Item, 0)
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, it)
	}
	return result, rows.Err()
}

func (s *Store) DeleteItem(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM market_items WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return &storage.NotFoundError{Resource: "item", ID: id}
	}
	return nil
}

func (s *Store) SetItemStatus(ctx context.Context, id string, status item.Status) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE market_items SET status = $2, updated_at = $3 WHERE id = $1
	`, id, string(status), time.Now().UTC())
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return &storage.NotFoundError{Resource: "item", ID: id}
	}
	return nil
}

func (s *Store) IncrementViews(ctx context.Context, id string) (item.Item, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE market_items SET views = views + 1 WHERE id = $1
	`, id)
	if err != nil {
		return item.Item{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return item.Item{}, &storage.NotFoundError{Resource: "item", ID: id}
	}
	return s.GetItem(ctx, id)
}

// --- SwapStore ---------------------------------------------------------------

const swapColumns = `id, requester_id, owner_id, requested_item_id, offered_item_id,
	offer_type, offer_amount, message, status, meeting_location, meeting_time,
	requester_rating, owner_rating, created_at, updated_at, completed_at`

func (s *Store) CreateSwap(ctx context.Context, sw swap.Swap) (swap.Swap, error) {
	if sw.ID == "" {
		sw.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if sw.CreatedAt.IsZero() {
		sw.CreatedAt = now
	}
	sw.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO market_swaps (id, requester_id, owner_id, requested_item_id,
			offered_item_id, offer_type, offer_amount, message, status,
			meeting_location, meeting_time, requester_rating, owner_rating,
			created_at, updated_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`, sw.ID, sw.RequesterID, sw.OwnerID, sw.RequestedItemID, sw.OfferedItemID,
		sw.OfferType, sw.OfferAmount, sw.Message, sw.Status, sw.MeetingLocation,
		sw.MeetingTime, sw.Rating.RequesterRating, sw.Rating.OwnerRating,
		sw.CreatedAt, sw.UpdatedAt, sw.CompletedAt)
	if err != nil {
		return swap.Swap{}, err
	}
	return sw, nil
}

func (s *Store) UpdateSwap(ctx context.Context, sw swap.Swap) (swap.Swap, error) {
	sw.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE market_swaps
		SET status = $2, offer_amount = $3, message = $4, meeting_location = $5,
			meeting_time = $6, requester_rating = $7, owner_rating = $8,
			updated_at = $9, completed_at = $10
		WHERE id = $1
	`, sw.ID, sw.Status, sw.OfferAmount, sw.Message, sw.MeetingLocation,
		sw.MeetingTime, sw.Rating.RequesterRating, sw.Rating.OwnerRating,
		sw.UpdatedAt, sw.CompletedAt)
	if err != nil {
		return swap.Swap{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return swap.Swap{}, &storage.NotFoundError{Resource: "swap", ID: sw.ID}
	}
	return sw, nil
}

func (s *Store) GetSwap(ctx context.Context, id string) (swap.Swap, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+swapColumns+` FROM market_swaps WHERE id = $1`, id)
	sw, err := scanSwap(row)
	if errors.Is(err, sql.ErrNoRows) {
		return swap.Swap{}, &storage.NotFoundError{Resource: "swap", ID: id}
	}
	return sw, err
}

func (s *Store) ListSwaps(ctx context.Context, filter storage.SwapFilter) ([]swap.Swap, error) {
	var (
		where []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.RequesterID != "" {
		where = append(where, "requester_id = "+arg(filter.RequesterID))
	}
	if filter.OwnerID != "" {
		where = append(where, "owner_id = "+arg(filter.OwnerID))
	}
	if filter.ParticipantID != "" {
		p := arg(filter.ParticipantID)
		where = append(where, "(requester_id = "+p+" OR owner_id = "+p+")")
	}
	if filter.ItemID != "" {
		p := arg(filter.ItemID)
		where = append(where, "(requested_item_id = "+p+" OR offered_item_id = "+p+")")
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, 0, len(filter.Statuses))
		for _, st := range filter.Statuses {
			placeholders = append(placeholders, arg(string(st)))
		}
		where = append(where, "status IN ("+strings.Join(placeholders, ", ")+")")
	}

	query := `SELECT ` + swapColumns + ` FROM market_swaps`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]swap.Swap, 0)
	for rows.Next() {
		sw, err := scanSwap(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, sw)
	}
	return result, rows.Err()
}

// --- UserStore ---------------------------------------------------------------

func (s *Store) EnsureUser(ctx context.Context, u user.User) (user.User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO market_users (id, name, email, campus_points, total_swaps, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (id) DO UPDATE
		SET name = CASE WHEN EXCLUDED.name <> '' THEN EXCLUDED.name ELSE market_users.name END,
			email = CASE WHEN EXCLUDED.email <> '' THEN EXCLUDED.email ELSE market_users.email END,
			updated_at = EXCLUDED.updated_at
	`, u.ID, u.Name, u.Email, u.CampusPoints, u.TotalSwaps, now)
	if err != nil {
		return user.User{}, err
	}
	return s.GetUser(ctx, u.ID)
}

func (s *Store) GetUser(ctx context.Context, id string) (user.User, error) {
	var u user.User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, email, campus_points, total_swaps, created_at, updated_at
		FROM market_users WHERE id = $1
	`, id).Scan(&u.ID, &u.Name, &u.Email, &u.CampusPoints, &u.TotalSwaps, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return user.User{}, &storage.NotFoundError{Resource: "user", ID: id}
	}
	if err != nil {
		return user.User{}, err
	}
	return u, nil
}

func (s *Store) IncrementUserStats(ctx context.Context, id string, points, swaps int64) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE market_users
		SET campus_points = campus_points + $2, total_swaps = total_swaps + $3, updated_at = $4
		WHERE id = $1
	`, id, points, swaps, time.Now().UTC())
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return &storage.NotFoundError{Resource: "user", ID: id}
	}
	return nil
}

// --- helpers -----------------------------------------------------------------

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanItem(row rowScanner) (item.Item, error) {
	var (
		it     item.Item
		wanted []byte
		likes  []byte
	)
	err := row.Scan(&it.ID, &it.Title, &it.Description, &it.Category, &it.Condition,
		&it.ExchangeType, &it.Price, &wanted, &it.Status, &it.Views, &likes,
		&it.Location, &it.OwnerID, &it.CreatedAt, &it.UpdatedAt)
	if err != nil {
		return item.Item{}, err
	}
	if err := json.Unmarshal(wanted, &it.WantedItems); err != nil {
		return item.Item{}, err
	}
	if err := json.Unmarshal(likes, &it.Likes); err != nil {
		return item.Item{}, err
	}
	return it, nil
}

func scanSwap(row rowScanner) (swap.Swap, error) {
	var (
		sw          swap.Swap
		meetingTime sql.NullTime
		completedAt sql.NullTime
	)
	err := row.Scan(&sw.ID, &sw.RequesterID, &sw.OwnerID, &sw.RequestedItemID,
		&sw.OfferedItemID, &sw.OfferType, &sw.OfferAmount, &sw.Message, &sw.Status,
		&sw.MeetingLocation, &meetingTime, &sw.Rating.RequesterRating,
		&sw.Rating.OwnerRating, &sw.CreatedAt, &sw.UpdatedAt, &completedAt)
	if err != nil {
		return swap.Swap{}, err
	}
	if meetingTime.Valid {
		t := meetingTime.Time
		sw.MeetingTime = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		sw.CompletedAt = &t
	}
	return sw, nil
}

func emptySlice(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
