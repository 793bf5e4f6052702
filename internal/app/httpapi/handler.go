// Package httpapi exposes the marketplace services over REST.
package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	app "github.com/swapam/marketplace/internal/app"
	"github.com/swapam/marketplace/internal/app/domain/item"
	"github.com/swapam/marketplace/internal/app/domain/swap"
	"github.com/swapam/marketplace/internal/app/services/items"
	"github.com/swapam/marketplace/internal/app/services/matching"
	"github.com/swapam/marketplace/internal/app/services/swaps"
	"github.com/swapam/marketplace/internal/app/services/users"
	apperrors "github.com/swapam/marketplace/internal/errors"
	"github.com/swapam/marketplace/internal/logging"
)

// handler bundles HTTP endpoints for the application services.
type handler struct {
	app   *app.Application
	audit *auditLog
}

// Options tunes optional handler behaviour.
type Options struct {
	// AuditFile, when set, appends mutation audit entries as JSONL.
	AuditFile string
	// AuditMax bounds the in-memory audit ring buffer.
	AuditMax int
}

// NewHandler returns a router exposing the marketplace REST API.
func NewHandler(application *app.Application) http.Handler {
	h, _ := NewHandlerWithOptions(application, Options{})
	return h
}

// NewHandlerWithOptions returns the API router with audit persistence
// configured.
func NewHandlerWithOptions(application *app.Application, opts Options) (http.Handler, error) {
	sink, err := newFileAuditSink(opts.AuditFile)
	if err != nil {
		return nil, err
	}

	h := &handler{app: application}
	if sink == nil {
		h.audit = newAuditLog(opts.AuditMax, nil)
	} else {
		h.audit = newAuditLog(opts.AuditMax, sink)
	}
	r := mux.NewRouter()
	r.Use(h.audit.record)

	r.HandleFunc("/healthz", h.health).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/items", h.createItem).Methods(http.MethodPost)
	api.HandleFunc("/items", h.listItems).Methods(http.MethodGet)
	api.HandleFunc("/items/{id}", h.getItem).Methods(http.MethodGet)
	api.HandleFunc("/items/{id}", h.updateItem).Methods(http.MethodPut)
	api.HandleFunc("/items/{id}", h.deleteItem).Methods(http.MethodDelete)
	api.HandleFunc("/items/{id}/like", h.likeItem).Methods(http.MethodPost)

	api.HandleFunc("/swaps", h.createSwap).Methods(http.MethodPost)
	api.HandleFunc("/swaps/my-swaps", h.mySwaps).Methods(http.MethodGet)
	api.HandleFunc("/swaps/{id}", h.getSwap).Methods(http.MethodGet)
	api.HandleFunc("/swaps/{id}/status", h.updateSwapStatus).Methods(http.MethodPut)
	api.HandleFunc("/swaps/{id}/rate", h.rateSwap).Methods(http.MethodPost)

	api.HandleFunc("/matching/find", h.findMatches).Methods(http.MethodPost)
	api.HandleFunc("/matching/recommendations", h.recommendations).Methods(http.MethodGet)
	api.HandleFunc("/matching/similar/{id}", h.similar).Methods(http.MethodGet)

	api.HandleFunc("/users/me", h.ensureUser).Methods(http.MethodPost)
	api.HandleFunc("/users/{id}/stats", h.userStats).Methods(http.MethodGet)

	api.HandleFunc("/audit", h.auditEntries).Methods(http.MethodGet)

	return r, nil
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) createItem(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var payload struct {
		Title        string   `json:"title"`
		Description  string   `json:"description"`
		Category     string   `json:"category"`
		Condition    string   `json:"condition"`
		ExchangeType string   `json:"exchangeType"`
		Price        float64  `json:"price"`
		WantedItems  []string `json:"wantedItems"`
		Location     string   `json:"location"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, apperrors.Validation(err.Error()))
		return
	}

	created, err := h.app.Items.Create(r.Context(), actor, items.CreateRequest{
		Title:        payload.Title,
		Description:  payload.Description,
		Category:     item.Category(payload.Category),
		Condition:    item.Condition(payload.Condition),
		ExchangeType: item.ExchangeType(payload.ExchangeType),
		Price:        payload.Price,
		WantedItems:  payload.WantedItems,
		Location:     payload.Location,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *handler) listItems(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := 0
	if raw := q.Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, apperrors.Validation("limit must be a non-negative integer"))
			return
		}
		limit = parsed
	}

	result, err := h.app.Items.List(r.Context(), items.ListFilter{
		Category: item.Category(q.Get("category")),
		Status:   item.Status(q.Get("status")),
		OwnerID:  q.Get("owner"),
		Search:   q.Get("search"),
		Limit:    limit,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": result})
}

func (h *handler) getItem(w http.ResponseWriter, r *http.Request) {
	it, err := h.app.Items.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, it)
}

func (h *handler) updateItem(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var payload struct {
		Title       *string  `json:"title"`
		Description *string  `json:"description"`
		Condition   *string  `json:"condition"`
		Price       *float64 `json:"price"`
		WantedItems []string `json:"wantedItems"`
		Location    *string  `json:"location"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, apperrors.Validation(err.Error()))
		return
	}

	req := items.UpdateRequest{
		Title:       payload.Title,
		Description: payload.Description,
		Price:       payload.Price,
		WantedItems: payload.WantedItems,
		Location:    payload.Location,
	}
	if payload.Condition != nil {
		cond := item.Condition(*payload.Condition)
		req.Condition = &cond
	}

	updated, err := h.app.Items.Update(r.Context(), mux.Vars(r)["id"], actor, req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *handler) deleteItem(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	if err := h.app.Items.Delete(r.Context(), mux.Vars(r)["id"], actor); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) likeItem(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	updated, err := h.app.Items.Like(r.Context(), mux.Vars(r)["id"], actor)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *handler) createSwap(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var payload struct {
		RequestedItemID string  `json:"requestedItem"`
		OfferedItemID   string  `json:"offeredItem"`
		OfferType       string  `json:"offerType"`
		OfferAmount     float64 `json:"offerAmount"`
		Message         string  `json:"message"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, apperrors.Validation(err.Error()))
		return
	}

	created, err := h.app.Swaps.Create(r.Context(), actor, swaps.CreateRequest{
		RequestedItemID: payload.RequestedItemID,
		OfferedItemID:   payload.OfferedItemID,
		OfferType:       swap.OfferType(payload.OfferType),
		OfferAmount:     payload.OfferAmount,
		Message:         payload.Message,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *handler) mySwaps(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	result, err := h.app.Swaps.ListForUser(r.Context(), actor, r.URL.Query().Get("type"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"swaps": result})
}

func (h *handler) getSwap(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	sw, err := h.app.Swaps.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if !sw.Participant(actor) {
		writeError(w, apperrors.Forbidden("Not a participant in this swap"))
		return
	}
	writeJSON(w, http.StatusOK, sw)
}

func (h *handler) updateSwapStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var payload struct {
		Status          string `json:"status"`
		MeetingLocation string `json:"meetingLocation"`
		MeetingTime     string `json:"meetingTime"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, apperrors.Validation(err.Error()))
		return
	}

	upd := swaps.StatusUpdate{
		Status:          swap.Status(payload.Status),
		MeetingLocation: payload.MeetingLocation,
	}
	if strings.TrimSpace(payload.MeetingTime) != "" {
		parsed, err := time.Parse(time.RFC3339, strings.TrimSpace(payload.MeetingTime))
		if err != nil {
			writeError(w, apperrors.Validation("meetingTime must be an RFC3339 timestamp"))
			return
		}
		upd.MeetingTime = &parsed
	}

	updated, err := h.app.Swaps.UpdateStatus(r.Context(), mux.Vars(r)["id"], actor, upd)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *handler) rateSwap(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var payload struct {
		Rating int `json:"rating"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, apperrors.Validation(err.Error()))
		return
	}

	updated, err := h.app.Swaps.Rate(r.Context(), mux.Vars(r)["id"], actor, payload.Rating)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *handler) findMatches(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var payload struct {
		Category   string   `json:"category"`
		Keywords   []string `json:"keywords"`
		MaxPrice   *float64 `json:"maxPrice"`
		Conditions []string `json:"conditions"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, apperrors.Validation(err.Error()))
		return
	}

	prefs := matching.Preferences{
		Category: item.Category(payload.Category),
		Keywords: payload.Keywords,
		MaxPrice: payload.MaxPrice,
	}
	for _, cond := range payload.Conditions {
		prefs.Conditions = append(prefs.Conditions, item.Condition(cond))
	}

	matches, err := h.app.Matching.FindMatches(r.Context(), actor, prefs)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"matches": matches})
}

func (h *handler) recommendations(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	recs, err := h.app.Matching.Recommendations(r.Context(), actor)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"recommendations": recs})
}

func (h *handler) similar(w http.ResponseWriter, r *http.Request) {
	result, err := h.app.Matching.Similar(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"similar": result})
}

func (h *handler) ensureUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var payload struct {
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, apperrors.Validation(err.Error()))
		return
	}

	u, err := h.app.Users.Ensure(r.Context(), actor, users.EnsureRequest{
		Name:  payload.Name,
		Email: payload.Email,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (h *handler) userStats(w http.ResponseWriter, r *http.Request) {
	u, err := h.app.Users.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":           u.ID,
		"name":         u.Name,
		"campusPoints": u.CampusPoints,
		"totalSwaps":   u.TotalSwaps,
	})
}

// requireActor resolves the authenticated user id from context. Writes a 401
// and returns false when the request is unauthenticated.
func requireActor(w http.ResponseWriter, r *http.Request) (string, bool) {
	actor := logging.GetUserID(r.Context())
	if actor == "" {
		writeError(w, apperrors.Unauthorized("Authentication required"))
		return "", false
	}
	return actor, true
}

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, serviceErr *apperrors.ServiceError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(serviceErr.HTTPStatus)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]interface{}{
			"code":    string(serviceErr.Code),
			"message": serviceErr.Message,
			"details": serviceErr.Details,
		},
	})
}

// writeServiceError maps a service error to its HTTP shape. Unclassified
// errors render as 500.
func writeServiceError(w http.ResponseWriter, err error) {
	serviceErr := apperrors.GetServiceError(err)
	if serviceErr == nil {
		serviceErr = apperrors.Internal("unexpected error", err)
	}
	writeError(w, serviceErr)
}
