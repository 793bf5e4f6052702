package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	app "github.com/swapam/marketplace/internal/app"
	"github.com/swapam/marketplace/internal/logging"
)

func newTestHandler(t *testing.T) http.Handler {
	t.Helper()
	application, err := app.New(app.Stores{}, nil)
	if err != nil {
		t.Fatalf("new application: %v", err)
	}
	return NewHandler(application)
}

func marshal(t *testing.T, v interface{}) io.Reader {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	return bytes.NewReader(data)
}

// authedRequest builds a request carrying the user id the auth middleware
// would have injected.
func authedRequest(method, path string, body io.Reader, userID string) *http.Request {
	req := httptest.NewRequest(method, path, body)
	if userID != "" {
		req = req.WithContext(logging.WithUserID(req.Context(), userID))
	}
	return req
}

func do(handler http.Handler, req *http.Request) *httptest.ResponseRecorder {
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	return resp
}

func decodeBody(t *testing.T, resp *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	if err := json.Unmarshal(resp.Body.Bytes(), dst); err != nil {
		t.Fatalf("unmarshal response %q: %v", resp.Body.String(), err)
	}
}

func createItem(t *testing.T, handler http.Handler, owner, title, category string) string {
	t.Helper()
	resp := do(handler, authedRequest(http.MethodPost, "/api/items", marshal(t, map[string]any{
		"title":        title,
		"category":     category,
		"condition":    "good",
		"exchangeType": "swap",
	}), owner))
	if resp.Code != http.StatusCreated {
		t.Fatalf("create item: expected 201, got %d: %s", resp.Code, resp.Body.String())
	}
	var created map[string]any
	decodeBody(t, resp, &created)
	id, ok := created["id"].(string)
	if !ok || id == "" {
		t.Fatalf("missing item id in %v", created)
	}
	return id
}

func TestHandler_SwapLifecycle(t *testing.T) {
	handler := newTestHandler(t)

	// Both participants sync profiles first so completion can credit them.
	for _, uid := range []string{"alice", "bob"} {
		resp := do(handler, authedRequest(http.MethodPost, "/api/users/me", marshal(t, map[string]any{"name": uid}), uid))
		if resp.Code != http.StatusOK {
			t.Fatalf("ensure %s: expected 200, got %d", uid, resp.Code)
		}
	}

	itemID := createItem(t, handler, "alice", "Calculus Textbook", "Books")

	// Owner cannot open a swap against their own item.
	resp := do(handler, authedRequest(http.MethodPost, "/api/swaps", marshal(t, map[string]any{
		"requestedItem": itemID,
		"offerType":     "request",
	}), "alice"))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("self swap: expected 400, got %d", resp.Code)
	}
	var errBody struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	decodeBody(t, resp, &errBody)
	if errBody.Error.Message != "Cannot swap with yourself" {
		t.Fatalf("unexpected error body: %+v", errBody)
	}

	resp = do(handler, authedRequest(http.MethodPost, "/api/swaps", marshal(t, map[string]any{
		"requestedItem": itemID,
		"offerType":     "request",
		"message":       "still available?",
	}), "bob"))
	if resp.Code != http.StatusCreated {
		t.Fatalf("create swap: expected 201, got %d: %s", resp.Code, resp.Body.String())
	}
	var created map[string]any
	decodeBody(t, resp, &created)
	swapID := created["id"].(string)

	// Requester cannot accept.
	resp = do(handler, authedRequest(http.MethodPut, "/api/swaps/"+swapID+"/status", marshal(t, map[string]any{
		"status": "accepted",
	}), "bob"))
	if resp.Code != http.StatusForbidden {
		t.Fatalf("requester accept: expected 403, got %d", resp.Code)
	}

	resp = do(handler, authedRequest(http.MethodPut, "/api/swaps/"+swapID+"/status", marshal(t, map[string]any{
		"status":          "accepted",
		"meetingLocation": "library steps",
	}), "alice"))
	if resp.Code != http.StatusOK {
		t.Fatalf("accept: expected 200, got %d: %s", resp.Code, resp.Body.String())
	}

	resp = do(handler, authedRequest(http.MethodPut, "/api/swaps/"+swapID+"/status", marshal(t, map[string]any{
		"status": "completed",
	}), "bob"))
	if resp.Code != http.StatusOK {
		t.Fatalf("complete: expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var completed map[string]any
	decodeBody(t, resp, &completed)
	if completed["completedAt"] == nil {
		t.Fatalf("completedAt missing: %v", completed)
	}

	// Completion credited both participants.
	for _, uid := range []string{"alice", "bob"} {
		resp = do(handler, authedRequest(http.MethodGet, "/api/users/"+uid+"/stats", nil, uid))
		if resp.Code != http.StatusOK {
			t.Fatalf("stats %s: expected 200, got %d", uid, resp.Code)
		}
		var stats map[string]any
		decodeBody(t, resp, &stats)
		if stats["campusPoints"].(float64) != 10 || stats["totalSwaps"].(float64) != 1 {
			t.Fatalf("stats for %s: %v", uid, stats)
		}
	}

	// Rating after completion.
	resp = do(handler, authedRequest(http.MethodPost, "/api/swaps/"+swapID+"/rate", marshal(t, map[string]any{
		"rating": 5,
	}), "bob"))
	if resp.Code != http.StatusOK {
		t.Fatalf("rate: expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestHandler_ItemCatalog(t *testing.T) {
	handler := newTestHandler(t)

	itemID := createItem(t, handler, "alice", "Desk Lamp", "Furniture")
	createItem(t, handler, "bob", "Algebra Book", "Books")

	// Reading an item bumps its view counter.
	for i := 0; i < 2; i++ {
		resp := do(handler, authedRequest(http.MethodGet, "/api/items/"+itemID, nil, "carol"))
		if resp.Code != http.StatusOK {
			t.Fatalf("get item: expected 200, got %d", resp.Code)
		}
	}
	resp := do(handler, authedRequest(http.MethodGet, "/api/items/"+itemID, nil, "carol"))
	var got map[string]any
	decodeBody(t, resp, &got)
	if got["views"].(float64) != 3 {
		t.Fatalf("views = %v, want 3", got["views"])
	}

	// Category filter.
	resp = do(handler, authedRequest(http.MethodGet, "/api/items?category=Books", nil, "carol"))
	if resp.Code != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", resp.Code)
	}
	var listing struct {
		Items []map[string]any `json:"items"`
	}
	decodeBody(t, resp, &listing)
	if len(listing.Items) != 1 || listing.Items[0]["title"] != "Algebra Book" {
		t.Fatalf("unexpected listing: %+v", listing.Items)
	}

	// Like toggle.
	resp = do(handler, authedRequest(http.MethodPost, "/api/items/"+itemID+"/like", nil, "carol"))
	if resp.Code != http.StatusOK {
		t.Fatalf("like: expected 200, got %d", resp.Code)
	}
	var liked map[string]any
	decodeBody(t, resp, &liked)
	likes, _ := liked["likes"].([]any)
	if len(likes) != 1 || likes[0] != "carol" {
		t.Fatalf("like not recorded: %v", liked["likes"])
	}

	// Non-owner delete is rejected.
	resp = do(handler, authedRequest(http.MethodDelete, "/api/items/"+itemID, nil, "carol"))
	if resp.Code != http.StatusForbidden {
		t.Fatalf("foreign delete: expected 403, got %d", resp.Code)
	}
	resp = do(handler, authedRequest(http.MethodDelete, "/api/items/"+itemID, nil, "alice"))
	if resp.Code != http.StatusNoContent {
		t.Fatalf("owner delete: expected 204, got %d", resp.Code)
	}
}

func TestHandler_Matching(t *testing.T) {
	handler := newTestHandler(t)

	createItem(t, handler, "alice", "Calculus Textbook", "Books")
	createItem(t, handler, "alice", "Mountain Bike", "Sports")
	createItem(t, handler, "bob", "Linear Algebra Notes", "Books")

	resp := do(handler, authedRequest(http.MethodPost, "/api/matching/find", marshal(t, map[string]any{
		"category": "Books",
		"keywords": []string{"calculus"},
	}), "bob"))
	if resp.Code != http.StatusOK {
		t.Fatalf("find: expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var found struct {
		Matches []struct {
			Item  map[string]any `json:"item"`
			Score int            `json:"score"`
		} `json:"matches"`
	}
	decodeBody(t, resp, &found)
	if len(found.Matches) != 1 {
		t.Fatalf("expected one match, got %+v", found.Matches)
	}
	// 50 base + 30 category + 10 keyword.
	if found.Matches[0].Score != 90 {
		t.Fatalf("score = %d, want 90", found.Matches[0].Score)
	}

	// Bob lists books, so alice's book comes back as a recommendation.
	resp = do(handler, authedRequest(http.MethodGet, "/api/matching/recommendations", nil, "bob"))
	if resp.Code != http.StatusOK {
		t.Fatalf("recommendations: expected 200, got %d", resp.Code)
	}
	var recs struct {
		Recommendations []map[string]any `json:"recommendations"`
	}
	decodeBody(t, resp, &recs)
	if len(recs.Recommendations) != 1 || recs.Recommendations[0]["title"] != "Calculus Textbook" {
		t.Fatalf("unexpected recommendations: %+v", recs.Recommendations)
	}
}

func TestHandler_RequiresAuthentication(t *testing.T) {
	handler := newTestHandler(t)

	resp := do(handler, authedRequest(http.MethodPost, "/api/items", marshal(t, map[string]any{
		"title": "Lamp", "category": "Furniture", "condition": "good", "exchangeType": "swap",
	}), ""))
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without identity, got %d", resp.Code)
	}

	// Health stays open.
	resp = do(handler, authedRequest(http.MethodGet, "/healthz", nil, ""))
	if resp.Code != http.StatusOK {
		t.Fatalf("healthz: expected 200, got %d", resp.Code)
	}
}

func TestHandler_AuditTrailRecordsMutations(t *testing.T) {
	handler := newTestHandler(t)

	createItem(t, handler, "alice", "Poster", "Other")

	resp := do(handler, authedRequest(http.MethodGet, "/api/audit", nil, "alice"))
	if resp.Code != http.StatusOK {
		t.Fatalf("audit: expected 200, got %d", resp.Code)
	}
	var audit struct {
		Entries []struct {
			User   string `json:"user"`
			Path   string `json:"path"`
			Method string `json:"method"`
			Status int    `json:"status"`
		} `json:"entries"`
	}
	decodeBody(t, resp, &audit)
	if len(audit.Entries) != 1 {
		t.Fatalf("expected one audit entry, got %+v", audit.Entries)
	}
	entry := audit.Entries[0]
	if entry.User != "alice" || entry.Method != http.MethodPost || entry.Path != "/api/items" || entry.Status != http.StatusCreated {
		t.Fatalf("unexpected audit entry: %+v", entry)
	}
}
