package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/erazemk/lostfound/internal/auth"
	"github.com/erazemk/lostfound/internal/db"
	"github.com/erazemk/lostfound/internal/handoff"
	"github.com/erazemk/lostfound/internal/keywords"
	"github.com/erazemk/lostfound/internal/matching"
	"github.com/erazemk/lostfound/internal/model"
	"github.com/erazemk/lostfound/internal/notify"
	"github.com/erazemk/lostfound/internal/store"
	"github.com/erazemk/lostfound/internal/taxonomy"
)

const testJWTSecret = "test-secret"

type testServer struct {
	*httptest.Server
	db     *sql.DB
	tokens *auth.Tokens
	sent   *notify.Recorder
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	database := db.NewTestDB(t)
	rec := &notify.Recorder{}
	queue := notify.SyncDispatcher{Sink: rec}
	tokens := auth.NewTokens(testJWTSecret, 0)

	router := NewRouter(Deps{
		DB:               database,
		Tokens:           tokens,
		Registry:         matching.NewRegistry(database, matching.Options{Queue: queue}),
		Workflow:         handoff.NewWorkflow(database, queue, nil),
		Extractor:        keywords.NewExtractor(keywords.DefaultStopWords(), nil),
		Taxonomy:         taxonomy.Default(),
		StrictCategories: true,
	})
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return &testServer{Server: server, db: database, tokens: tokens, sent: rec}
}

// login creates an account with the given role and returns a token for it.
func (s *testServer) login(t *testing.T, username, role string) string {
	t.Helper()
	hash, err := auth.HashPassword("password")
	if err != nil {
		t.Fatalf("hashing password: %v", err)
	}
	if _, err := store.CreateUser(context.Background(), s.db, &model.User{
		Username: username, PasswordHash: hash, Role: role,
	}); err != nil {
		t.Fatalf("creating user: %v", err)
	}

	var resp loginResponse
	s.do(t, "POST", "/api/auth/login", "", map[string]string{"username": username, "password": "password"},
		http.StatusOK, &resp)
	if resp.Token == "" {
		t.Fatal("empty token from login")
	}
	return resp.Token
}

// do sends a JSON request, checks the status and decodes the response into out.
func (s *testServer) do(t *testing.T, method, path, token string, body any, wantStatus int, out any) {
	t.Helper()
	var reader io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("encoding body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, s.URL+path, reader)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		msg, _ := io.ReadAll(resp.Body)
		t.Fatalf("%s %s: status %d, want %d (%s)", method, path, resp.StatusCode, wantStatus, msg)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decoding %s %s: %v", method, path, err)
		}
	}
}

func (s *testServer) reportPair(t *testing.T, token string) (model.LostItem, model.FoundItem) {
	t.Helper()
	var lost model.LostItem
	s.do(t, "POST", "/api/lost", token, map[string]string{
		"title":       "Brown leather wallet",
		"description": "Has my student card inside",
		"location":    "Library",
		"date_lost":   "2024-03-01",
		"owner_name":  "Ana",
		"owner_email": "ana@campus.test",
		"category":    "Accessories",
		"subcategory": "Wallet / Purse",
	}, http.StatusCreated, &lost)

	var found model.FoundItem
	s.do(t, "POST", "/api/found", token, map[string]string{
		"title":          "Leather wallet",
		"description":    "Brown, student card inside",
		"location":       "Library second floor",
		"date_found":     "2024-03-03",
		"reporter_email": "ben@campus.test",
		"category":       "accessories",
		"subcategory":    "wallet / purse",
	}, http.StatusCreated, &found)
	return lost, found
}

func TestLoginEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.login(t, "admin", model.RoleAdmin)

	s.do(t, "POST", "/api/auth/login", "", map[string]string{"username": "admin", "password": "wrong"},
		http.StatusUnauthorized, nil)
	s.do(t, "POST", "/api/auth/login", "", map[string]string{"username": "nobody", "password": "password"},
		http.StatusUnauthorized, nil)
}

func TestLogoutRevokesToken(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, "admin", model.RoleAdmin)

	s.do(t, "GET", "/api/lost", token, nil, http.StatusOK, nil)
	s.do(t, "POST", "/api/auth/logout", token, nil, http.StatusOK, nil)
	s.do(t, "GET", "/api/lost", token, nil, http.StatusUnauthorized, nil)
}

func TestUnauthenticatedAccess(t *testing.T) {
	s := newTestServer(t)
	s.do(t, "GET", "/api/lost", "", nil, http.StatusUnauthorized, nil)
	s.do(t, "GET", "/api/found", "garbage", nil, http.StatusUnauthorized, nil)

	var categories []taxonomy.Category
	s.do(t, "GET", "/api/categories", "", nil, http.StatusOK, &categories)
	if len(categories) == 0 {
		t.Error("expected categories to be public")
	}
}

func TestRoleBasedAccess(t *testing.T) {
	s := newTestServer(t)
	userToken := s.login(t, "student", model.RoleUser)
	staffToken := s.login(t, "staff", model.RoleStaff)

	lost, found := s.reportPair(t, userToken)
	pair := pairRequest{LostItemID: lost.ID, FoundItemID: found.ID}

	s.do(t, "POST", "/api/matches/confirm", userToken, pair, http.StatusForbidden, nil)
	s.do(t, "GET", "/api/users", userToken, nil, http.StatusForbidden, nil)
	s.do(t, "GET", "/api/users", staffToken, nil, http.StatusForbidden, nil)

	var m model.ItemMatch
	s.do(t, "POST", "/api/matches/confirm", staffToken, pair, http.StatusOK, &m)

	var handoffs []model.Handoff
	s.do(t, "GET", "/api/handoffs", staffToken, nil, http.StatusOK, &handoffs)
	if len(handoffs) != 1 {
		t.Fatalf("expected 1 handoff, got %d", len(handoffs))
	}
	s.do(t, "DELETE", "/api/handoffs/"+itoa(handoffs[0].ID), staffToken, nil, http.StatusForbidden, nil)
}

func TestReportValidation(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, "student", model.RoleUser)

	// Outside the taxonomy.
	s.do(t, "POST", "/api/lost", token, map[string]string{
		"title": "Thing", "owner_email": "a@campus.test", "category": "Gadgets", "subcategory": "Gizmo",
	}, http.StatusBadRequest, nil)

	// Missing owner email.
	s.do(t, "POST", "/api/lost", token, map[string]string{
		"title": "Umbrella", "category": "Personal Items", "subcategory": "Umbrella",
	}, http.StatusBadRequest, nil)

	// A malformed date is dropped, not rejected.
	var lost model.LostItem
	s.do(t, "POST", "/api/lost", token, map[string]string{
		"title": "Black umbrella", "owner_email": "a@campus.test", "date_lost": "last tuesday",
		"category": "personal items", "subcategory": "umbrella",
	}, http.StatusCreated, &lost)
	if lost.DateLost != nil {
		t.Errorf("expected no date, got %v", lost.DateLost)
	}
	if lost.Category != "Personal Items" || lost.Subcategory != "Umbrella" {
		t.Errorf("filing not canonicalized: %q / %q", lost.Category, lost.Subcategory)
	}
	if !lost.Keywords.Has("umbrella") || !lost.Keywords.Has("black") {
		t.Errorf("unexpected keywords %v", lost.Keywords.Sorted())
	}
}

func TestMatchAndHandoffFlow(t *testing.T) {
	s := newTestServer(t)
	staff := s.login(t, "staff", model.RoleStaff)
	admin := s.login(t, "admin", model.RoleAdmin)
	lost, found := s.reportPair(t, staff)

	var candidates []model.LostItem
	s.do(t, "GET", "/api/found/"+itoa(found.ID)+"/candidates", staff, nil, http.StatusOK, &candidates)
	if len(candidates) != 1 || candidates[0].ID != lost.ID {
		t.Fatalf("unexpected candidates %+v", candidates)
	}

	var weighted []matching.Candidate
	s.do(t, "GET", "/api/found/"+itoa(found.ID)+"/matches", staff, nil, http.StatusOK, &weighted)
	if len(weighted) != 1 || weighted[0].Confidence <= 0 {
		t.Fatalf("unexpected weighted candidates %+v", weighted)
	}

	pair := pairRequest{LostItemID: lost.ID, FoundItemID: found.ID}
	var first, second model.ItemMatch
	s.do(t, "POST", "/api/matches/confirm", staff, pair, http.StatusOK, &first)
	s.do(t, "POST", "/api/matches/confirm", staff, pair, http.StatusOK, &second)
	if first.ID != second.ID || first.Status != model.MatchStatusConfirmed {
		t.Fatalf("confirm not idempotent: %+v vs %+v", first, second)
	}
	if got := len(s.sent.Events()); got != 2 {
		t.Errorf("expected 2 notifications after confirm, got %d", got)
	}

	var handoffs []model.Handoff
	s.do(t, "GET", "/api/handoffs?status=pending", staff, nil, http.StatusOK, &handoffs)
	if len(handoffs) != 1 {
		t.Fatalf("expected 1 pending handoff, got %d", len(handoffs))
	}
	hid := itoa(handoffs[0].ID)

	s.do(t, "PUT", "/api/handoffs/"+hid, staff, map[string]string{"status": "CANCELLED"}, http.StatusBadRequest, nil)
	s.do(t, "PUT", "/api/handoffs/"+hid, staff, map[string]string{
		"status": "SCHEDULED", "assigned_to": "staff", "location": "Front desk",
		"scheduled_time": "2024-03-05T14:00:00Z",
	}, http.StatusOK, nil)

	var done model.Handoff
	s.do(t, "PUT", "/api/handoffs/"+hid, staff, map[string]string{"status": "COMPLETED"}, http.StatusOK, &done)
	if done.CompletedBy != "staff" || done.CompletedAt == nil {
		t.Errorf("completion not recorded: %+v", done)
	}

	var returned model.LostItem
	s.do(t, "GET", "/api/lost/"+itoa(lost.ID), staff, nil, http.StatusOK, &returned)
	if returned.Status != model.LostStatusReturned {
		t.Errorf("lost item status %s, want RETURNED", returned.Status)
	}

	s.do(t, "DELETE", "/api/handoffs/"+hid, admin, nil, http.StatusConflict, nil)
	s.do(t, "PUT", "/api/handoffs/"+hid, staff, map[string]string{"status": "PENDING"}, http.StatusConflict, nil)
	s.do(t, "DELETE", "/api/matches/"+itoa(first.ID), staff, nil, http.StatusConflict, nil)

	var report []matching.FoundWithMatches
	s.do(t, "GET", "/api/matches/scores", staff, nil, http.StatusOK, &report)
	if len(report) != 1 {
		t.Errorf("expected one found item in the report, got %d", len(report))
	}
}

func TestConfirmConflictAndRelease(t *testing.T) {
	s := newTestServer(t)
	staff := s.login(t, "staff", model.RoleStaff)
	lost, found := s.reportPair(t, staff)

	var other model.LostItem
	s.do(t, "POST", "/api/lost", staff, map[string]string{
		"title": "Leather wallet", "owner_email": "cid@campus.test",
		"category": "Accessories", "subcategory": "Wallet / Purse",
	}, http.StatusCreated, &other)

	var m model.ItemMatch
	s.do(t, "POST", "/api/matches/confirm", staff, pairRequest{LostItemID: lost.ID, FoundItemID: found.ID},
		http.StatusOK, &m)
	s.do(t, "POST", "/api/matches/confirm", staff, pairRequest{LostItemID: other.ID, FoundItemID: found.ID},
		http.StatusConflict, nil)
	s.do(t, "POST", "/api/matches/confirm", staff, pairRequest{LostItemID: 999, FoundItemID: found.ID},
		http.StatusNotFound, nil)

	s.do(t, "DELETE", "/api/matches/"+itoa(m.ID), staff, nil, http.StatusOK, nil)

	var freed model.FoundItem
	s.do(t, "GET", "/api/found/"+itoa(found.ID), staff, nil, http.StatusOK, &freed)
	if freed.Status != model.FoundStatusUnclaimed {
		t.Errorf("found item status %s, want UNCLAIMED", freed.Status)
	}

	var matches []model.ItemMatch
	s.do(t, "GET", "/api/matches?status=CONFIRMED", staff, nil, http.StatusOK, &matches)
	if len(matches) != 0 {
		t.Errorf("expected no confirmed matches after release, got %d", len(matches))
	}
}

func TestPhotoUpload(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, "student", model.RoleUser)
	lost, _ := s.reportPair(t, token)

	img := image.NewRGBA(image.Rect(0, 0, 64, 32))
	for x := 0; x < 64; x++ {
		for y := 0; y < 32; y++ {
			img.Set(x, y, color.RGBA{90, 60, 30, 255})
		}
	}
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("photo", "wallet.png")
	if err != nil {
		t.Fatalf("creating form file: %v", err)
	}
	if err := png.Encode(part, img); err != nil {
		t.Fatalf("encoding png: %v", err)
	}
	mw.Close()

	req, _ := http.NewRequest("PUT", s.URL+"/api/lost/"+itoa(lost.ID)+"/photo", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := s.Client().Do(req)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("upload status %d", resp.StatusCode)
	}

	req, _ = http.NewRequest("GET", s.URL+"/api/lost/"+itoa(lost.ID)+"/photo", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err = s.Client().Do(req)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "image/jpeg" {
		t.Fatalf("download status %d type %q", resp.StatusCode, resp.Header.Get("Content-Type"))
	}

	s.do(t, "GET", "/api/found/12345/photo", token, nil, http.StatusNotFound, nil)
}

func TestUsersAdmin(t *testing.T) {
	s := newTestServer(t)
	admin := s.login(t, "admin", model.RoleAdmin)

	var u model.User
	s.do(t, "POST", "/api/users", admin, map[string]string{
		"username": "marta", "password": "longenough", "role": model.RoleStaff, "email": "marta@campus.test",
	}, http.StatusCreated, &u)
	s.do(t, "POST", "/api/users", admin, map[string]string{
		"username": "marta", "password": "longenough", "role": model.RoleStaff,
	}, http.StatusConflict, nil)
	s.do(t, "POST", "/api/users", admin, map[string]string{
		"username": "short", "password": "x", "role": model.RoleStaff,
	}, http.StatusBadRequest, nil)

	s.do(t, "PUT", "/api/users/"+itoa(u.ID), admin, map[string]string{"role": "wizard"}, http.StatusBadRequest, nil)
	s.do(t, "PUT", "/api/users/"+itoa(u.ID), admin, map[string]string{"role": model.RoleAdmin}, http.StatusOK, &u)
	if u.Role != model.RoleAdmin {
		t.Errorf("role = %s, want admin", u.Role)
	}

	s.do(t, "DELETE", "/api/users/"+itoa(u.ID), admin, nil, http.StatusOK, nil)
	s.do(t, "DELETE", "/api/users/"+itoa(u.ID), admin, nil, http.StatusNotFound, nil)
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
