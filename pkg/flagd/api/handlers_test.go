package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/flagd/pkg/flagd/auth"
	"github.com/mikepea/flagd/pkg/flagd/content"
	"github.com/mikepea/flagd/pkg/flagd/database"
	"github.com/mikepea/flagd/pkg/flagd/engine"
	"github.com/mikepea/flagd/pkg/flagd/models"
	"github.com/mikepea/flagd/pkg/flagd/settings"
	"github.com/mikepea/flagd/pkg/flagd/store"
	"gorm.io/gorm"
)

type testEnv struct {
	db     *gorm.DB
	router *gin.Engine
	tokens *auth.Tokens
}

func setupTestEnv(t *testing.T) *testEnv {
	db, err := database.Connect("sqlite://:memory:", 0, nil)
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	if err := models.AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate failed: %v", err)
	}
	db.Exec("CREATE TABLE posts (id INTEGER PRIMARY KEY, author_id INTEGER)")
	db.Exec("CREATE TABLE comments (id INTEGER PRIMARY KEY)")
	db.Exec("INSERT INTO posts (id) VALUES (1), (2)")
	db.Exec("INSERT INTO comments (id) VALUES (1)")

	opts := settings.Defaults()
	opts.NeedsTrust = true
	opts.LimitPerUserPerObject = 1
	noComments := false
	s, err := settings.New(opts, nil, map[string]settings.Override{
		"blog.comment": {AllowComments: &noComments},
	})
	if err != nil {
		t.Fatalf("settings.New failed: %v", err)
	}
	registry := content.MustRegistry(
		content.TypeSpec{Name: "blog.post", ID: 7, Table: "posts", CreatorFields: []string{"author_id"}},
		content.TypeSpec{Name: "blog.comment", Table: "comments"},
	)
	e, err := engine.New(engine.Config{
		Settings: s,
		Registry: registry,
		Resolver: content.NewGormResolver(db, registry),
		Store:    store.New(db, nil),
	})
	if err != nil {
		t.Fatalf("engine.New failed: %v", err)
	}

	tokens := auth.NewTokens("test-secret", time.Hour)
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewHandler(e, nil)
	api := r.Group("/api", auth.Middleware(tokens, auth.NewProvider(db, 10, time.Minute)))
	h.RegisterRoutes(api)
	h.RegisterAdminRoutes(api.Group("/admin", auth.RequireStaff()))

	return &testEnv{db: db, router: r, tokens: tokens}
}

func (env *testEnv) createUser(t *testing.T, name string, role models.SystemRole, joined time.Time) string {
	user := models.User{Email: name + "@example.com", Name: name, SystemRole: role, CreatedAt: joined}
	if err := env.db.Create(&user).Error; err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}
	token, err := env.tokens.Generate(user.ID)
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}
	return token
}

func (env *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("Failed to decode response %q: %v", w.Body.String(), err)
	}
}

var longAgo = time.Now().AddDate(-1, 0, 0)

func TestCreateFlag(t *testing.T) {
	env := setupTestEnv(t)
	token := env.createUser(t, "alice", models.SystemRoleUser, longAgo)

	w := env.do(t, http.MethodPost, "/api/flags", token, CreateFlagRequest{
		ContentType: "blog.post", ObjectID: 1, Comment: "spam",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
	}
	var ev FlagEventResponse
	decode(t, w, &ev)
	if ev.Status != 1 || ev.UserName != "alice" || ev.Comment == nil || *ev.Comment != "spam" {
		t.Errorf("Unexpected flag response %+v", ev)
	}

	w = env.do(t, http.MethodGet, "/api/flags/blog.post/1", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var info FlagInfoResponse
	decode(t, w, &info)
	if info.Count != 1 || !info.Flagged || info.Status == nil || info.Status.Label != "flagged" {
		t.Errorf("Unexpected summary %+v", info)
	}
	if info.CanFlag {
		t.Error("Expected can_flag false after reaching the per-user limit")
	}
}

func TestCreateFlagByNumericType(t *testing.T) {
	env := setupTestEnv(t)
	token := env.createUser(t, "alice", models.SystemRoleUser, longAgo)

	w := env.do(t, http.MethodPost, "/api/flags", token, CreateFlagRequest{ContentType: "7", ObjectID: 2})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
	}
}

func TestCreateFlagRejections(t *testing.T) {
	env := setupTestEnv(t)
	alice := env.createUser(t, "alice", models.SystemRoleUser, longAgo)
	newbie := env.createUser(t, "newbie", models.SystemRoleUser, time.Now())

	if w := env.do(t, http.MethodPost, "/api/flags", alice, CreateFlagRequest{ContentType: "blog.post", ObjectID: 1}); w.Code != http.StatusCreated {
		t.Fatalf("Expected first flag to succeed, got %d: %s", w.Code, w.Body.String())
	}

	three := 3
	tests := []struct {
		name     string
		token    string
		req      CreateFlagRequest
		wantCode int
		wantErr  string
	}{
		{"per-user limit", alice, CreateFlagRequest{ContentType: "blog.post", ObjectID: 1}, http.StatusBadRequest, "already_flagged_by_user"},
		{"untrusted", newbie, CreateFlagRequest{ContentType: "blog.post", ObjectID: 2}, http.StatusBadRequest, "user_not_trusted"},
		{"comment not allowed", alice, CreateFlagRequest{ContentType: "blog.comment", ObjectID: 1, Comment: "rude"}, http.StatusBadRequest, "comment_not_allowed"},
		{"missing item", alice, CreateFlagRequest{ContentType: "blog.post", ObjectID: 99}, http.StatusBadRequest, "content_not_found"},
		{"unknown type", alice, CreateFlagRequest{ContentType: "shop.item", ObjectID: 1}, http.StatusBadRequest, "content_not_found"},
		{"bad creator field", alice, CreateFlagRequest{ContentType: "blog.post", ObjectID: 2, CreatorField: "owner"}, http.StatusBadRequest, "unknown_creator_field"},
		{"status choice", alice, CreateFlagRequest{ContentType: "blog.post", ObjectID: 2, Status: &three}, http.StatusBadRequest, "not_authorized_for_status_change"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/api/flags", tt.token, tt.req)
			if w.Code != tt.wantCode {
				t.Fatalf("Expected status %d, got %d: %s", tt.wantCode, w.Code, w.Body.String())
			}
			var body map[string]string
			decode(t, w, &body)
			if body["code"] != tt.wantErr {
				t.Errorf("Expected code %q, got %q", tt.wantErr, body["code"])
			}
		})
	}
}

func TestConfirmHidesTrust(t *testing.T) {
	env := setupTestEnv(t)
	newbie := env.createUser(t, "newbie", models.SystemRoleUser, time.Now())

	w := env.do(t, http.MethodGet, "/api/flags/blog.comment/1/confirm", newbie, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var info FlagInfoResponse
	decode(t, w, &info)
	if info.Options == nil || info.Options.AllowComments {
		t.Errorf("Expected comments to be disabled for blog.comment, got %+v", info.Options)
	}
	if len(info.Options.Statuses) != 0 {
		t.Error("Expected no status choice for a plain user")
	}
}

func TestEventsRequireStaff(t *testing.T) {
	env := setupTestEnv(t)
	alice := env.createUser(t, "alice", models.SystemRoleUser, longAgo)
	bob := env.createUser(t, "bob", models.SystemRoleUser, longAgo)
	mod := env.createUser(t, "mod", models.SystemRoleModerator, longAgo)

	env.do(t, http.MethodPost, "/api/flags", alice, CreateFlagRequest{ContentType: "blog.post", ObjectID: 1, Comment: "one"})
	env.do(t, http.MethodPost, "/api/flags", bob, CreateFlagRequest{ContentType: "blog.post", ObjectID: 1, Comment: "two"})

	if w := env.do(t, http.MethodGet, "/api/flags/blog.post/1/events", alice, nil); w.Code != http.StatusForbidden {
		t.Errorf("Expected status 403, got %d", w.Code)
	}

	w := env.do(t, http.MethodGet, "/api/flags/blog.post/1/events", mod, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var evs []FlagEventResponse
	decode(t, w, &evs)
	if len(evs) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(evs))
	}
	if *evs[0].Comment != "two" || evs[0].UserName != "bob" {
		t.Errorf("Expected most recent flag first, got %+v", evs[0])
	}
}

func TestModerationQueueAndStatus(t *testing.T) {
	env := setupTestEnv(t)
	alice := env.createUser(t, "alice", models.SystemRoleUser, longAgo)
	mod := env.createUser(t, "mod", models.SystemRoleModerator, longAgo)

	env.do(t, http.MethodPost, "/api/flags", alice, CreateFlagRequest{ContentType: "blog.post", ObjectID: 1})
	env.do(t, http.MethodPost, "/api/flags", alice, CreateFlagRequest{ContentType: "blog.comment", ObjectID: 1})

	if w := env.do(t, http.MethodGet, "/api/admin/flags", alice, nil); w.Code != http.StatusForbidden {
		t.Errorf("Expected status 403 for non-staff, got %d", w.Code)
	}

	w := env.do(t, http.MethodGet, "/api/admin/flags?content_type=blog.post", mod, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var queue QueueResponse
	decode(t, w, &queue)
	if queue.Total != 1 || len(queue.Items) != 1 || queue.Items[0].StatusLabel != "flagged" {
		t.Errorf("Unexpected queue %+v", queue)
	}

	w = env.do(t, http.MethodPut, "/api/admin/flags/blog.post/1/status", mod, UpdateStatusRequest{Status: 5})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var entry LedgerResponse
	decode(t, w, &entry)
	if entry.Status != 5 || entry.StatusLabel != "content removed by moderator" || entry.ModeratorID == nil {
		t.Errorf("Unexpected ledger after status change %+v", entry)
	}

	if w := env.do(t, http.MethodPut, "/api/admin/flags/blog.post/1/status", mod, UpdateStatusRequest{Status: 42}); w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for invalid status, got %d", w.Code)
	}
	if w := env.do(t, http.MethodPut, "/api/admin/flags/blog.post/2/status", mod, UpdateStatusRequest{Status: 2}); w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 for never-flagged content, got %d", w.Code)
	}
	if w := env.do(t, http.MethodGet, "/api/admin/flags?status=abc", mod, nil); w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for bad filter, got %d", w.Code)
	}

	w = env.do(t, http.MethodGet, "/api/admin/flags?status=1", mod, nil)
	decode(t, w, &queue)
	if queue.Total != 1 || queue.Items[0].ContentType != "blog.comment" {
		t.Errorf("Expected only the comment to remain open, got %+v", queue)
	}
}

func TestRequiresAuth(t *testing.T) {
	env := setupTestEnv(t)
	if w := env.do(t, http.MethodGet, "/api/flags/blog.post/1", "", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", w.Code)
	}
}
