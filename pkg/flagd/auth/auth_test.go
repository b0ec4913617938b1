package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/flagd/pkg/flagd/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	models.AutoMigrate(db)
	return db
}

func createTestUser(t *testing.T, db *gorm.DB, email string, role models.SystemRole) models.User {
	user := models.User{Email: email, Name: "Test User", SystemRole: role}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}
	return user
}

func setupTestRouter(tokens *Tokens, dir Directory) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	api := r.Group("/api", Middleware(tokens, dir))
	api.GET("/me", func(c *gin.Context) {
		u, _ := Current(c)
		c.JSON(http.StatusOK, u)
	})
	api.GET("/staff", RequireStaff(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func TestJWTToken(t *testing.T) {
	tokens := NewTokens("test-secret", time.Hour)
	token, err := tokens.Generate(7)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	claims, err := tokens.Validate(token)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if claims.UserID != 7 {
		t.Errorf("Expected UserID 7, got %d", claims.UserID)
	}
	if claims.Subject != "7" {
		t.Errorf("Expected subject 7, got %s", claims.Subject)
	}
}

func TestInvalidToken(t *testing.T) {
	tokens := NewTokens("test-secret", time.Hour)

	if _, err := tokens.Validate("invalid-token"); err != ErrInvalidToken {
		t.Errorf("Expected ErrInvalidToken, got %v", err)
	}

	other, _ := NewTokens("other-secret", time.Hour).Generate(1)
	if _, err := tokens.Validate(other); err != ErrInvalidToken {
		t.Errorf("Expected ErrInvalidToken for foreign signature, got %v", err)
	}
}

func TestExpiredToken(t *testing.T) {
	tokens := NewTokens("test-secret", time.Hour)
	tokens.ttl = -time.Minute

	token, err := tokens.Generate(1)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if _, err := tokens.Validate(token); err != ErrExpiredToken {
		t.Errorf("Expected ErrExpiredToken, got %v", err)
	}
}

func TestProviderLookup(t *testing.T) {
	db := setupTestDB(t)
	mod := createTestUser(t, db, "mod@example.com", models.SystemRoleModerator)
	p := NewProvider(db, 10, time.Minute)

	u, err := p.Lookup(context.Background(), mod.ID)
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if !u.Staff || !u.Active || !u.Authenticated {
		t.Errorf("Expected active authenticated staff, got %+v", u)
	}
	if !u.JoinedAt.Equal(mod.CreatedAt) {
		t.Errorf("Expected JoinedAt %v, got %v", mod.CreatedAt, u.JoinedAt)
	}

	// cached copy survives the row changing until forgotten
	db.Model(&models.User{}).Where("id = ?", mod.ID).Update("system_role", models.SystemRoleUser)
	if u, _ := p.Lookup(context.Background(), mod.ID); !u.Staff {
		t.Error("Expected cached lookup to return the earlier role")
	}
	p.forget(mod.ID)
	if u, _ := p.Lookup(context.Background(), mod.ID); u.Staff {
		t.Error("Expected fresh lookup after forget")
	}

	if _, err := p.Lookup(context.Background(), 9999); err == nil {
		t.Error("Expected error for unknown user")
	}

	names := p.Names(context.Background(), mod.ID, 9999)
	if len(names) != 1 || names[mod.ID] != "Test User" {
		t.Errorf("Unexpected names %v", names)
	}
}

func TestMiddleware(t *testing.T) {
	db := setupTestDB(t)
	user := createTestUser(t, db, "user@example.com", models.SystemRoleUser)
	admin := createTestUser(t, db, "admin@example.com", models.SystemRoleAdmin)
	tokens := NewTokens("test-secret", time.Hour)
	router := setupTestRouter(tokens, NewProvider(db, 10, time.Minute))

	userToken, _ := tokens.Generate(user.ID)
	adminToken, _ := tokens.Generate(admin.ID)
	ghostToken, _ := tokens.Generate(4242)

	tests := []struct {
		name   string
		path   string
		header string
		want   int
	}{
		{"no header", "/api/me", "", http.StatusUnauthorized},
		{"bad format", "/api/me", "Token abc", http.StatusUnauthorized},
		{"bad token", "/api/me", "Bearer abc", http.StatusUnauthorized},
		{"unknown user", "/api/me", "Bearer " + ghostToken, http.StatusUnauthorized},
		{"user", "/api/me", "Bearer " + userToken, http.StatusOK},
		{"user on staff route", "/api/staff", "Bearer " + userToken, http.StatusForbidden},
		{"admin on staff route", "/api/staff", "Bearer " + adminToken, http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Errorf("Expected status %d, got %d: %s", tt.want, w.Code, w.Body.String())
			}
		})
	}
}
