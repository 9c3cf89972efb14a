package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"battery-soh-api/config"
	"battery-soh-api/services"

	"github.com/gin-gonic/gin"
)

func authRouter(t *testing.T) (*gin.Engine, *services.AuthService) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	auth := services.NewAuthService(config.JWTConfig{Secret: "test-secret", ExpiryHours: 1})

	r := gin.New()
	r.GET("/protected", RequireAuth(auth), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": UserID(c)})
	})
	return r, auth
}

func TestRequireAuth(t *testing.T) {
	r, auth := authRouter(t)

	token, err := auth.GenerateToken(42, "a@b.com", "user")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"valid token", "Bearer " + token, http.StatusOK},
		{"lowercase scheme", "bearer " + token, http.StatusOK},
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + token, http.StatusUnauthorized},
		{"garbage token", "Bearer not.a.jwt", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/protected", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestRequireAuthRejectsOtherSecret(t *testing.T) {
	r, _ := authRouter(t)
	other := services.NewAuthService(config.JWTConfig{Secret: "different", ExpiryHours: 1})
	token, err := other.GenerateToken(1, "x@y.com", "user")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestUserIDWithoutAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	if got := UserID(c); got != 0 {
		t.Errorf("UserID = %d, want 0 on unauthenticated context", got)
	}
}
