package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/anonto42/nano-midea/socialgraph/internal/models"
	"github.com/golang-jwt/jwt/v4"
	"github.com/labstack/echo/v4"
)

func sign(t *testing.T, secret string, claims *models.JwtCustomClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func TestJWTAuthMiddleware(t *testing.T) {
	const secret = "test-secret"
	valid := &models.JwtCustomClaims{
		UserID:   7,
		Username: "alice",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	expired := &models.JwtCustomClaims{
		UserID: 7,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	}

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"garbage token", "Bearer not-a-token", http.StatusUnauthorized},
		{"other secret", "Bearer " + sign(t, "other", valid), http.StatusUnauthorized},
		{"expired", "Bearer " + sign(t, secret, expired), http.StatusUnauthorized},
		{"valid", "Bearer " + sign(t, secret, valid), http.StatusOK},
	}

	e := echo.New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			var seen uint
			h := JWTAuthMiddleware(secret)(func(c echo.Context) error {
				seen = c.Get("user").(*models.JwtCustomClaims).UserID
				return c.NoContent(http.StatusOK)
			})

			err := h(c)
			if tt.want == http.StatusOK {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if seen != 7 {
					t.Errorf("claims user = %d, want 7", seen)
				}
				return
			}
			he, ok := err.(*echo.HTTPError)
			if !ok {
				t.Fatalf("expected *echo.HTTPError, got %v", err)
			}
			if he.Code != tt.want {
				t.Errorf("status = %d, want %d", he.Code, tt.want)
			}
		})
	}
}
