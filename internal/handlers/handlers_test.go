package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anonto42/nano-midea/socialgraph/internal/services"
	"github.com/labstack/echo/v4"
)

func newContext(target string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		kind error
		want int
	}{
		{services.ErrBadRequest, http.StatusBadRequest},
		{services.ErrNotFound, http.StatusNotFound},
		{services.ErrUnauthorized, http.StatusUnauthorized},
		{services.ErrForbidden, http.StatusForbidden},
		{services.ErrDuplicate, http.StatusConflict},
		{errors.New("other"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.kind); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.kind, got, tt.want)
		}
	}
}

func TestHTTPErrorHidesInternalErrors(t *testing.T) {
	c, _ := newContext("/")

	err := httpError(c, fmt.Errorf("wrapped: %w", &services.Error{Kind: services.ErrNotFound, Message: "user not found"}))
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusNotFound || he.Message != "user not found" {
		t.Errorf("unexpected error %#v", err)
	}

	err = httpError(c, errors.New("pq: connection refused"))
	he, ok = err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusInternalServerError || he.Message != "Internal server error" {
		t.Errorf("unexpected error %#v", err)
	}
}

func TestPageParams(t *testing.T) {
	tests := []struct {
		query           string
		wantPage, wantN int
	}{
		{"", 1, 20},
		{"?page=3&limit=5", 3, 5},
		{"?page=0&limit=0", 1, 20},
		{"?page=-2&limit=500", 1, 20},
		{"?page=abc&limit=50", 1, 50},
		{"?page=9223372036854775807&limit=50", maxPage, 50},
		{"?page=10001", maxPage, 20},
	}
	for _, tt := range tests {
		c, _ := newContext("/" + tt.query)
		page, limit := pageParams(c, 20)
		if page != tt.wantPage || limit != tt.wantN {
			t.Errorf("%q: got (%d, %d), want (%d, %d)", tt.query, page, limit, tt.wantPage, tt.wantN)
		}
	}
}

func TestPageMeta(t *testing.T) {
	meta := pageMeta(2, 10, 25)
	if meta["totalPages"] != 3 || meta["hasNextPage"] != true || meta["hasPreviousPage"] != true {
		t.Errorf("unexpected meta %v", meta)
	}
	meta = pageMeta(1, 10, 0)
	if meta["totalPages"] != 0 || meta["hasNextPage"] != false || meta["hasPreviousPage"] != false {
		t.Errorf("unexpected empty meta %v", meta)
	}
}

func TestCurrentUserIDWithoutClaims(t *testing.T) {
	c, _ := newContext("/")
	_, err := currentUserID(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %v", err)
	}
}

func TestHealthCheck(t *testing.T) {
	up := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("unreachable") }

	tests := []struct {
		name   string
		checks map[string]Pinger
		want   int
	}{
		{"no checks", nil, http.StatusOK},
		{"all up", map[string]Pinger{"postgres": up, "mongo": up}, http.StatusOK},
		{"one down", map[string]Pinger{"postgres": up, "redis": down}, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, rec := newContext("/health")
			if err := HealthCheck(tt.checks)(c); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}
