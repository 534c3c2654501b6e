package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/storymill/storymill/internal/db"
)

func TestParseLimit(t *testing.T) {
	t.Parallel()

	if got := parseLimit(""); got != defaultListLimit {
		t.Fatalf("expected default limit, got %d", got)
	}
	if got := parseLimit("abc"); got != defaultListLimit {
		t.Fatalf("expected default limit for garbage, got %d", got)
	}
	if got := parseLimit("-5"); got != defaultListLimit {
		t.Fatalf("expected default limit for negative value, got %d", got)
	}
	if got := parseLimit("25"); got != 25 {
		t.Fatalf("expected 25, got %d", got)
	}
	if got := parseLimit("99999"); got != maxListLimit {
		t.Fatalf("expected cap at %d, got %d", maxListLimit, got)
	}
}

func TestJsendEnvelopes(t *testing.T) {
	t.Parallel()

	e := echo.New()

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	if err := success(c, map[string]any{"ok": true}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var resp jsendResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Status != "success" {
		t.Fatalf("expected success status, got %q", resp.Status)
	}

	rec = httptest.NewRecorder()
	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	if err := failValidation(c, map[string]string{"reason": "must not be empty"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Status != "fail" {
		t.Fatalf("expected fail status, got %q", resp.Status)
	}

	rec = httptest.NewRecorder()
	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	if err := internalError(c, "boom"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Status != "error" || resp.Code != http.StatusInternalServerError {
		t.Fatalf("unexpected error envelope: %+v", resp)
	}
}

func TestIsNotFound(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "bare no rows", err: db.ErrNoRows, want: true},
		{name: "wrapped no rows", err: fmt.Errorf("complete queue item: %w", db.ErrNoRows), want: true},
		{name: "service not found", err: fmt.Errorf("topic article %s not found", "0b7a"), want: true},
		{name: "unrelated", err: errors.New("connection refused"), want: false},
	}
	for _, tc := range cases {
		if got := isNotFound(tc.err); got != tc.want {
			t.Fatalf("%s: isNotFound = %v, want %v", tc.name, got, tc.want)
		}
	}
}
