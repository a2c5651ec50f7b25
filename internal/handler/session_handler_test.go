package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/notesapp/internal/model"
	"github.com/hitoshi/notesapp/internal/session"
)

func TestSessionHandler(t *testing.T) {
	tests := []struct {
		name        string
		state       session.State
		wantLoading bool
		wantUserID  string
	}{
		{"loading", session.State{IsLoading: true, User: &model.User{ID: "stale"}}, true, ""},
		{"signed out", session.State{}, false, ""},
		{"signed in", session.State{User: &model.User{ID: "u1", Email: "a@b.com"}}, false, "u1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			Session(&mockSessions{state: tt.state})(w, httptest.NewRequest(http.MethodGet, "/api/session", nil))

			var body struct {
				User *struct {
					ID    string `json:"id"`
					Email string `json:"email"`
				} `json:"user"`
				IsLoading bool `json:"is_loading"`
			}
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode: %v", err)
			}
			if body.IsLoading != tt.wantLoading {
				t.Errorf("is_loading = %v, want %v", body.IsLoading, tt.wantLoading)
			}
			if tt.wantUserID == "" && body.User != nil {
				t.Errorf("user = %+v, want null", body.User)
			}
			if tt.wantUserID != "" && (body.User == nil || body.User.ID != tt.wantUserID) {
				t.Errorf("user = %+v, want %s", body.User, tt.wantUserID)
			}
		})
	}
}

func TestHealthHandler(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantBody   string
	}{
		{"ok", nil, http.StatusOK, "ok"},
		{"unavailable", errors.New("connection refused"), http.StatusServiceUnavailable, "unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			Health(&mockPinger{err: tt.err}, time.Second, nil)(w, httptest.NewRequest(http.MethodGet, "/health", nil))

			if w.Result().StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Result().StatusCode, tt.wantStatus)
			}
			var body map[string]string
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode: %v", err)
			}
			if body["status"] != tt.wantBody {
				t.Errorf("status field = %q, want %q", body["status"], tt.wantBody)
			}
		})
	}
}
