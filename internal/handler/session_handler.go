package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// Pinger はサービスへの疎通確認に必要なインターフェース。
type Pinger interface {
	Ping(ctx context.Context) error
}

// sessionUserResponse はセッションユーザーのJSON表現。
type sessionUserResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// sessionResponse はGET /api/sessionのレスポンス。
type sessionResponse struct {
	User      *sessionUserResponse `json:"user"`
	IsLoading bool                 `json:"is_loading"`
}

// Session は現在のセッション状態を返す。解決中はユーザーを含めない。
// GET /api/session
func Session(sessions SessionSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state := sessions.Current()

		resp := sessionResponse{IsLoading: state.IsLoading}
		if state.Authenticated() {
			resp.User = &sessionUserResponse{
				ID:    state.User.ID,
				Email: state.User.Email,
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		json.NewEncoder(w).Encode(resp)
	}
}

// Health はAuth/Dataサービスへの疎通を確認する。
// GET /health
func Health(pinger Pinger, timeout time.Duration, logger *slog.Logger) http.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		w.Header().Set("Content-Type", "application/json")

		if err := pinger.Ping(ctx); err != nil {
			logger.Warn("health check failed", slog.String("error", err.Error()))
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{"status": "unavailable"})
			return
		}

		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}
