package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/notesapp/internal/metrics"
	"github.com/hitoshi/notesapp/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// セッション
	Sessions middleware.SessionSource

	// ミドルウェア依存
	RateLimiter *middleware.RateLimiter
	CSRF        middleware.CSRFConfig
	Metrics     metrics.MetricsCollector
	Logger      *slog.Logger

	// 画面
	Renderer     *Renderer
	LoginForm    AuthForm
	RegisterForm AuthForm
	SignOut      SignOuter
	Notes        NotesController

	// 運用
	Pinger         Pinger
	HealthTimeout  time.Duration
	MetricsHandler http.Handler
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → SecurityHeaders → CSRF → Guard → RateLimit(General)
//
// /health と /metrics はCSRFの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewLoggingMiddleware(logger, deps.Sessions, deps.Metrics))
	r.Use(middleware.NewSecurityHeadersMiddleware())

	authHandler := NewAuthHandler(deps.LoginForm, deps.RegisterForm, deps.SignOut, deps.Sessions, deps.Renderer, logger)
	notesHandler := NewNotesHandler(deps.Notes, deps.Sessions, deps.Renderer, logger)

	// --- 運用エンドポイント ---
	r.Get("/health", Health(deps.Pinger, deps.HealthTimeout, logger))
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.NewCSRFMiddleware(deps.CSRF))

		// --- 認証不要のルート ---
		r.Get("/login", authHandler.ShowLogin)
		r.With(deps.RateLimiter.AuthMiddleware()).Post("/login", authHandler.SubmitLogin)
		r.Get("/register", authHandler.ShowRegister)
		r.With(deps.RateLimiter.AuthMiddleware()).Post("/register", authHandler.SubmitRegister)
		r.Post("/logout", authHandler.Logout)

		r.Get("/api/session", Session(deps.Sessions))
		r.Get("/api/csrf-token", middleware.NewCSRFTokenHandler().ServeHTTP)

		// --- 画面（ガード: Guard → RateLimit(General)） ---
		r.Group(func(r chi.Router) {
			r.Use(middleware.NewGuardMiddleware(deps.Sessions, middleware.GuardConfig{LoginPath: "/login"}))
			r.Use(deps.RateLimiter.GeneralMiddleware())

			r.Get("/", notesHandler.Home)
			r.Post("/notes", notesHandler.AddNote)
			r.Post("/notes/form", notesHandler.ToggleForm)
			r.Post("/notes/{id}/delete", notesHandler.DeleteNote)
		})

		// --- JSON API（ガード: 401/503） ---
		r.Group(func(r chi.Router) {
			r.Use(middleware.NewAPIGuardMiddleware(deps.Sessions))
			r.Use(deps.RateLimiter.GeneralMiddleware())

			r.Get("/api/notes", notesHandler.ListNotes)
		})
	})

	return r
}
