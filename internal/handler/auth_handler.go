// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/notesapp/internal/auth"
	"github.com/hitoshi/notesapp/internal/backend"
	"github.com/hitoshi/notesapp/internal/session"
)

// AuthForm は認証フォームハンドラーが必要とするフォームのインターフェース。
type AuthForm interface {
	Label() string
	Submitting() bool
	Submit(ctx context.Context, email, password string) auth.Result
}

// SignOuter はサインアウトに必要なインターフェース。
type SignOuter interface {
	SignOut(ctx context.Context) error
}

// SessionSource は現在のセッション状態を提供するインターフェース。
type SessionSource interface {
	Current() session.State
}

// authFormData はログイン・登録画面の描画データ。
type authFormData struct {
	Email       string
	Message     string
	FieldErrors map[string]string
	Label       string
	Submitting  bool
}

// AuthHandler はログイン・登録・サインアウトのHTTPハンドラー。
type AuthHandler struct {
	login    AuthForm
	register AuthForm
	signOut  SignOuter
	sessions SessionSource
	renderer *Renderer
	logger   *slog.Logger
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(login, register AuthForm, signOut SignOuter, sessions SessionSource, renderer *Renderer, logger *slog.Logger) *AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandler{
		login:    login,
		register: register,
		signOut:  signOut,
		sessions: sessions,
		renderer: renderer,
		logger:   logger,
	}
}

// ShowLogin はログイン画面を表示する。
// GET /login
func (h *AuthHandler) ShowLogin(w http.ResponseWriter, r *http.Request) {
	h.renderForm(w, r, http.StatusOK, pageLogin, h.login, auth.Result{})
}

// SubmitLogin はログインフォームを処理する。成功時はホームへリダイレクトする。
// POST /login
func (h *AuthHandler) SubmitLogin(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, pageLogin, h.login)
}

// ShowRegister は登録画面を表示する。
// GET /register
func (h *AuthHandler) ShowRegister(w http.ResponseWriter, r *http.Request) {
	h.renderForm(w, r, http.StatusOK, pageRegister, h.register, auth.Result{})
}

// SubmitRegister は登録フォームを処理する。成功時はホームへリダイレクトする。
// POST /register
func (h *AuthHandler) SubmitRegister(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, pageRegister, h.register)
}

// Logout はセッションを破棄してログイン画面へリダイレクトする。
// サービス側の失敗はログに記録し、リダイレクトは常に行う。
// POST /logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.signOut.SignOut(r.Context()); err != nil {
		h.logger.Error("failed to sign out", slog.String("error", err.Error()))
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (h *AuthHandler) submit(w http.ResponseWriter, r *http.Request, page string, form AuthForm) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	res := form.Submit(r.Context(), r.PostFormValue("email"), r.PostFormValue("password"))
	if res.OK {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	h.renderForm(w, r, statusForAuthResult(res), page, form, res)
}

func (h *AuthHandler) renderForm(w http.ResponseWriter, r *http.Request, status int, page string, form AuthForm, res auth.Result) {
	title := "Connexion"
	if page == pageRegister {
		title = "Inscription"
	}

	h.renderer.Render(w, r, status, page, title, h.sessions.Current(), authFormData{
		Email:       res.Email,
		Message:     res.Message,
		FieldErrors: res.FieldErrors,
		Label:       form.Label(),
		Submitting:  form.Submitting(),
	})
}

// statusForAuthResult は失敗したフォーム送信の応答ステータスを返す。
func statusForAuthResult(res auth.Result) int {
	if res.FieldErrors != nil {
		return http.StatusUnprocessableEntity
	}
	if errors.Is(res.Err, auth.ErrSubmitInFlight) {
		return http.StatusConflict
	}
	var svcErr *backend.Error
	if errors.As(res.Err, &svcErr) && svcErr.Status >= 400 && svcErr.Status < 500 {
		return svcErr.Status
	}
	return http.StatusBadGateway
}
