// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"net/http"

	"github.com/hitoshi/notesapp/internal/model"
	"github.com/hitoshi/notesapp/internal/session"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// userContextKey はリクエストコンテキストにユーザーを格納するためのキー。
var userContextKey = contextKey("user")

// loadingPage はセッション解決中に返すページ。1秒後に再読み込みする。
const loadingPage = `<!DOCTYPE html>
<html lang="fr">
<head><meta charset="utf-8"><meta http-equiv="refresh" content="1"><title>Chargement...</title></head>
<body><p>Chargement...</p></body>
</html>
`

// SessionSource は現在のセッション状態を提供するインターフェース。
// session.Managerが実装する。
type SessionSource interface {
	Current() session.State
}

// GuardConfig はルートガードの設定。
type GuardConfig struct {
	LoginPath string // 未認証時のリダイレクト先
}

// NewGuardMiddleware は保護された画面へのアクセスを制御するミドルウェアを返す。
// セッション解決中は待機ページを返し、リダイレクトしない。
// 解決済みでユーザーがいない場合はログイン画面へ303でリダイレクトする。
// ユーザーがいる場合はリクエストコンテキストにユーザーを注入する。
func NewGuardMiddleware(source SessionSource, config GuardConfig) func(next http.Handler) http.Handler {
	loginPath := config.LoginPath
	if loginPath == "" {
		loginPath = "/login"
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			state := source.Current()

			// 1. 解決中はリダイレクトせずに待機
			if state.IsLoading {
				w.Header().Set("Content-Type", "text/html; charset=utf-8")
				w.Header().Set("Cache-Control", "no-store")
				w.WriteHeader(http.StatusOK)
				fmt.Fprint(w, loadingPage)
				return
			}

			// 2. 未認証はログイン画面へ
			if state.User == nil {
				http.Redirect(w, r, loginPath, http.StatusSeeOther)
				return
			}

			// 3. ユーザーをコンテキストに注入
			next.ServeHTTP(w, r.WithContext(ContextWithUser(r.Context(), state.User)))
		})
	}
}

// NewAPIGuardMiddleware はJSON APIのルートガードを返す。
// 解決中は503、未認証は401を統一エラーフォーマットで返す。
func NewAPIGuardMiddleware(source SessionSource) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			state := source.Current()

			if state.IsLoading {
				w.Header().Set("Retry-After", "1")
				WriteErrorResponse(w, http.StatusServiceUnavailable, model.NewSessionLoadingError())
				return
			}
			if state.User == nil {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithUser(r.Context(), state.User)))
		})
	}
}

// UserFromContext はリクエストコンテキストからユーザーを取得する。
// ガードミドルウェアを通過したリクエストでのみ有効。
func UserFromContext(ctx context.Context) (*model.User, error) {
	user, ok := ctx.Value(userContextKey).(*model.User)
	if !ok || user == nil || user.ID == "" {
		return nil, fmt.Errorf("user not found in context")
	}
	return user, nil
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
func UserIDFromContext(ctx context.Context) (string, error) {
	user, err := UserFromContext(ctx)
	if err != nil {
		return "", err
	}
	return user.ID, nil
}

// ContextWithUser はコンテキストにユーザーを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUser(ctx context.Context, user *model.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}
