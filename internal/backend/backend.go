// Package backend はAuth/Dataサービスとの境界を定義する。
//
// アプリケーションはこのパッケージのインターフェースだけに依存し、
// 実装はlocal（PostgreSQL）とremote（Supabase互換HTTP API）から選択する。
package backend

import (
	"context"
	"time"

	"github.com/hitoshi/notesapp/internal/model"
)

// AuthEvent はセッション変更通知の種類を表す。
type AuthEvent string

const (
	EventInitialSession AuthEvent = "INITIAL_SESSION"
	EventSignedIn       AuthEvent = "SIGNED_IN"
	EventSignedOut      AuthEvent = "SIGNED_OUT"
	EventTokenRefreshed AuthEvent = "TOKEN_REFRESHED"
	EventUserUpdated    AuthEvent = "USER_UPDATED"
)

// Session はAuthサービスが発行したログインセッション。
// トークンの永続化はAuthサービス側（TokenStore）が担う。
type Session struct {
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time  `json:"expires_at"`
	User         model.User `json:"user"`
}

// Expired はnow時点でアクセストークンが期限切れかを返す。
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// SessionListener はセッション変更時に呼び出される。
// サインアウト時はsessionがnilになる。
type SessionListener func(event AuthEvent, session *Session)

// Auth は認証サービスのインターフェース。
type Auth interface {
	// GetSession は現在のセッションを返す。未ログインの場合はnilを返す。
	GetSession(ctx context.Context) (*Session, error)

	// OnSessionChange はセッション変更リスナーを登録し、登録解除関数を返す。
	// 登録解除関数は複数回呼び出しても安全。
	OnSessionChange(listener SessionListener) (unsubscribe func())

	// SignInWithPassword はメールアドレスとパスワードでサインインする。
	SignInWithPassword(ctx context.Context, email, password string) (*Session, error)

	// SignUp はユーザーを登録する。確認メールが必要な構成ではセッションはnilになる。
	SignUp(ctx context.Context, email, password string) (*Session, error)

	// SignOut は現在のセッションを破棄する。
	SignOut(ctx context.Context) error
}

// Data はnotesコレクションへのアクセスを提供する。
// 所有者によるアクセス制御はサービス側で行われる。
type Data interface {
	// ListNotes はuser_idが一致するメモをcreated_at降順で返す。
	ListNotes(ctx context.Context, userID string) ([]model.Note, error)

	// InsertNote はメモを作成する。idとcreated_atはサービスが割り当てる。
	InsertNote(ctx context.Context, note model.NewNote) error

	// DeleteNote はidが一致するメモを削除する。
	DeleteNote(ctx context.Context, id string) error
}

// Client はAuthとDataを合わせたサービスクライアント。
type Client interface {
	Auth
	Data

	// Ping はサービスへの疎通を確認する。
	Ping(ctx context.Context) error

	// Close はバックグラウンド処理を停止する。
	Close()
}
