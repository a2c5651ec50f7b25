// Package remote はSupabase互換のHTTP API（GoTrue認証 + PostgRESTデータ）を
// 使用するbackend.Client実装を提供する。
package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/hitoshi/notesapp/internal/backend"
	"github.com/hitoshi/notesapp/internal/model"
)

// Config はremoteバックエンドの設定。
type Config struct {
	URL           string        // プロジェクトURL（例: https://xyz.supabase.co）
	AnonKey       string        // 公開APIキー
	Timeout       time.Duration // 1リクエストあたりのタイムアウト
	RefreshMargin time.Duration // 有効期限のこの時間前からトークンを更新する
}

// Client はremoteバックエンドのbackend.Client実装。
type Client struct {
	http      *resty.Client
	anonKey   string
	margin    time.Duration
	store     backend.TokenStore
	listeners backend.Listeners
	now       func() time.Time

	// refreshMu はリフレッシュトークンの二重使用を防ぐ。
	refreshMu sync.Mutex

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// New はClientを生成する。自動更新はStartAutoRefreshで開始する。
func New(cfg Config, store backend.TokenStore) *Client {
	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(cfg.URL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("apikey", cfg.AnonKey).
		SetHeader("Accept", "application/json")

	return &Client{
		http:    httpClient,
		anonKey: cfg.AnonKey,
		margin:  cfg.RefreshMargin,
		store:   store,
		now:     time.Now,
		stop:    make(chan struct{}),
	}
}

// gotrueUser はGoTrueのユーザー表現。
type gotrueUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// tokenResponse はトークン発行・サインアップのレスポンス。
// メール確認が必要な構成のサインアップではユーザーのみが返る。
type tokenResponse struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	ExpiresIn    int64       `json:"expires_in"`
	ExpiresAt    int64       `json:"expires_at"`
	User         *gotrueUser `json:"user"`

	// サインアップで確認待ちの場合のトップレベルユーザー
	ID    string `json:"id"`
	Email string `json:"email"`
}

// errorResponse はGoTrue/PostgRESTのエラーボディ。
// 文言はmsg、error_description、messageのいずれかに入る。
type errorResponse struct {
	Msg              string `json:"msg"`
	ErrorDescription string `json:"error_description"`
	Message          string `json:"message"`
	ErrorCode        string `json:"error_code"`
	ErrorName        string `json:"error"`
	Code             any    `json:"code"`
}

func (e *errorResponse) toError(status int) *backend.Error {
	msg := e.Msg
	if msg == "" {
		msg = e.ErrorDescription
	}
	if msg == "" {
		msg = e.Message
	}

	code := e.ErrorCode
	if code == "" {
		code = e.ErrorName
	}
	if code == "" {
		if s, ok := e.Code.(string); ok {
			code = s
		}
	}

	return &backend.Error{Status: status, Code: code, Message: msg}
}

// do はリクエストを送信し、エラーレスポンスをbackend.Errorに変換する。
func (c *Client) do(req *resty.Request, method, path string) (*resty.Response, error) {
	apiErr := &errorResponse{}
	req.SetError(apiErr)

	resp, err := req.Execute(method, path)
	if err != nil {
		return nil, fmt.Errorf("failed to call %s %s: %w", method, path, err)
	}
	if resp.IsError() {
		return resp, apiErr.toError(resp.StatusCode())
	}
	return resp, nil
}

// --- Auth ---

// GetSession は保存済みセッションを返す。期限が近い場合は更新してから返す。
func (c *Client) GetSession(ctx context.Context) (*backend.Session, error) {
	stored, err := c.store.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if stored == nil {
		return nil, nil
	}
	if !c.needsRefresh(stored) {
		return stored, nil
	}
	return c.refresh(ctx)
}

// OnSessionChange はセッション変更リスナーを登録する。
func (c *Client) OnSessionChange(listener backend.SessionListener) func() {
	return c.listeners.Add(listener)
}

// SignInWithPassword はパスワードグラントでトークンを取得する。
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*backend.Session, error) {
	out := &tokenResponse{}
	req := c.http.R().
		SetContext(ctx).
		SetQueryParam("grant_type", "password").
		SetBody(map[string]string{"email": email, "password": password}).
		SetResult(out)

	if _, err := c.do(req, http.MethodPost, "/auth/v1/token"); err != nil {
		return nil, err
	}

	sess, err := c.sessionFromToken(out)
	if err != nil {
		return nil, err
	}
	if err := c.store.Save(sess); err != nil {
		return nil, fmt.Errorf("failed to store session: %w", err)
	}

	c.listeners.Emit(backend.EventSignedIn, sess)
	return sess, nil
}

// SignUp はユーザーを登録する。
// メール確認が必要な場合はセッションなし（nil, nil）を返す。
func (c *Client) SignUp(ctx context.Context, email, password string) (*backend.Session, error) {
	out := &tokenResponse{}
	req := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"email": email, "password": password}).
		SetResult(out)

	if _, err := c.do(req, http.MethodPost, "/auth/v1/signup"); err != nil {
		return nil, err
	}

	if out.AccessToken == "" {
		slog.Info("sign up requires email confirmation", slog.String("user_id", out.ID))
		return nil, nil
	}

	sess, err := c.sessionFromToken(out)
	if err != nil {
		return nil, err
	}
	if err := c.store.Save(sess); err != nil {
		return nil, fmt.Errorf("failed to store session: %w", err)
	}

	c.listeners.Emit(backend.EventSignedIn, sess)
	return sess, nil
}

// SignOut はサーバー側のセッションを失効させ、保存内容を破棄する。
// サーバー側の失効に失敗してもローカルのサインアウトは完了させる。
func (c *Client) SignOut(ctx context.Context) error {
	stored, err := c.store.Load()
	if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}

	if stored != nil {
		req := c.http.R().
			SetContext(ctx).
			SetAuthToken(stored.AccessToken)
		if _, err := c.do(req, http.MethodPost, "/auth/v1/logout"); err != nil {
			slog.Warn("failed to revoke remote session", slog.String("error", err.Error()))
		}
	}

	if err := c.store.Clear(); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}

	c.listeners.Emit(backend.EventSignedOut, nil)
	return nil
}

// needsRefresh は期限切れまでの残りがマージン以下かを返す。
func (c *Client) needsRefresh(s *backend.Session) bool {
	if s.ExpiresAt.IsZero() {
		return false
	}
	return !c.now().Add(c.margin).Before(s.ExpiresAt)
}

// refresh はリフレッシュトークンでセッションを更新し、TOKEN_REFRESHEDを通知する。
// サービスがリフレッシュトークンを拒否した場合はサインアウト扱いにする。
func (c *Client) refresh(ctx context.Context) (*backend.Session, error) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	// 待機中に別のgoroutineが更新済みの場合はそれを使う
	stored, err := c.store.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if stored == nil {
		return nil, nil
	}
	if !c.needsRefresh(stored) {
		return stored, nil
	}
	if stored.RefreshToken == "" {
		c.expire()
		return nil, nil
	}

	out := &tokenResponse{}
	req := c.http.R().
		SetContext(ctx).
		SetQueryParam("grant_type", "refresh_token").
		SetBody(map[string]string{"refresh_token": stored.RefreshToken}).
		SetResult(out)

	if _, err := c.do(req, http.MethodPost, "/auth/v1/token"); err != nil {
		var svcErr *backend.Error
		if errors.As(err, &svcErr) && svcErr.Status >= 400 && svcErr.Status < 500 {
			slog.Info("refresh token rejected, signing out", slog.String("error", err.Error()))
			c.expire()
			return nil, nil
		}
		return nil, fmt.Errorf("failed to refresh session: %w", err)
	}

	sess, err := c.sessionFromToken(out)
	if err != nil {
		return nil, err
	}
	if err := c.store.Save(sess); err != nil {
		return nil, fmt.Errorf("failed to store session: %w", err)
	}

	c.listeners.Emit(backend.EventTokenRefreshed, sess)
	return sess, nil
}

// expire は失効したセッションを破棄してSIGNED_OUTを通知する。
func (c *Client) expire() {
	if err := c.store.Clear(); err != nil {
		slog.Warn("failed to clear expired session", slog.String("error", err.Error()))
	}
	c.listeners.Emit(backend.EventSignedOut, nil)
}

// sessionFromToken はトークンレスポンスからセッションを組み立てる。
// 有効期限とユーザーIDがレスポンスにない場合はアクセストークンのクレームから補う。
func (c *Client) sessionFromToken(out *tokenResponse) (*backend.Session, error) {
	if out.AccessToken == "" {
		return nil, errors.New("token response has no access_token")
	}

	sess := &backend.Session{
		AccessToken:  out.AccessToken,
		RefreshToken: out.RefreshToken,
	}
	if out.User != nil {
		sess.User = model.User{ID: out.User.ID, Email: out.User.Email}
	}

	switch {
	case out.ExpiresAt > 0:
		sess.ExpiresAt = time.Unix(out.ExpiresAt, 0).UTC()
	case out.ExpiresIn > 0:
		sess.ExpiresAt = c.now().Add(time.Duration(out.ExpiresIn) * time.Second).UTC()
	}

	if sess.ExpiresAt.IsZero() || sess.User.ID == "" {
		claims, err := parseAccessToken(out.AccessToken)
		if err != nil {
			return nil, err
		}
		if sess.ExpiresAt.IsZero() {
			sess.ExpiresAt = claims.expiresAt
		}
		if sess.User.ID == "" {
			sess.User.ID = claims.subject
			sess.User.Email = claims.email
		}
	}

	return sess, nil
}

// --- Data ---

// bearer はデータAPI用のトークンを返す。未ログインの場合は公開キーを使う。
func (c *Client) bearer(ctx context.Context) (string, error) {
	sess, err := c.GetSession(ctx)
	if err != nil {
		return "", err
	}
	if sess == nil {
		return c.anonKey, nil
	}
	return sess.AccessToken, nil
}

// ListNotes はuser_idが一致するメモをcreated_at降順で取得する。
func (c *Client) ListNotes(ctx context.Context, userID string) ([]model.Note, error) {
	token, err := c.bearer(ctx)
	if err != nil {
		return nil, err
	}

	var notes []model.Note
	req := c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetQueryParams(map[string]string{
			"select":  "*",
			"user_id": "eq." + userID,
			"order":   "created_at.desc",
		}).
		SetResult(&notes)

	if _, err := c.do(req, http.MethodGet, "/rest/v1/notes"); err != nil {
		return nil, err
	}
	if notes == nil {
		notes = []model.Note{}
	}
	return notes, nil
}

// InsertNote はメモを作成する。レスポンスボディは要求しない。
func (c *Client) InsertNote(ctx context.Context, note model.NewNote) error {
	token, err := c.bearer(ctx)
	if err != nil {
		return err
	}

	req := c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetHeader("Prefer", "return=minimal").
		SetBody([]model.NewNote{note})

	_, err = c.do(req, http.MethodPost, "/rest/v1/notes")
	return err
}

// DeleteNote はidが一致するメモを削除する。
func (c *Client) DeleteNote(ctx context.Context, id string) error {
	token, err := c.bearer(ctx)
	if err != nil {
		return err
	}

	req := c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetQueryParam("id", "eq."+id)

	_, err = c.do(req, http.MethodDelete, "/rest/v1/notes")
	return err
}

// Ping は認証サービスのヘルスエンドポイントを確認する。
func (c *Client) Ping(ctx context.Context) error {
	req := c.http.R().SetContext(ctx)
	if _, err := c.do(req, http.MethodGet, "/auth/v1/health"); err != nil {
		return fmt.Errorf("failed to ping auth service: %w", err)
	}
	return nil
}

// compile-time interface check
var _ backend.Client = (*Client)(nil)
