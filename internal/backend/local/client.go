// Package local はPostgreSQL上でAuth/Dataサービスの契約を実装する。
//
// マネージドサービスを使わずに動かすためのバックエンドで、
// 所有者によるアクセス制御（行レベルポリシー相当）をこのパッケージ内で行う。
package local

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/notesapp/internal/backend"
	"github.com/hitoshi/notesapp/internal/model"
	"github.com/hitoshi/notesapp/internal/repository"
)

// Pinger はデータベースの疎通確認インターフェース。*sql.DBが満たす。
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Config はlocalバックエンドの設定。
type Config struct {
	SessionMaxAge time.Duration // セッション有効期間
}

// Client はlocalバックエンドのbackend.Client実装。
type Client struct {
	db        Pinger
	users     repository.UserRepository
	sessions  repository.SessionRepository
	notes     repository.NoteRepository
	store     backend.TokenStore
	listeners backend.Listeners
	config    Config
	now       func() time.Time
}

// New はClientを生成する。
func New(
	db Pinger,
	users repository.UserRepository,
	sessions repository.SessionRepository,
	notes repository.NoteRepository,
	store backend.TokenStore,
	config Config,
) *Client {
	return &Client{
		db:       db,
		users:    users,
		sessions: sessions,
		notes:    notes,
		store:    store,
		config:   config,
		now:      time.Now,
	}
}

var (
	errInvalidCredentials = &backend.Error{Status: 400, Code: "invalid_credentials", Message: "Invalid login credentials"}
	errUserExists         = &backend.Error{Status: 422, Code: "user_already_exists", Message: "User already registered"}
	errRowPolicy          = &backend.Error{Status: 403, Code: "42501", Message: `new row violates row-level security policy for table "notes"`}
	errTitleCheck         = &backend.Error{Status: 400, Code: "23514", Message: `new row for relation "notes" violates check constraint "notes_title_check"`}
)

// --- Auth ---

// GetSession は保存済みセッションを検証して返す。
// トークンが期限切れ・失効済みの場合は保存内容を破棄してnilを返す。
func (c *Client) GetSession(ctx context.Context) (*backend.Session, error) {
	stored, err := c.store.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if stored == nil {
		return nil, nil
	}

	if stored.Expired(c.now()) {
		c.discard()
		return nil, nil
	}

	sess, err := c.sessions.FindByID(ctx, stored.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if sess == nil {
		c.discard()
		return nil, nil
	}

	user, err := c.users.FindByID(ctx, sess.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		c.discard()
		return nil, nil
	}

	stored.User = publicUser(user)
	stored.ExpiresAt = sess.ExpiresAt
	return stored, nil
}

// OnSessionChange はセッション変更リスナーを登録する。
func (c *Client) OnSessionChange(listener backend.SessionListener) func() {
	return c.listeners.Add(listener)
}

// SignInWithPassword はメールアドレスとパスワードを検証してセッションを発行する。
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*backend.Session, error) {
	// 1. ユーザーを検索
	user, err := c.users.FindByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, errInvalidCredentials
	}

	// 2. パスワードを検証
	ok, err := verifyPassword(password, user.PasswordHash)
	if err != nil {
		slog.Error("stored password hash is invalid",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
		return nil, errInvalidCredentials
	}
	if !ok {
		return nil, errInvalidCredentials
	}

	// 3. セッションを発行
	return c.startSession(ctx, user)
}

// SignUp はユーザーを登録し、そのままサインイン状態にする。
// localバックエンドはメール確認を行わない。
func (c *Client) SignUp(ctx context.Context, email, password string) (*backend.Session, error) {
	email = strings.TrimSpace(email)

	// 1. 重複チェック
	existing, err := c.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if existing != nil {
		return nil, errUserExists
	}

	// 2. ユーザーを作成
	hash, err := hashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	now := c.now()
	user := &model.User{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := c.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, errUserExists
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	slog.Info("new user registered", slog.String("user_id", user.ID))

	// 3. セッションを発行
	return c.startSession(ctx, user)
}

// SignOut は現在のセッションを破棄し、SIGNED_OUTを通知する。
// セッションがない場合も通知は行う。
func (c *Client) SignOut(ctx context.Context) error {
	stored, err := c.store.Load()
	if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}

	if stored != nil {
		if err := c.sessions.DeleteByID(ctx, stored.AccessToken); err != nil {
			return fmt.Errorf("failed to delete session: %w", err)
		}
		slog.Info("user signed out", slog.String("user_id", stored.User.ID))
	}
	if err := c.store.Clear(); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}

	c.listeners.Emit(backend.EventSignedOut, nil)
	return nil
}

// startSession はセッションを作成・保存し、SIGNED_INを通知する。
func (c *Client) startSession(ctx context.Context, user *model.User) (*backend.Session, error) {
	token, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := c.now()
	sess := &model.Session{
		ID:        token,
		UserID:    user.ID,
		ExpiresAt: now.Add(c.config.SessionMaxAge),
		CreatedAt: now,
	}
	if err := c.sessions.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	out := &backend.Session{
		AccessToken: token,
		ExpiresAt:   sess.ExpiresAt,
		User:        publicUser(user),
	}
	if err := c.store.Save(out); err != nil {
		return nil, fmt.Errorf("failed to store session: %w", err)
	}

	c.listeners.Emit(backend.EventSignedIn, out)
	return out, nil
}

// discard は無効になった保存済みセッションを破棄し、SIGNED_OUTを通知する。
// 期限切れ・失効・クリーンアップによる削除のいずれでも呼ばれる。
func (c *Client) discard() {
	if err := c.store.Clear(); err != nil {
		slog.Warn("failed to clear stale session", slog.String("error", err.Error()))
	}
	c.listeners.Emit(backend.EventSignedOut, nil)
}

// --- Data ---

// ListNotes はセッションユーザー自身のメモのみを返す。
// 他人のuser_idを指定した場合や未ログインの場合は空の一覧になる。
func (c *Client) ListNotes(ctx context.Context, userID string) ([]model.Note, error) {
	uid, err := c.currentUserID(ctx)
	if err != nil {
		return nil, err
	}
	if uid == "" || uid != userID {
		return []model.Note{}, nil
	}

	notes, err := c.notes.ListByUserID(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}
	return notes, nil
}

// InsertNote はメモを作成する。user_idはセッションユーザーと一致する必要がある。
func (c *Client) InsertNote(ctx context.Context, in model.NewNote) error {
	uid, err := c.currentUserID(ctx)
	if err != nil {
		return err
	}
	if uid == "" || uid != in.UserID {
		return errRowPolicy
	}
	if strings.TrimSpace(in.Title) == "" {
		return errTitleCheck
	}

	note := &model.Note{
		ID:      uuid.New().String(),
		Title:   in.Title,
		Content: in.Content,
		Tag:     in.Tag,
		UserID:  uid,
	}
	if err := c.notes.Create(ctx, note); err != nil {
		return fmt.Errorf("failed to insert note: %w", err)
	}
	return nil
}

// DeleteNote はセッションユーザーが所有するメモを削除する。
// 該当するメモがない場合は何もしない。
func (c *Client) DeleteNote(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return &backend.Error{
			Status:  400,
			Code:    "22P02",
			Message: fmt.Sprintf("invalid input syntax for type uuid: %q", id),
		}
	}

	uid, err := c.currentUserID(ctx)
	if err != nil {
		return err
	}
	if uid == "" {
		return nil
	}

	if err := c.notes.DeleteByIDAndUserID(ctx, id, uid); err != nil {
		return fmt.Errorf("failed to delete note: %w", err)
	}
	return nil
}

// Ping はデータベースへの疎通を確認する。
func (c *Client) Ping(ctx context.Context) error {
	if err := c.db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	return nil
}

// Close はlocalバックエンドでは何もしない。
func (c *Client) Close() {}

// currentUserID はセッションユーザーのIDを返す。未ログインの場合は空文字列。
func (c *Client) currentUserID(ctx context.Context) (string, error) {
	sess, err := c.GetSession(ctx)
	if err != nil {
		return "", err
	}
	if sess == nil {
		return "", nil
	}
	return sess.User.ID, nil
}

// publicUser はパスワードハッシュを除いたユーザー情報を返す。
func publicUser(u *model.User) model.User {
	return model.User{
		ID:        u.ID,
		Email:     u.Email,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// compile-time interface check
var _ backend.Client = (*Client)(nil)
