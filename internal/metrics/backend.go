package metrics

import (
	"context"
	"time"

	"github.com/hitoshi/notesapp/internal/backend"
	"github.com/hitoshi/notesapp/internal/model"
)

// InstrumentedClient はbackend.Clientの各呼び出しのレイテンシを記録するラッパー。
type InstrumentedClient struct {
	backend.Client
	collector MetricsCollector
}

// InstrumentBackend はclientをラップしたInstrumentedClientを返す。
func InstrumentBackend(client backend.Client, collector MetricsCollector) *InstrumentedClient {
	return &InstrumentedClient{Client: client, collector: collector}
}

func (c *InstrumentedClient) observe(op string, start time.Time, err error) {
	c.collector.RecordBackendCall(op, time.Since(start), err)
}

// GetSession は計測付きでセッションを取得する。
func (c *InstrumentedClient) GetSession(ctx context.Context) (s *backend.Session, err error) {
	defer func(start time.Time) { c.observe("get_session", start, err) }(time.Now())
	return c.Client.GetSession(ctx)
}

// SignInWithPassword は計測付きでサインインする。
func (c *InstrumentedClient) SignInWithPassword(ctx context.Context, email, password string) (s *backend.Session, err error) {
	defer func(start time.Time) { c.observe("sign_in", start, err) }(time.Now())
	return c.Client.SignInWithPassword(ctx, email, password)
}

// SignUp は計測付きでユーザー登録する。
func (c *InstrumentedClient) SignUp(ctx context.Context, email, password string) (s *backend.Session, err error) {
	defer func(start time.Time) { c.observe("sign_up", start, err) }(time.Now())
	return c.Client.SignUp(ctx, email, password)
}

// SignOut は計測付きでサインアウトする。
func (c *InstrumentedClient) SignOut(ctx context.Context) (err error) {
	defer func(start time.Time) { c.observe("sign_out", start, err) }(time.Now())
	return c.Client.SignOut(ctx)
}

// ListNotes は計測付きでメモ一覧を取得する。
func (c *InstrumentedClient) ListNotes(ctx context.Context, userID string) (notes []model.Note, err error) {
	defer func(start time.Time) { c.observe("list_notes", start, err) }(time.Now())
	return c.Client.ListNotes(ctx, userID)
}

// InsertNote は計測付きでメモを作成する。
func (c *InstrumentedClient) InsertNote(ctx context.Context, note model.NewNote) (err error) {
	defer func(start time.Time) { c.observe("insert_note", start, err) }(time.Now())
	return c.Client.InsertNote(ctx, note)
}

// DeleteNote は計測付きでメモを削除する。
func (c *InstrumentedClient) DeleteNote(ctx context.Context, id string) (err error) {
	defer func(start time.Time) { c.observe("delete_note", start, err) }(time.Now())
	return c.Client.DeleteNote(ctx, id)
}

// compile-time interface check
var _ backend.Client = (*InstrumentedClient)(nil)
