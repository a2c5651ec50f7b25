package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/hitoshi/notesapp/internal/auth"
	"github.com/hitoshi/notesapp/internal/model"
	"github.com/hitoshi/notesapp/internal/notes"
	"github.com/hitoshi/notesapp/internal/session"
)

// --- モック定義 ---

type mockSessions struct {
	mu    sync.Mutex
	state session.State
}

func (m *mockSessions) Current() session.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *mockSessions) set(state session.State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = state
}

func signedIn(id, email string) *mockSessions {
	return &mockSessions{state: session.State{User: &model.User{ID: id, Email: email}}}
}

type mockForm struct {
	label      string
	submitting bool
	submitFn   func(ctx context.Context, email, password string) auth.Result
	calls      int
}

func (m *mockForm) Label() string    { return m.label }
func (m *mockForm) Submitting() bool { return m.submitting }

func (m *mockForm) Submit(ctx context.Context, email, password string) auth.Result {
	m.calls++
	if m.submitFn != nil {
		return m.submitFn(ctx, email, password)
	}
	return auth.Result{OK: true, Email: email}
}

type mockSignOuter struct {
	signOutFn func(ctx context.Context) error
	calls     int
}

func (m *mockSignOuter) SignOut(ctx context.Context) error {
	m.calls++
	if m.signOutFn != nil {
		return m.signOutFn(ctx)
	}
	return nil
}

type mockNotesController struct {
	view notes.View

	mountFn  func(ctx context.Context, owner string) error
	fetchFn  func(ctx context.Context, owner string) error
	addFn    func(ctx context.Context, owner, title, content, tag string) error
	deleteFn func(ctx context.Context, owner, id string) error

	mountCalls   []string
	deleteCalls  []string
	toggleCalls  int
	dismissCalls int
}

func (m *mockNotesController) Mount(ctx context.Context, owner string) error {
	m.mountCalls = append(m.mountCalls, owner)
	if m.mountFn != nil {
		return m.mountFn(ctx, owner)
	}
	return nil
}

func (m *mockNotesController) FetchNotes(ctx context.Context, owner string) error {
	if m.fetchFn != nil {
		return m.fetchFn(ctx, owner)
	}
	return nil
}

func (m *mockNotesController) AddNote(ctx context.Context, owner, title, content, tag string) error {
	if m.addFn != nil {
		return m.addFn(ctx, owner, title, content, tag)
	}
	return nil
}

func (m *mockNotesController) DeleteNote(ctx context.Context, owner, id string) error {
	m.deleteCalls = append(m.deleteCalls, owner+"/"+id)
	if m.deleteFn != nil {
		return m.deleteFn(ctx, owner, id)
	}
	return nil
}

func (m *mockNotesController) ToggleForm()           { m.toggleCalls++ }
func (m *mockNotesController) DismissMutationError() { m.dismissCalls++ }
func (m *mockNotesController) View() notes.View      { return m.view }

type mockPinger struct {
	err error
}

func (m *mockPinger) Ping(_ context.Context) error {
	return m.err
}

// --- ヘルパー ---

func newTestRenderer(t *testing.T) *Renderer {
	t.Helper()
	rd, err := NewRenderer(nil)
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	return rd
}

// formRequest はCSRFトークン付きのフォーム送信リクエストを生成する。
func formRequest(method, target string, values url.Values) *http.Request {
	if values == nil {
		values = url.Values{}
	}
	values.Set("csrf_token", "test-csrf")
	req := httptest.NewRequest(method, target, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(&http.Cookie{Name: "csrf_token", Value: "test-csrf"})
	return req
}

func assertRedirect(t *testing.T, w *httptest.ResponseRecorder, location string) {
	t.Helper()
	resp := w.Result()
	if resp.StatusCode != http.StatusSeeOther {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusSeeOther)
	}
	if got := resp.Header.Get("Location"); got != location {
		t.Errorf("Location = %q, want %q", got, location)
	}
}

func assertBodyContains(t *testing.T, w *httptest.ResponseRecorder, subs ...string) {
	t.Helper()
	body := w.Body.String()
	for _, s := range subs {
		if !strings.Contains(body, s) {
			t.Errorf("body should contain %q", s)
		}
	}
}
