package backend

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/notesapp/internal/model"
)

func TestListeners_AddEmitUnsubscribe(t *testing.T) {
	var l Listeners

	var mu sync.Mutex
	var got []AuthEvent
	unsubscribe := l.Add(func(event AuthEvent, s *Session) {
		mu.Lock()
		got = append(got, event)
		mu.Unlock()
	})

	l.Emit(EventSignedIn, &Session{AccessToken: "t"})
	unsubscribe()
	l.Emit(EventSignedOut, nil)

	if len(got) != 1 || got[0] != EventSignedIn {
		t.Errorf("events = %v, want [SIGNED_IN]", got)
	}
	if l.Len() != 0 {
		t.Errorf("Len() = %d, want 0 after unsubscribe", l.Len())
	}

	// 二重解除は安全
	unsubscribe()
}

func TestListeners_UnsubscribeInsideCallback(t *testing.T) {
	var l Listeners

	calls := 0
	var unsubscribe func()
	unsubscribe = l.Add(func(event AuthEvent, s *Session) {
		calls++
		unsubscribe()
	})

	l.Emit(EventSignedIn, nil)
	l.Emit(EventSignedIn, nil)

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestListeners_MultipleListeners(t *testing.T) {
	var l Listeners

	var a, b int
	l.Add(func(AuthEvent, *Session) { a++ })
	l.Add(func(AuthEvent, *Session) { b++ })

	l.Emit(EventTokenRefreshed, &Session{})

	if a != 1 || b != 1 {
		t.Errorf("a=%d b=%d, want 1 and 1", a, b)
	}
}

func TestSession_Expired(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		expires time.Time
		want    bool
	}{
		{"未来", now.Add(time.Minute), false},
		{"ちょうど", now, true},
		{"過去", now.Add(-time.Minute), true},
		{"期限なし", time.Time{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Session{ExpiresAt: tt.expires}
			if got := s.Expired(now); got != tt.want {
				t.Errorf("Expired() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestServiceMessage(t *testing.T) {
	msg, ok := ServiceMessage(&Error{Status: 400, Message: "Invalid login credentials"})
	if !ok || msg != "Invalid login credentials" {
		t.Errorf("ServiceMessage = %q, %v", msg, ok)
	}

	wrapped := fmt.Errorf("failed to sign in: %w", &Error{Status: 422, Message: "User already registered"})
	msg, ok = ServiceMessage(wrapped)
	if !ok || msg != "User already registered" {
		t.Errorf("ServiceMessage(wrapped) = %q, %v", msg, ok)
	}

	if _, ok := ServiceMessage(errors.New("dial tcp: connection refused")); ok {
		t.Error("transport error should not expose a service message")
	}
	if _, ok := ServiceMessage(&Error{Status: 500}); ok {
		t.Error("empty message should not be reported")
	}
}

func TestMemoryStore_SaveLoadClear(t *testing.T) {
	store := NewMemoryStore()

	s, err := store.Load()
	if err != nil || s != nil {
		t.Fatalf("Load() on empty store = %v, %v", s, err)
	}

	in := &Session{AccessToken: "a", User: model.User{ID: "u1", Email: "a@b.com"}}
	if err := store.Save(in); err != nil {
		t.Fatalf("Save: %v", err)
	}
	in.AccessToken = "mutated"

	s, _ = store.Load()
	if s == nil || s.AccessToken != "a" {
		t.Errorf("Load() = %+v, want copy with token a", s)
	}

	if err := store.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	s, _ = store.Load()
	if s != nil {
		t.Errorf("Load() after Clear = %+v", s)
	}
}

func TestFileStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	store := NewFileStore(path)

	s, err := store.Load()
	if err != nil || s != nil {
		t.Fatalf("Load() on missing file = %v, %v", s, err)
	}

	expires := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	in := &Session{
		AccessToken:  "access",
		RefreshToken: "refresh",
		ExpiresAt:    expires,
		User:         model.User{ID: "u1", Email: "a@b.com", PasswordHash: "secret-hash"},
	}
	if err := store.Save(in); err != nil {
		t.Fatalf("Save: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("file mode = %v, want 0600", info.Mode().Perm())
	}

	raw, _ := os.ReadFile(path)
	if string(raw) == "" || strings.Contains(string(raw), "secret-hash") {
		t.Errorf("session file must not contain the password hash: %s", raw)
	}

	// 別インスタンスから読めること（再起動相当）
	out, err := NewFileStore(path).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if out == nil || out.AccessToken != "access" || out.RefreshToken != "refresh" || out.User.ID != "u1" {
		t.Errorf("Load() = %+v", out)
	}
	if !out.ExpiresAt.Equal(expires) {
		t.Errorf("ExpiresAt = %v, want %v", out.ExpiresAt, expires)
	}

	if err := store.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if err := store.Clear(); err != nil {
		t.Fatalf("Clear on missing file: %v", err)
	}
}

func TestFileStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if _, err := NewFileStore(path).Load(); err == nil {
		t.Error("expected decode error for corrupt file")
	}
}

func TestNewTokenStore(t *testing.T) {
	if _, ok := NewTokenStore("").(*MemoryStore); !ok {
		t.Error("empty path should yield MemoryStore")
	}
	if _, ok := NewTokenStore("/tmp/x.json").(*FileStore); !ok {
		t.Error("non-empty path should yield FileStore")
	}
}
