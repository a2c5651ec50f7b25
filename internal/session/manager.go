// Package session はプロセス全体で共有する認証状態を管理する。
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/notesapp/internal/backend"
	"github.com/hitoshi/notesapp/internal/model"
)

// State は現在の認証状態。
// IsLoadingがtrueの間、Userは確定していないため参照してはならない。
type State struct {
	User      *model.User
	IsLoading bool
}

// Authenticated は解決済みかつユーザーが存在するかを返す。
func (s State) Authenticated() bool {
	return !s.IsLoading && s.User != nil
}

// Manager は認証状態を保持し、Authサービスからの通知で更新する。
// 初期状態は{User: nil, IsLoading: true}。
type Manager struct {
	auth           backend.Auth
	resolveTimeout time.Duration

	mu          sync.RWMutex
	state       State
	started     bool
	closed      bool
	unsubscribe func()
	cancel      context.CancelFunc
	watchers    map[int]func(State)
	nextWatchID int
	applySeq    uint64 // applyごとに進む

	// dispatchMu は通知先への配送を直列化する。
	// 追い越された古い状態は配送しない。
	dispatchMu    sync.Mutex
	dispatchedSeq uint64

	resolved     chan struct{}
	resolvedOnce sync.Once
	wg           sync.WaitGroup
}

// NewManager はManagerを生成する。
// resolveTimeoutは初回のセッション取得に許す最大時間。
func NewManager(auth backend.Auth, resolveTimeout time.Duration) *Manager {
	return &Manager{
		auth:           auth,
		resolveTimeout: resolveTimeout,
		state:          State{IsLoading: true},
		watchers:       make(map[int]func(State)),
		resolved:       make(chan struct{}),
	}
}

// Current は現在の状態のコピーを返す。
func (m *Manager) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := m.state
	if s.User != nil {
		u := *s.User
		s.User = &u
	}
	return s
}

// Initialize はセッション変更リスナーを登録し、初回のセッション取得を開始する。
// 取得は非同期に行われ、完了またはタイムアウトで状態が確定する。
// 2回目以降の呼び出しは何もしない。
func (m *Manager) Initialize(ctx context.Context) {
	m.mu.Lock()
	if m.started || m.closed {
		m.mu.Unlock()
		return
	}
	m.started = true

	// 1. 変更リスナーを登録
	m.unsubscribe = m.auth.OnSessionChange(func(event backend.AuthEvent, s *backend.Session) {
		slog.Debug("session change received", slog.String("event", string(event)))
		m.apply(s)
	})

	// 2. 初回のセッション取得
	fetchCtx, cancel := context.WithTimeout(ctx, m.resolveTimeout)
	m.cancel = cancel
	m.wg.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.wg.Done()
		defer cancel()

		s, err := m.auth.GetSession(fetchCtx)
		if err != nil {
			// 取得失敗はログのみ。未ログインとして扱い、読み込み中のまま残さない
			slog.Warn("failed to resolve session",
				slog.String("error", err.Error()),
			)
			s = nil
		}
		m.apply(s)
	}()
}

// apply はセッション（またはnil）を状態に反映する。
// リスナーと初回取得のどちらから呼ばれても同じ処理で、後勝ちとなる。
func (m *Manager) apply(s *backend.Session) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}

	var user *model.User
	if s != nil {
		u := s.User
		user = &u
	}
	m.state = State{User: user, IsLoading: false}
	m.applySeq++
	seq := m.applySeq

	watchers := make([]func(State), 0, len(m.watchers))
	for _, fn := range m.watchers {
		watchers = append(watchers, fn)
	}
	m.mu.Unlock()

	m.dispatch(seq, user, watchers)

	m.resolvedOnce.Do(func() { close(m.resolved) })
}

// dispatch は状態を通知先へ配送する。
// 並行するapplyのうち、後から状態を確定したものより古い配送は捨てる。
func (m *Manager) dispatch(seq uint64, user *model.User, watchers []func(State)) {
	m.dispatchMu.Lock()
	defer m.dispatchMu.Unlock()

	if seq < m.dispatchedSeq {
		return
	}
	m.dispatchedSeq = seq

	for _, fn := range watchers {
		fn(snapshot(user))
	}
}

// snapshot は通知先ごとに独立したStateを返す。
func snapshot(user *model.User) State {
	s := State{IsLoading: false}
	if user != nil {
		u := *user
		s.User = &u
	}
	return s
}

// Watch は状態変化の通知先を登録し、登録解除関数を返す。
// 通知は直列に行われる。通知先から状態を変更する操作を呼び出してはならない。
func (m *Manager) Watch(fn func(State)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextWatchID
	m.nextWatchID++
	m.watchers[id] = fn

	return func() {
		m.mu.Lock()
		delete(m.watchers, id)
		m.mu.Unlock()
	}
}

// Resolved は初回の状態確定時にcloseされるチャネルを返す。
func (m *Manager) Resolved() <-chan struct{} {
	return m.resolved
}

// Teardown はリスナーの登録を解除し、実行中の初回取得の終了を待つ。
// 以降に届いた通知や取得結果は無視される。
func (m *Manager) Teardown() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	unsubscribe := m.unsubscribe
	cancel := m.cancel
	m.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	if cancel != nil {
		cancel()
	}
	m.wg.Wait()
}
