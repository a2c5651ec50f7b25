package backend

import "sync"

// Listeners はセッション変更リスナーの登録簿。
// 実装間で共有するため、Auth実装はこれを埋め込んで使用する。
type Listeners struct {
	mu     sync.Mutex
	nextID int
	fns    map[int]SessionListener
}

// Add はリスナーを登録し、登録解除関数を返す。
func (l *Listeners) Add(fn SessionListener) func() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.fns == nil {
		l.fns = make(map[int]SessionListener)
	}
	id := l.nextID
	l.nextID++
	l.fns[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.fns, id)
			l.mu.Unlock()
		})
	}
}

// Emit は登録済みの全リスナーを呼び出す。
// ロックを保持したまま呼び出さないため、リスナー内での登録解除も可能。
func (l *Listeners) Emit(event AuthEvent, session *Session) {
	l.mu.Lock()
	fns := make([]SessionListener, 0, len(l.fns))
	for _, fn := range l.fns {
		fns = append(fns, fn)
	}
	l.mu.Unlock()

	for _, fn := range fns {
		fn(event, session)
	}
}

// Len は登録済みリスナー数を返す。
func (l *Listeners) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.fns)
}
