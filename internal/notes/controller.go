// Package notes はメモ一覧画面の状態（一覧・エラー表示・追加フォーム）を管理する。
//
// 変更操作の後は必ず一覧を再取得し、表示内容は常にサービスが確定した状態に揃える。
package notes

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/hitoshi/notesapp/internal/backend"
	"github.com/hitoshi/notesapp/internal/metrics"
	"github.com/hitoshi/notesapp/internal/model"
	"github.com/hitoshi/notesapp/internal/session"
)

// 画面に表示する固定文言
const (
	FetchErrorMessage  = "Erreur lors de la récupération des notes"
	AddErrorMessage    = "Erreur lors de l'ajout de la note"
	DeleteErrorMessage = "Erreur lors de la suppression de la note"
)

// ErrTitleRequired はタイトル未入力での追加を表す。サービスは呼び出されない。
var ErrTitleRequired = errors.New("title is required")

// Draft は追加フォームの入力内容。
type Draft struct {
	Title   string
	Content string
	Tag     string
}

// View は画面描画用の状態のスナップショット。
type View struct {
	Owner         string
	Notes         []model.Note
	FetchError    string
	MutationError string
	Draft         Draft
	IsAdding      bool
}

// Controller はメモ一覧の状態を保持する。
// HTTPハンドラーから並行に呼ばれるため、状態はmuで保護する。
type Controller struct {
	data    backend.Data
	metrics metrics.MetricsCollector
	logger  *slog.Logger

	mu            sync.Mutex
	owner         string
	generation    uint64 // Reset・所有者変更で進む
	fetchSeq      uint64 // 発行済みの最新フェッチ番号
	appliedSeq    uint64 // 反映済みの最新フェッチ番号
	notes         []model.Note
	fetchError    string
	mutationError string
	draft         Draft
	isAdding      bool
}

// NewController はControllerを生成する。
func NewController(
	data backend.Data,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
) *Controller {
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		data:    data,
		metrics: collector,
		logger:  logger,
		notes:   []model.Note{},
	}
}

// Mount は画面表示時に呼ばれ、ownerのメモを取得する。
func (c *Controller) Mount(ctx context.Context, owner string) error {
	return c.FetchNotes(ctx, owner)
}

// Reset は画面の破棄時に呼ばれ、状態を初期化する。
// 実行中の操作の結果は以後反映されない。
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked("")
}

// resetLocked は状態を初期化して世代を進める。c.muを保持して呼ぶこと。
func (c *Controller) resetLocked(owner string) {
	c.generation++
	c.owner = owner
	c.notes = []model.Note{}
	c.fetchError = ""
	c.mutationError = ""
	c.draft = Draft{}
	c.isAdding = false
}

// FetchNotes はownerのメモをcreated_at降順で取得し、一覧を置き換える。
// 失敗時は一覧を変更せず、固定文言のエラーを設定する。
// 後から発行したフェッチが先に反映済みの場合、古い結果は破棄する。
func (c *Controller) FetchNotes(ctx context.Context, owner string) error {
	// 1. 世代とフェッチ番号を確保
	c.mu.Lock()
	if c.owner != owner {
		c.resetLocked(owner)
	}
	gen := c.generation
	c.fetchSeq++
	seq := c.fetchSeq
	c.mu.Unlock()

	// 2. サービスから取得
	notes, err := c.data.ListNotes(ctx, owner)

	// 3. 最新の結果のみ反映
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.generation || seq < c.appliedSeq {
		c.logger.Debug("discarding stale notes fetch",
			slog.String("user_id", owner),
			slog.Uint64("seq", seq),
		)
		return err
	}
	c.appliedSeq = seq

	if err != nil {
		c.fetchError = FetchErrorMessage
		c.metrics.RecordNoteOperation("fetch", metrics.OutcomeFailure)
		c.logger.Error("failed to fetch notes",
			slog.String("user_id", owner),
			slog.String("error", err.Error()),
		)
		return err
	}

	sorted := make([]model.Note, len(notes))
	copy(sorted, notes)
	model.SortNotesNewestFirst(sorted)

	c.notes = sorted
	c.fetchError = ""
	c.metrics.RecordNoteOperation("fetch", metrics.OutcomeSuccess)
	return nil
}

// AddNote はメモを作成し、成功時は入力をクリアしてフォームを閉じ、一覧を再取得する。
// タイトルが空の場合はサービスを呼ばずにErrTitleRequiredを返す。
// 失敗時は入力内容とフォームの開閉状態を維持する。
func (c *Controller) AddNote(ctx context.Context, owner, title, content, tag string) error {
	c.mu.Lock()
	if c.owner != owner {
		c.resetLocked(owner)
	}
	c.draft = Draft{Title: title, Content: content, Tag: tag}
	gen := c.generation
	c.mu.Unlock()

	// 入力は自由記述のため加工せずに送る。空白のみの判定にだけTrimSpaceを使う
	in := model.NewNote{
		Title:   title,
		Content: content,
		Tag:     tag,
		UserID:  owner,
	}
	if strings.TrimSpace(in.Title) == "" {
		c.metrics.RecordNoteOperation("add", metrics.OutcomeInvalid)
		return ErrTitleRequired
	}

	if err := c.data.InsertNote(ctx, in); err != nil {
		c.metrics.RecordNoteOperation("add", metrics.OutcomeFailure)
		c.logger.Error("failed to add note",
			slog.String("user_id", owner),
			slog.String("error", err.Error()),
		)
		c.mu.Lock()
		if gen == c.generation {
			c.mutationError = AddErrorMessage
		}
		c.mu.Unlock()
		return err
	}
	c.metrics.RecordNoteOperation("add", metrics.OutcomeSuccess)

	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return nil
	}
	c.draft = Draft{}
	c.isAdding = false
	c.mutationError = ""
	c.mu.Unlock()

	// 再取得の失敗はfetchErrorとして表示される
	_ = c.FetchNotes(ctx, owner)
	return nil
}

// DeleteNote はownerのメモを削除し、成功時は一覧を再取得する。
// 失敗時は一覧を変更しない。
func (c *Controller) DeleteNote(ctx context.Context, owner, id string) error {
	c.mu.Lock()
	if c.owner != owner {
		c.resetLocked(owner)
	}
	gen := c.generation
	c.mu.Unlock()

	if err := c.data.DeleteNote(ctx, id); err != nil {
		c.metrics.RecordNoteOperation("delete", metrics.OutcomeFailure)
		c.logger.Error("failed to delete note",
			slog.String("note_id", id),
			slog.String("error", err.Error()),
		)
		c.mu.Lock()
		if gen == c.generation {
			c.mutationError = DeleteErrorMessage
		}
		c.mu.Unlock()
		return err
	}
	c.metrics.RecordNoteOperation("delete", metrics.OutcomeSuccess)

	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return nil
	}
	c.mutationError = ""
	c.mu.Unlock()

	_ = c.FetchNotes(ctx, owner)
	return nil
}

// ToggleForm は追加フォームの開閉を切り替える。入力内容は維持する。
func (c *Controller) ToggleForm() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.isAdding = !c.isAdding
}

// View は現在の状態のコピーを返す。
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()

	notes := make([]model.Note, len(c.notes))
	copy(notes, c.notes)

	return View{
		Owner:         c.owner,
		Notes:         notes,
		FetchError:    c.fetchError,
		MutationError: c.mutationError,
		Draft:         c.draft,
		IsAdding:      c.isAdding,
	}
}

// DismissMutationError は表示済みの変更操作エラーを消す。
func (c *Controller) DismissMutationError() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mutationError = ""
}

// ObserveSession はセッション変更を受け取り、
// サインアウトまたは別ユーザーへの切り替え時に状態を破棄する。
// session.Manager.Watchに登録して使用する。
func (c *Controller) ObserveSession(state session.State) {
	if state.IsLoading {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.owner == "" {
		return
	}
	if state.User == nil || state.User.ID != c.owner {
		c.logger.Debug("resetting notes for session change", slog.String("user_id", c.owner))
		c.resetLocked("")
	}
}
