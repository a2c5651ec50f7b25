package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/notesapp/internal/middleware"
	"github.com/hitoshi/notesapp/internal/model"
	"github.com/hitoshi/notesapp/internal/notes"
)

// NotesController はメモ画面ハンドラーが必要とするコントローラーのインターフェース。
type NotesController interface {
	Mount(ctx context.Context, owner string) error
	FetchNotes(ctx context.Context, owner string) error
	AddNote(ctx context.Context, owner, title, content, tag string) error
	DeleteNote(ctx context.Context, owner, id string) error
	ToggleForm()
	DismissMutationError()
	View() notes.View
}

// homeData はホーム画面の描画データ。
type homeData struct {
	View        notes.View
	FieldErrors map[string]string
}

// NotesHandler はメモ一覧画面と操作のHTTPハンドラー。
// ガードミドルウェアの内側に配置する。
type NotesHandler struct {
	controller NotesController
	sessions   SessionSource
	renderer   *Renderer
	logger     *slog.Logger
}

// NewNotesHandler はNotesHandlerを生成する。
func NewNotesHandler(controller NotesController, sessions SessionSource, renderer *Renderer, logger *slog.Logger) *NotesHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &NotesHandler{
		controller: controller,
		sessions:   sessions,
		renderer:   renderer,
		logger:     logger,
	}
}

// Home はメモ一覧を取得して表示する。取得失敗時もエラー文言付きで表示する。
// GET /
func (h *NotesHandler) Home(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.UserFromContext(r.Context())
	if err != nil {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	// 失敗はコントローラーがfetchErrorとして保持する
	_ = h.controller.Mount(r.Context(), user.ID)

	h.renderHome(w, r, http.StatusOK, nil)
}

// AddNote はメモを追加する。タイトル未入力の場合はフォームを再表示する。
// POST /notes
func (h *NotesHandler) AddNote(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.UserFromContext(r.Context())
	if err != nil {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	err = h.controller.AddNote(r.Context(),
		user.ID,
		r.PostFormValue("title"),
		r.PostFormValue("content"),
		r.PostFormValue("tag"),
	)
	if errors.Is(err, notes.ErrTitleRequired) {
		h.renderHome(w, r, http.StatusUnprocessableEntity, map[string]string{
			"title": "Ce champ est obligatoire.",
		})
		return
	}

	// 成功・失敗ともに一覧へ戻る。失敗時の文言はコントローラーが保持する
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// ToggleForm は追加フォームの開閉を切り替える。
// POST /notes/form
func (h *NotesHandler) ToggleForm(w http.ResponseWriter, r *http.Request) {
	h.controller.ToggleForm()
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// DeleteNote はメモを削除する。
// POST /notes/{id}/delete
func (h *NotesHandler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.UserFromContext(r.Context())
	if err != nil {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		http.Error(w, "missing note id", http.StatusBadRequest)
		return
	}

	_ = h.controller.DeleteNote(r.Context(), user.ID, id)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// ListNotes はメモ一覧をJSONで返す。
// GET /api/notes
func (h *NotesHandler) ListNotes(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	if err := h.controller.FetchNotes(r.Context(), userID); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadGateway, model.NewNotesFetchFailedError())
		return
	}

	view := h.controller.View()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(view.Notes)
}

func (h *NotesHandler) renderHome(w http.ResponseWriter, r *http.Request, status int, fieldErrors map[string]string) {
	view := h.controller.View()
	h.renderer.Render(w, r, status, pageHome, "Mes Notes", h.sessions.Current(), homeData{
		View:        view,
		FieldErrors: fieldErrors,
	})
	if view.MutationError != "" {
		h.controller.DismissMutationError()
	}
}
