package handler

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/notesapp/internal/middleware"
	"github.com/hitoshi/notesapp/internal/session"
)

//go:embed templates/*.html
var templates embed.FS

// 画面テンプレート名
const (
	pageHome     = "home"
	pageLogin    = "login"
	pageRegister = "register"
)

// pageData はレイアウトに渡す共通データ。
type pageData struct {
	Title     string
	Session   session.State
	CSRFToken string
	Content   any
}

// Renderer は埋め込みテンプレートから画面を描画する。
type Renderer struct {
	pages  map[string]*template.Template
	logger *slog.Logger
}

// NewRenderer は全画面のテンプレートを解析する。
func NewRenderer(logger *slog.Logger) (*Renderer, error) {
	if logger == nil {
		logger = slog.Default()
	}

	funcs := template.FuncMap{
		"formatDate": formatDate,
	}

	pages := make(map[string]*template.Template)
	for _, name := range []string{pageHome, pageLogin, pageRegister} {
		tmpl, err := template.New(name).Funcs(funcs).ParseFS(templates,
			"templates/layout.html",
			"templates/"+name+".html",
		)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s template: %w", name, err)
		}
		pages[name] = tmpl
	}

	return &Renderer{pages: pages, logger: logger}, nil
}

// Render は画面をバッファに描画してからレスポンスに書き込む。
// 描画に失敗した場合は500を返す。
func (rd *Renderer) Render(w http.ResponseWriter, r *http.Request, status int, page, title string, state session.State, content any) {
	tmpl, ok := rd.pages[page]
	if !ok {
		rd.logger.Error("unknown page template", slog.String("page", page))
		http.Error(w, "Une erreur interne est survenue.", http.StatusInternalServerError)
		return
	}

	data := pageData{
		Title:     title,
		Session:   state,
		CSRFToken: middleware.CSRFTokenFromContext(r.Context()),
		Content:   content,
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout", data); err != nil {
		rd.logger.Error("failed to execute template",
			slog.String("page", page),
			slog.String("error", err.Error()),
		)
		http.Error(w, "Une erreur interne est survenue.", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}

// formatDate は作成日をフランス式の日付（日/月/年）で返す。
func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format("02/01/2006")
}
