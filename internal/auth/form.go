// Package auth はログイン・登録フォームの送信処理を提供する。
package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/hitoshi/notesapp/internal/backend"
	"github.com/hitoshi/notesapp/internal/metrics"
	"github.com/hitoshi/notesapp/internal/security"
	"github.com/hitoshi/notesapp/internal/validation"
)

// Kind はフォームの種類を表す。
type Kind string

const (
	KindLogin    Kind = "login"
	KindRegister Kind = "register"
)

// 画面表示用の文言
const (
	LoginLabel       = "Se connecter"
	RegisterLabel    = "S'inscrire"
	LoadingLabel     = "Chargement..."
	LoginFallback    = "Une erreur est survenue lors de la connexion"
	RegisterFallback = "Une erreur est survenue lors de l'inscription"
	InFlightMessage  = "Une requête est déjà en cours."
)

// ErrSubmitInFlight は同じフォームの送信が処理中であることを表す。
var ErrSubmitInFlight = errors.New("form submission already in flight")

// LoginInput はログインフォームの入力値。
type LoginInput struct {
	Email    string `form:"email" validate:"required,email"`
	Password string `form:"password" validate:"required"`
}

// RegisterInput は登録フォームの入力値。
type RegisterInput struct {
	Email    string `form:"email" validate:"required,email"`
	Password string `form:"password" validate:"required,min=6"`
}

// Result はフォーム送信の結果。
type Result struct {
	OK          bool
	Email       string            // 再表示用。パスワードは保持しない
	Message     string            // フォーム付近に表示するエラー文言
	FieldErrors map[string]string // 入力項目ごとの検証メッセージ
	Err         error
}

// Form はログインまたは登録フォームを表す。
// 送信中は同じフォームの再送信を受け付けない。
type Form struct {
	kind      Kind
	auth      backend.Auth
	validator *validation.Validator
	sanitizer security.TextSanitizer
	metrics   metrics.MetricsCollector
	logger    *slog.Logger

	mu       sync.Mutex
	inFlight bool
}

// NewLoginForm はログインフォームを生成する。
func NewLoginForm(auth backend.Auth, v *validation.Validator, collector metrics.MetricsCollector, logger *slog.Logger) *Form {
	return newForm(KindLogin, auth, v, collector, logger)
}

// NewRegisterForm は登録フォームを生成する。
func NewRegisterForm(auth backend.Auth, v *validation.Validator, collector metrics.MetricsCollector, logger *slog.Logger) *Form {
	return newForm(KindRegister, auth, v, collector, logger)
}

func newForm(kind Kind, auth backend.Auth, v *validation.Validator, collector metrics.MetricsCollector, logger *slog.Logger) *Form {
	if v == nil {
		v = validation.New()
	}
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Form{
		kind:      kind,
		auth:      auth,
		validator: v,
		sanitizer: security.NewTextSanitizer(),
		metrics:   collector,
		logger:    logger,
	}
}

// Kind はフォームの種類を返す。
func (f *Form) Kind() Kind {
	return f.kind
}

// Submitting は送信処理中かを返す。
func (f *Form) Submitting() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inFlight
}

// Label は送信ボタンの文言を返す。
func (f *Form) Label() string {
	if f.Submitting() {
		return LoadingLabel
	}
	if f.kind == KindRegister {
		return RegisterLabel
	}
	return LoginLabel
}

// Submit は入力を検証し、Authサービスを呼び出す。
// 検証に失敗した場合はサービスを呼び出さない。
func (f *Form) Submit(ctx context.Context, email, password string) Result {
	email = strings.TrimSpace(email)
	res := Result{Email: email}

	// 1. 入力検証
	var input any
	if f.kind == KindRegister {
		input = &RegisterInput{Email: email, Password: password}
	} else {
		input = &LoginInput{Email: email, Password: password}
	}
	if err := f.validator.Validate(input); err != nil {
		fields, _ := validation.FieldErrors(err)
		f.metrics.RecordAuthAttempt(string(f.kind), metrics.OutcomeInvalid)
		res.FieldErrors = fields
		res.Err = err
		return res
	}

	// 2. 送信中フラグを立てる
	if !f.begin() {
		res.Message = InFlightMessage
		res.Err = ErrSubmitInFlight
		return res
	}
	defer f.end()

	// 3. サービス呼び出し
	var err error
	if f.kind == KindRegister {
		_, err = f.auth.SignUp(ctx, email, password)
	} else {
		_, err = f.auth.SignInWithPassword(ctx, email, password)
	}
	if err != nil {
		f.metrics.RecordAuthAttempt(string(f.kind), metrics.OutcomeFailure)
		f.logger.Warn("authentication failed",
			slog.String("form", string(f.kind)),
			slog.String("error", err.Error()),
		)
		res.Message = f.failureMessage(err)
		res.Err = err
		return res
	}

	f.metrics.RecordAuthAttempt(string(f.kind), metrics.OutcomeSuccess)
	res.OK = true
	return res
}

func (f *Form) begin() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.inFlight {
		return false
	}
	f.inFlight = true
	return true
}

func (f *Form) end() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inFlight = false
}

// failureMessage はサービスの文言があればプレーンテキスト化して返し、
// なければ（または空になれば）固定文言を返す。
func (f *Form) failureMessage(err error) string {
	if msg, ok := backend.ServiceMessage(err); ok {
		if msg = f.sanitizer.Sanitize(msg); msg != "" {
			return msg
		}
	}
	if f.kind == KindRegister {
		return RegisterFallback
	}
	return LoginFallback
}
