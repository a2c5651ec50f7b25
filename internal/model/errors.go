package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string            // エラーコード
	Message  string            // エラーメッセージ
	Category string            // カテゴリ: auth, validation, note, system
	Action   string            // ユーザー向け対処方法
	Fields   map[string]string // 入力項目ごとの検証メッセージ（validationのみ）
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeValidationFailed = "VALIDATION_FAILED"
	ErrCodeUnauthorized     = "UNAUTHORIZED"
	ErrCodeSessionLoading   = "SESSION_LOADING"
	ErrCodeNotesFetchFailed = "NOTES_FETCH_FAILED"
	ErrCodeInternal         = "INTERNAL_ERROR"
)

// NewValidationError は入力検証エラーを生成する。
func NewValidationError(fields map[string]string) *APIError {
	return &APIError{
		Code:     ErrCodeValidationFailed,
		Message:  "Le formulaire contient des erreurs.",
		Category: "validation",
		Action:   "Corrigez les champs indiqués puis réessayez.",
		Fields:   fields,
	}
}

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "Authentification requise.",
		Category: "auth",
		Action:   "Connectez-vous puis réessayez.",
	}
}

// NewSessionLoadingError はセッション解決前のアクセスを表すエラーを生成する。
func NewSessionLoadingError() *APIError {
	return &APIError{
		Code:     ErrCodeSessionLoading,
		Message:  "Chargement de la session en cours.",
		Category: "auth",
		Action:   "Réessayez dans quelques instants.",
	}
}

// NewNotesFetchFailedError はメモ一覧の取得失敗エラーを生成する。
func NewNotesFetchFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeNotesFetchFailed,
		Message:  "Erreur lors de la récupération des notes",
		Category: "note",
		Action:   "Réessayez plus tard.",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログのみに記録する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "Une erreur interne est survenue.",
		Category: "system",
		Action:   "Réessayez plus tard.",
	}
}
