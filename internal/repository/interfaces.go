// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/notesapp/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレス（大文字小文字を区別しない）でユーザーを取得する。
	// 見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// Create はユーザーを作成する。メールアドレスが重複する場合はErrDuplicateEmailを返す。
	Create(ctx context.Context, user *model.User) error
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteExpired はbefore時点で期限切れのセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// NoteRepository はメモデータの永続化インターフェース。
// 全ての操作は所有者のuser_idで絞り込む。
type NoteRepository interface {
	// ListByUserID はユーザーのメモをcreated_at降順で返す。
	ListByUserID(ctx context.Context, userID string) ([]model.Note, error)

	// Create はメモを作成する。IDとCreatedAtはnoteに書き戻される。
	Create(ctx context.Context, note *model.Note) error

	// DeleteByIDAndUserID は所有者が一致するメモを削除する。
	// 該当行がない場合もエラーにしない。
	DeleteByIDAndUserID(ctx context.Context, id, userID string) error
}
