package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/notesapp/internal/model"
)

// PostgresNoteRepo はPostgreSQLを使用したメモリポジトリ。
type PostgresNoteRepo struct {
	db *sql.DB
}

// NewPostgresNoteRepo はPostgresNoteRepoを生成する。
func NewPostgresNoteRepo(db *sql.DB) *PostgresNoteRepo {
	return &PostgresNoteRepo{db: db}
}

// ListByUserID はユーザーのメモをcreated_at降順で返す。
// 同時刻のメモはid順で並べ、結果の順序を安定させる。
func (r *PostgresNoteRepo) ListByUserID(ctx context.Context, userID string) ([]model.Note, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, title, content, tag, user_id, created_at
		 FROM notes
		 WHERE user_id = $1
		 ORDER BY created_at DESC, id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}
	defer rows.Close()

	notes := make([]model.Note, 0)
	for rows.Next() {
		var n model.Note
		if err := rows.Scan(&n.ID, &n.Title, &n.Content, &n.Tag, &n.UserID, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan note: %w", err)
		}
		notes = append(notes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate notes: %w", err)
	}

	return notes, nil
}

// Create はメモを作成する。created_atはDB側で割り当て、noteに書き戻す。
func (r *PostgresNoteRepo) Create(ctx context.Context, note *model.Note) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO notes (id, title, content, tag, user_id)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING created_at`,
		note.ID, note.Title, note.Content, note.Tag, note.UserID,
	).Scan(&note.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert note: %w", err)
	}
	return nil
}

// DeleteByIDAndUserID は所有者が一致するメモを削除する。
// 該当行がない場合（他人のメモ・削除済み）もnilを返す。
func (r *PostgresNoteRepo) DeleteByIDAndUserID(ctx context.Context, id, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM notes WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete note: %w", err)
	}
	return nil
}

// compile-time interface check
var _ NoteRepository = (*PostgresNoteRepo)(nil)
