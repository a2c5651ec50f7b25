package model

import (
	"sort"
	"time"
)

// Note はユーザーが所有するメモを表す。
// IDとCreatedAtはData サービスが挿入時に割り当てる。作成後に更新されることはない。
type Note struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Tag       string    `json:"tag"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// NewNote はメモ作成リクエストを表す。
// UserIDは作成時のセッションユーザーで、以後変更されない。
type NewNote struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	Tag     string `json:"tag"`
	UserID  string `json:"user_id"`
}

// SortNotesNewestFirst はcreated_at降順に安定ソートする。
func SortNotesNewestFirst(notes []Note) {
	sort.SliceStable(notes, func(i, j int) bool {
		return notes[i].CreatedAt.After(notes[j].CreatedAt)
	})
}
