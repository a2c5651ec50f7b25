// Package model はドメインモデルを定義する。
package model

import "time"

// User はAuthサービスが管理するユーザーを表す。
// アプリケーションはIDとEmailのみを参照する。
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"` // localバックエンドのみ使用
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Session はlocalバックエンドが永続化するログインセッションを表す。
// IDはクライアントに渡すアクセストークンそのもの。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}
