// Package database はlocalバックエンドが使うPostgreSQLの接続とスキーマを管理する。
//
// スキーマはバイナリに埋め込んだ3本のマイグレーションで構成される。
//
//	000001 users    認証情報（メールアドレスとArgon2idハッシュ）
//	000002 sessions アクセス/リフレッシュトークンと有効期限
//	000003 notes    メモ本体。ownerのusers削除に連動して消える
package database

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

const migrationsDir = "migrations"

//go:embed migrations/*.sql
var migrationsFS embed.FS

func embeddedSource() (source.Driver, error) {
	src, err := iofs.New(migrationsFS, migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load embedded schema: %w", err)
	}
	return src, nil
}

// NewMigrator はusers/sessions/notesスキーマを対象にしたmigrateインスタンスを返す。
// 呼び出し側でCloseすること。
func NewMigrator(databaseURL string) (*migrate.Migrate, error) {
	src, err := embeddedSource()
	if err != nil {
		return nil, err
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect migrator: %w", err)
	}
	return m, nil
}

// LatestVersion は埋め込まれた最新のスキーマバージョンを返す。DBには接続しない。
func LatestVersion() (uint, error) {
	src, err := embeddedSource()
	if err != nil {
		return 0, err
	}
	defer src.Close()

	v, err := src.First()
	if err != nil {
		return 0, fmt.Errorf("no embedded migrations: %w", err)
	}
	for {
		next, err := src.Next(v)
		if errors.Is(err, fs.ErrNotExist) {
			return v, nil
		}
		if err != nil {
			return 0, fmt.Errorf("failed to walk embedded migrations: %w", err)
		}
		v = next
	}
}

// RunMigrations は未適用のスキーマ変更を順に適用し、適用後のバージョンを返す。
// 途中で失敗したままのdirty状態は自動修復せずエラーにする。
func RunMigrations(databaseURL string) (uint, error) {
	m, err := NewMigrator(databaseURL)
	if err != nil {
		return 0, err
	}
	defer m.Close()

	if _, dirty, err := m.Version(); err == nil && dirty {
		return 0, errors.New("schema is dirty; fix it manually and force the version")
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("failed to apply schema: %w", err)
	}

	v, _, err := m.Version()
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return v, nil
}
