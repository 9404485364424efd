// Package keychain persists forum login cookies between runs.
package keychain

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"forumbump/internal/components/assert"
	"forumbump/internal/components/chrono"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var Schema string

var ErrNoSession = errors.New("no stored session")

type Session struct {
	Username string
	Cookie   string
	SavedAt  time.Time
}

type Keychain struct {
	db   *sql.DB
	time chrono.TimeAPI
}

// Open opens (creating if needed) the sqlite database at `path`.
func Open(ctx context.Context, path string) (*Keychain, error) {
	if path != ":memory:" {
		err := os.MkdirAll(filepath.Dir(path), 0777)
		if err != nil {
			return nil, fmt.Errorf("open keychain: %w", err)
		}
	}

	database, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open keychain: %w", err)
	}
	// a :memory: database only exists on the connection that created it
	database.SetMaxOpenConns(1)
	if path != ":memory:" {
		_, err = database.ExecContext(ctx, "PRAGMA journal_mode=WAL")
		if err != nil {
			database.Close()
			return nil, fmt.Errorf("open keychain: %w", err)
		}
	}

	k, err := New(ctx, database, chrono.NewStandardTime())
	if err != nil {
		database.Close()
		return nil, err
	}
	return k, nil
}

// New applies the schema to an open database.
func New(ctx context.Context, database *sql.DB, clock chrono.TimeAPI) (*Keychain, error) {
	assert.NotNil(database)
	assert.NotNil(clock)

	_, err := database.ExecContext(ctx, Schema)
	if err != nil {
		return nil, err
	}
	return &Keychain{db: database, time: clock}, nil
}

func (k *Keychain) Close() error {
	return k.db.Close()
}

// SaveSession stores the cookie of a user, replacing the previous one.
func (k *Keychain) SaveSession(ctx context.Context, username, cookie string) error {
	_, err := k.db.ExecContext(
		ctx,
		`insert into forum_session(username, cookie, saved_at) values (?, ?, ?)
		on conflict (username) do update set cookie = excluded.cookie, saved_at = excluded.saved_at`,
		username, cookie, k.time.Now().UnixMilli(),
	)
	return err
}

func scanSession(row *sql.Row) (Session, error) {
	var s Session
	var savedAt int64
	err := row.Scan(&s.Username, &s.Cookie, &savedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrNoSession
	}
	if err != nil {
		return Session{}, err
	}
	s.SavedAt = time.UnixMilli(savedAt)
	return s, nil
}

// LatestSession returns the most recently saved session or ErrNoSession.
func (k *Keychain) LatestSession(ctx context.Context) (Session, error) {
	return scanSession(k.db.QueryRowContext(
		ctx,
		`select username, cookie, saved_at from forum_session
		order by saved_at desc limit 1`,
	))
}

// Session returns the stored session of a user or ErrNoSession.
func (k *Keychain) Session(ctx context.Context, username string) (Session, error) {
	return scanSession(k.db.QueryRowContext(
		ctx,
		"select username, cookie, saved_at from forum_session where username = ?",
		username,
	))
}

func (k *Keychain) DeleteSession(ctx context.Context, username string) error {
	_, err := k.db.ExecContext(ctx, "delete from forum_session where username = ?", username)
	return err
}
