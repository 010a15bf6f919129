// Package store is the durable key/value state of chatlink: the session token
// and the selected organization/agent pair. State must survive the interactive
// surface closing, so it lives in sqlite (and the OS keychain for the token
// when one is available).
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/chatlink/chatlink/internal/backend"
)

// Storage keys.
const (
	KeyToken         = "token"
	KeySelectedOrg   = "selectedOrg"
	KeySelectedAgent = "selectedAgent"
)

// ErrNotFound is returned when a key has no stored value.
var ErrNotFound = errors.New("not found")

// Store persists chatlink state. The token goes to the OS keychain when it is
// functional; everything else (and the token fallback) goes to a sqlite kv
// table. Values are written wholesale per key, last writer wins.
type Store struct {
	db         *sql.DB
	useKeyring bool
}

// Open opens (creating if needed) the store at dbPath.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	s := &Store{db: db, useKeyring: keyringAvailable()}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureSchema() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS kv (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("create kv table: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Token returns the stored session token, or ErrNotFound.
func (s *Store) Token(ctx context.Context) (string, error) {
	if s.useKeyring {
		token, err := keyringGet()
		if err == nil && token != "" {
			return token, nil
		}
		// fall through to sqlite: the entry may predate keychain availability
	}
	return s.get(ctx, KeyToken)
}

// SetToken stores the session token, overwriting any previous one.
func (s *Store) SetToken(ctx context.Context, token string) error {
	if s.useKeyring {
		if err := keyringSet(token); err == nil {
			// keep sqlite clean so a stale copy can't outlive a logout
			_ = s.delete(ctx, KeyToken)
			return nil
		}
	}
	return s.set(ctx, KeyToken, token)
}

// SelectedOrg returns the persisted organization selection, or ErrNotFound.
func (s *Store) SelectedOrg(ctx context.Context) (*backend.Organization, error) {
	var org backend.Organization
	if err := s.getJSON(ctx, KeySelectedOrg, &org); err != nil {
		return nil, err
	}
	return &org, nil
}

// SetSelectedOrg persists the organization selection.
func (s *Store) SetSelectedOrg(ctx context.Context, org *backend.Organization) error {
	return s.setJSON(ctx, KeySelectedOrg, org)
}

// SelectedAgent returns the persisted agent selection, or ErrNotFound.
func (s *Store) SelectedAgent(ctx context.Context) (*backend.Agent, error) {
	var agent backend.Agent
	if err := s.getJSON(ctx, KeySelectedAgent, &agent); err != nil {
		return nil, err
	}
	return &agent, nil
}

// SetSelectedAgent persists the agent selection.
func (s *Store) SetSelectedAgent(ctx context.Context, agent *backend.Agent) error {
	return s.setJSON(ctx, KeySelectedAgent, agent)
}

// Clear removes the token and both selections as a single logout operation.
// The sqlite keys go in one transaction; the keychain entry is removed after.
func (s *Store) Clear(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("clear store: %w", err)
	}
	for _, key := range []string{KeyToken, KeySelectedOrg, KeySelectedAgent} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
			tx.Rollback()
			return fmt.Errorf("clear %s: %w", key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("clear store: %w", err)
	}

	if s.useKeyring {
		_ = keyringDelete()
	}
	return nil
}

func (s *Store) get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get %s: %w", key, err)
	}
	return value, nil
}

func (s *Store) set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (s *Store) delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (s *Store) getJSON(ctx context.Context, key string, v any) error {
	raw, err := s.get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func (s *Store) setJSON(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.set(ctx, key, string(raw))
}
