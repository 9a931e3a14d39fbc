package agentstub

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver
)

//go:embed schema.sql
var schemaFS embed.FS

// Kind separates DOM snapshots from automate screenshots.
type Kind string

const (
	KindWeb      Kind = "web"
	KindAutomate Kind = "automate"
)

// Snapshot is one submission received by the stub.
type Snapshot struct {
	ID              string          `json:"id"`
	Kind            Kind            `json:"kind"`
	Name            string          `json:"name"`
	URL             string          `json:"url,omitempty"`
	HTML            string          `json:"-"`
	SessionID       string          `json:"session_id,omitempty"`
	PageGUID        string          `json:"page_guid,omitempty"`
	FrameGUID       string          `json:"frame_guid,omitempty"`
	Framework       string          `json:"framework,omitempty"`
	Options         json.RawMessage `json:"options,omitempty"`
	ClientInfo      string          `json:"client_info,omitempty"`
	EnvironmentInfo []string        `json:"environment_info,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// Store keeps received snapshots in SQLite.
type Store struct {
	db *sql.DB
}

// OpenStore opens (or creates) the database at path and applies the schema.
func OpenStore(path string) (*Store, error) {
	if path == "" {
		path = ":memory:"
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot db: %w", err)
	}
	// Every pooled connection to :memory: would get its own empty database.
	db.SetMaxOpenConns(1)

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		return fmt.Errorf("set busy_timeout: %w", err)
	}
	schemaSQL, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return fmt.Errorf("read schema.sql: %w", err)
	}
	if _, err := db.Exec(string(schemaSQL)); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Insert assigns an ID and timestamp to snap and stores it.
func (s *Store) Insert(ctx context.Context, snap *Snapshot) error {
	if snap.ID == "" {
		snap.ID = uuid.NewString()
	}
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = time.Now().UTC()
	}
	opts := snap.Options
	if len(opts) == 0 {
		opts = json.RawMessage("{}")
	}
	env, err := json.Marshal(snap.EnvironmentInfo)
	if err != nil {
		return fmt.Errorf("encode environment_info: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO snapshots (id, kind, name, url, html, session_id, page_guid, frame_guid,
			framework, options, client_info, environment_info, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.ID, string(snap.Kind), snap.Name, snap.URL, snap.HTML, snap.SessionID,
		snap.PageGUID, snap.FrameGUID, snap.Framework, string(opts), snap.ClientInfo,
		string(env), snap.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

const snapshotColumns = `id, kind, name, url, html, session_id, page_guid, frame_guid,
	framework, options, client_info, environment_info, created_at`

// Latest returns the most recent snapshot of kind named name, or nil.
func (s *Store) Latest(ctx context.Context, kind Kind, name string) (*Snapshot, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+snapshotColumns+` FROM snapshots
		WHERE kind = ? AND name = ? ORDER BY created_at DESC, rowid DESC LIMIT 1`, string(kind), name)
	snap, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return snap, err
}

// List returns all snapshots in arrival order.
func (s *Store) List(ctx context.Context) ([]*Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+snapshotColumns+` FROM snapshots ORDER BY created_at, rowid`)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var out []*Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(sc scanner) (*Snapshot, error) {
	var (
		snap    Snapshot
		kind    string
		opts    string
		env     string
		created int64
	)
	err := sc.Scan(&snap.ID, &kind, &snap.Name, &snap.URL, &snap.HTML, &snap.SessionID,
		&snap.PageGUID, &snap.FrameGUID, &snap.Framework, &opts, &snap.ClientInfo, &env, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan snapshot: %w", err)
	}
	snap.Kind = Kind(kind)
	snap.Options = json.RawMessage(opts)
	snap.CreatedAt = time.Unix(0, created).UTC()
	if err := json.Unmarshal([]byte(env), &snap.EnvironmentInfo); err != nil {
		return nil, fmt.Errorf("decode environment_info: %w", err)
	}
	return &snap, nil
}
