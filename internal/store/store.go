package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/quizgen/internal/model"

	_ "modernc.org/sqlite"
)

// schemaVersion is recorded in the metadata table by migrate.
const schemaVersion = "1"

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite allows one writer; a single connection also keeps :memory:
	// databases from splitting across the pool.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		model TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		input TEXT NOT NULL,
		output TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_kind_created ON runs(kind, created_at);

	CREATE TABLE IF NOT EXISTS metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	return s.SetMetadata("schema_version", schemaVersion)
}

// SaveRun stores a run, assigning an ID and creation time when unset.
func (s *Store) SaveRun(r model.Run) (model.Run, error) {
	if r.Kind != model.RunSegmentation && r.Kind != model.RunQuestions {
		return r, fmt.Errorf("unknown run kind %q", r.Kind)
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	if len(r.Input) == 0 {
		r.Input = json.RawMessage("null")
	}
	if len(r.Output) == 0 {
		r.Output = json.RawMessage("null")
	}

	_, err := s.db.Exec(
		`INSERT INTO runs (id, kind, model, created_at, input, output) VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.Kind, r.Model, r.CreatedAt, string(r.Input), string(r.Output),
	)
	if err != nil {
		slog.Error("failed to save run", "kind", r.Kind, "error", err)
		return r, err
	}
	slog.Info("saved run", "id", r.ID, "kind", r.Kind, "model", r.Model)
	return r, nil
}

// RecordRun marshals input and output and saves them as a new run.
func (s *Store) RecordRun(kind model.RunKind, modelName string, input, output any) (model.Run, error) {
	in, err := json.Marshal(input)
	if err != nil {
		return model.Run{}, fmt.Errorf("marshal run input: %w", err)
	}
	out, err := json.Marshal(output)
	if err != nil {
		return model.Run{}, fmt.Errorf("marshal run output: %w", err)
	}
	return s.SaveRun(model.Run{Kind: kind, Model: modelName, Input: in, Output: out})
}

// GetRun returns a run by ID.
func (s *Store) GetRun(id string) (model.Run, error) {
	row := s.db.QueryRow(
		`SELECT id, kind, model, created_at, input, output FROM runs WHERE id = ?`, id,
	)
	return scanRun(row)
}

// ListRuns returns runs oldest first. An empty kind lists every run.
func (s *Store) ListRuns(kind model.RunKind) ([]model.Run, error) {
	query := `SELECT id, kind, model, created_at, input, output FROM runs`
	var args []any
	if kind != "" {
		query += ` WHERE kind = ?`
		args = append(args, kind)
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// RunCount returns the number of stored runs of the given kind ("" for all).
func (s *Store) RunCount(kind model.RunKind) (int, error) {
	var n int
	var err error
	if kind == "" {
		err = s.db.QueryRow(`SELECT COUNT(*) FROM runs`).Scan(&n)
	} else {
		err = s.db.QueryRow(`SELECT COUNT(*) FROM runs WHERE kind = ?`, kind).Scan(&n)
	}
	return n, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (model.Run, error) {
	var r model.Run
	var in, out string
	if err := sc.Scan(&r.ID, &r.Kind, &r.Model, &r.CreatedAt, &in, &out); err != nil {
		return model.Run{}, err
	}
	r.Input = json.RawMessage(in)
	r.Output = json.RawMessage(out)
	return r, nil
}
