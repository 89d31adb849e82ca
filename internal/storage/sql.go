package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/hotnsoursoup/KlipMapper-sub000/internal/anchor"
	"github.com/hotnsoursoup/KlipMapper-sub000/internal/debug"
	amerrors "github.com/hotnsoursoup/KlipMapper-sub000/internal/errors"
	"github.com/hotnsoursoup/KlipMapper-sub000/internal/types"
	"github.com/hotnsoursoup/KlipMapper-sub000/internal/version"
)

// SQL drivers
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS projects (
		name       TEXT PRIMARY KEY,
		root       TEXT NOT NULL DEFAULT '',
		created_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS files (
		project    TEXT NOT NULL,
		path       TEXT NOT NULL,
		file_id    TEXT NOT NULL,
		hash       TEXT NOT NULL,
		lang       TEXT NOT NULL,
		build_id   TEXT NOT NULL,
		payload    TEXT NOT NULL,
		updated_at BIGINT NOT NULL,
		PRIMARY KEY (project, path)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_files_hash ON files(hash)`,
}

// SQLSink keeps one row per file in a files table, keyed by project and
// path. The payload column holds the encoded header.
type SQLSink struct {
	db      *sql.DB
	driver  string
	project string

	schemaOnce sync.Once
	schemaErr  error
	projectMu  sync.Mutex
	ensured    map[string]bool
}

// OpenSQL connects with driver ("sqlite" or "pgx") and prepares the schema
func OpenSQL(ctx context.Context, driver, dsn, project string) (*SQLSink, error) {
	name := normalizeDriver(driver)
	if name == "" {
		return nil, amerrors.NewConfigError("storage.sql_driver", driver, errors.New("expected sqlite or pgx"))
	}
	driver = name
	if strings.TrimSpace(dsn) == "" {
		return nil, amerrors.NewConfigError("storage.dsn", "", errors.New("dsn is required"))
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, amerrors.NewIoError("open", driver, err)
	}
	s := NewSQLSink(db, driver, project)
	if err := s.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLSink wraps an open database
func NewSQLSink(db *sql.DB, driver, project string) *SQLSink {
	driver = normalizeDriver(driver)
	if driver == DriverSQLite {
		// sqlite serializes writers; one connection avoids SQLITE_BUSY
		db.SetMaxOpenConns(1)
	}
	return &SQLSink{db: db, driver: driver, project: project, ensured: map[string]bool{}}
}

func normalizeDriver(d string) string {
	switch strings.ToLower(strings.TrimSpace(d)) {
	case "", "sqlite", "sqlite3":
		return DriverSQLite
	case "pgx", "postgres", "postgresql":
		return DriverPostgres
	}
	return ""
}

func (s *SQLSink) Name() string { return "sql" }

// Close closes the database
func (s *SQLSink) Close() error {
	return s.db.Close()
}

// rebind turns ? placeholders into $n for Postgres
func (s *SQLSink) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 1
	for _, ch := range query {
		if ch == '?' {
			b.WriteString("$" + strconv.Itoa(n))
			n++
			continue
		}
		b.WriteRune(ch)
	}
	return b.String()
}

func (s *SQLSink) ensureSchema(ctx context.Context) error {
	s.schemaOnce.Do(func() {
		for _, stmt := range schemaStatements {
			if _, err := s.db.ExecContext(ctx, stmt); err != nil {
				s.schemaErr = amerrors.NewIoError("schema", s.driver, err)
				return
			}
		}
	})
	return s.schemaErr
}

// EnsureProject inserts the project row once per sink
func (s *SQLSink) EnsureProject(ctx context.Context, project, root string) error {
	s.projectMu.Lock()
	defer s.projectMu.Unlock()
	if s.ensured[project] {
		return nil
	}
	q := s.rebind(`INSERT INTO projects (name, root, created_at) VALUES (?, ?, ?) ON CONFLICT (name) DO NOTHING`)
	if _, err := s.db.ExecContext(ctx, q, project, root, time.Now().Unix()); err != nil {
		return amerrors.NewIoError("ensure project", project, err)
	}
	s.ensured[project] = true
	return nil
}

func (s *SQLSink) PutAnchor(ctx context.Context, fileID string, h *types.AnchorHeader) error {
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}
	if err := s.EnsureProject(ctx, s.project, ""); err != nil {
		return err
	}
	payload, err := anchor.Encode(h)
	if err != nil {
		return err
	}
	path := PathOf(fileID)
	q := s.rebind(`INSERT INTO files (project, path, file_id, hash, lang, build_id, payload, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (project, path) DO UPDATE SET
			file_id = excluded.file_id,
			hash = excluded.hash,
			lang = excluded.lang,
			build_id = excluded.build_id,
			payload = excluded.payload,
			updated_at = excluded.updated_at`)
	_, err = s.db.ExecContext(ctx, q, s.project, path, fileID, h.FileFingerprint, string(h.Language),
		version.Current().AnalyzerID(), payload, time.Now().Unix())
	if err != nil {
		return amerrors.NewIoError("upsert", path, err)
	}
	debug.LogStore("sql upsert %s/%s", s.project, path)
	return nil
}

func (s *SQLSink) Get(ctx context.Context, path string) (*types.AnchorHeader, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	var payload string
	q := s.rebind(`SELECT payload FROM files WHERE project = ? AND path = ?`)
	err := s.db.QueryRowContext(ctx, q, s.project, path).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(path)
	}
	if err != nil {
		return nil, amerrors.NewIoError("select", path, err)
	}
	h, err := anchor.Decode(payload)
	if err != nil {
		return nil, withPath(err, path)
	}
	return h, nil
}

func (s *SQLSink) Delete(ctx context.Context, fileID string) error {
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}
	path := PathOf(fileID)
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM files WHERE project = ? AND path = ?`), s.project, path)
	if err != nil {
		return amerrors.NewIoError("delete", path, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return notFound(path)
	}
	return nil
}

// List returns the file ids stored for project; an empty project means
// the sink's own
func (s *SQLSink) List(ctx context.Context, project string) ([]string, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	if project == "" {
		project = s.project
	}
	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT file_id FROM files WHERE project = ? ORDER BY path`), project)
	if err != nil {
		return nil, amerrors.NewIoError("list", project, err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, amerrors.NewIoError("list", project, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, amerrors.NewIoError("list", project, err)
	}
	return ids, nil
}

// FileRow is the stored metadata of one file
type FileRow struct {
	Project   string
	Path      string
	FileID    string
	Hash      string
	Language  string
	BuildID   string
	UpdatedAt time.Time
}

// FindByHash returns the files whose content fingerprint is hash, across
// projects
func (s *SQLSink) FindByHash(ctx context.Context, hash string) ([]FileRow, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	q := s.rebind(`SELECT project, path, file_id, hash, lang, build_id, updated_at
		FROM files WHERE hash = ? ORDER BY project, path`)
	rows, err := s.db.QueryContext(ctx, q, hash)
	if err != nil {
		return nil, amerrors.NewIoError("find", hash, err)
	}
	defer rows.Close()
	var out []FileRow
	for rows.Next() {
		var r FileRow
		var ts int64
		if err := rows.Scan(&r.Project, &r.Path, &r.FileID, &r.Hash, &r.Language, &r.BuildID, &ts); err != nil {
			return nil, amerrors.NewIoError("find", hash, err)
		}
		r.UpdatedAt = time.Unix(ts, 0)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("find by hash: %w", err)
	}
	return out, nil
}
