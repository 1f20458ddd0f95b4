package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"reqsync/internal/extractor"
	"reqsync/internal/trace"

	_ "github.com/mattn/go-sqlite3"
)

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates or opens a SQLite database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create cache dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS files (
			path TEXT PRIMARY KEY,
			mtime_ns INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS symbols (
			id TEXT PRIMARY KEY,
			name TEXT,
			qualified_name TEXT,
			kind TEXT,
			file TEXT,
			package TEXT,
			start_line INTEGER,
			end_line INTEGER,
			receiver TEXT,
			signature TEXT,
			doc TEXT,
			content TEXT,
			calls JSON,
			type_refs JSON
		);`,
		`CREATE TABLE IF NOT EXISTS trace_links (
			ord INTEGER PRIMARY KEY AUTOINCREMENT,
			node_id TEXT NOT NULL,
			symbol_id TEXT NOT NULL,
			confidence REAL NOT NULL,
			source TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_symbols_file ON symbols(file);`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

// --- SymbolCache Implementation ---

func (s *SQLiteStore) FileMtime(ctx context.Context, path string) (int64, bool, error) {
	row := s.db.QueryRowContext(ctx, "SELECT mtime_ns FROM files WHERE path = ?", path)
	var mtime int64
	if err := row.Scan(&mtime); err != nil {
		if err == sql.ErrNoRows {
			return 0, false, nil
		}
		return 0, false, err
	}
	return mtime, true, nil
}

func (s *SQLiteStore) SaveFileSymbols(ctx context.Context, path string, mtimeNS int64, symbols []*extractor.CodeSymbol) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO files (path, mtime_ns) VALUES (?, ?)
		ON CONFLICT(path) DO UPDATE SET mtime_ns=excluded.mtime_ns
	`, path, mtimeNS); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM symbols WHERE file = ?", path); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO symbols (id, name, qualified_name, kind, file, package, start_line, end_line, receiver, signature, doc, content, calls, type_refs)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name=excluded.name,
			qualified_name=excluded.qualified_name,
			kind=excluded.kind,
			file=excluded.file,
			package=excluded.package,
			start_line=excluded.start_line,
			end_line=excluded.end_line,
			receiver=excluded.receiver,
			signature=excluded.signature,
			doc=excluded.doc,
			content=excluded.content,
			calls=excluded.calls,
			type_refs=excluded.type_refs
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, sym := range symbols {
		calls, _ := json.Marshal(sym.Calls)
		typeRefs, _ := json.Marshal(sym.TypeRefs)
		if _, err := stmt.Exec(
			sym.ID, sym.Name, sym.QualifiedName, string(sym.Kind), sym.File, sym.Package,
			sym.Span.StartLine, sym.Span.EndLine, sym.Receiver, sym.Signature, sym.Doc,
			sym.Content, calls, typeRefs,
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) LoadFileSymbols(ctx context.Context, path string) ([]*extractor.CodeSymbol, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, qualified_name, kind, file, package, start_line, end_line, receiver, signature, doc, content, calls, type_refs
		FROM symbols WHERE file = ? ORDER BY start_line, name
	`, path)
	if err != nil {
		return nil, fmt.Errorf("failed to query symbols: %w", err)
	}
	defer rows.Close()

	var symbols []*extractor.CodeSymbol
	for rows.Next() {
		var sym extractor.CodeSymbol
		var kind string
		var calls, typeRefs []byte
		if err := rows.Scan(
			&sym.ID, &sym.Name, &sym.QualifiedName, &kind, &sym.File, &sym.Package,
			&sym.Span.StartLine, &sym.Span.EndLine, &sym.Receiver, &sym.Signature, &sym.Doc,
			&sym.Content, &calls, &typeRefs,
		); err != nil {
			return nil, fmt.Errorf("failed to scan symbol: %w", err)
		}
		sym.Kind = extractor.Kind(kind)
		if len(calls) > 0 {
			_ = json.Unmarshal(calls, &sym.Calls)
		}
		if len(typeRefs) > 0 {
			_ = json.Unmarshal(typeRefs, &sym.TypeRefs)
		}
		symbols = append(symbols, &sym)
	}
	return symbols, rows.Err()
}

func (s *SQLiteStore) InvalidateFile(ctx context.Context, path string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM symbols WHERE file = ?", path); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM files WHERE path = ?", path); err != nil {
		return err
	}
	return tx.Commit()
}

// --- TraceStore Implementation ---

func (s *SQLiteStore) SaveTraceLinks(ctx context.Context, links []trace.Link) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM trace_links"); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO trace_links (node_id, symbol_id, confidence, source) VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, link := range links {
		if _, err := stmt.Exec(link.NodeID, link.SymbolID, link.Confidence, string(link.Source)); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) LoadTraceLinks(ctx context.Context) ([]trace.Link, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT node_id, symbol_id, confidence, source FROM trace_links ORDER BY ord")
	if err != nil {
		return nil, fmt.Errorf("failed to query trace links: %w", err)
	}
	defer rows.Close()

	var links []trace.Link
	for rows.Next() {
		var link trace.Link
		var source string
		if err := rows.Scan(&link.NodeID, &link.SymbolID, &link.Confidence, &source); err != nil {
			return nil, fmt.Errorf("failed to scan trace link: %w", err)
		}
		link.Source = trace.Source(source)
		links = append(links, link)
	}
	return links, rows.Err()
}
