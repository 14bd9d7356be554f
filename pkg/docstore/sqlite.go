package docstore

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pressly/goose/v3"

	_ "modernc.org/sqlite"
)

// timeLayout is fixed-width so stored timestamps compare correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLite implements Store on a single SQLite table holding JSON documents.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens or creates an SQLite database at the given path.
func NewSQLite(dbPath string) (*SQLite, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := runMigrations(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	// One writer at a time; read-modify-write updates run inside a transaction.
	db.SetMaxOpenConns(1)

	return &SQLite{db: db}, nil
}

func runMigrations(ctx context.Context, db *sql.DB) error {
	fsys, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, db, fsys)
	if err != nil {
		return fmt.Errorf("create migration provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

func (s *SQLite) Get(ctx context.Context, ref Ref) (*Document, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM documents WHERE collection = ? AND id = ?`,
		ref.Collection, ref.ID,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get %s: %w", ref, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", ref, err)
	}
	return decodeRow(ref, raw)
}

func (s *SQLite) Create(ctx context.Context, ref Ref, data map[string]any) error {
	body, err := marshalDoc(materialize(data))
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (collection, id, data, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(collection, id) DO NOTHING`,
		ref.Collection, ref.ID, body, now, now,
	)
	if err != nil {
		return fmt.Errorf("create %s: %w", ref, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("create %s: %w", ref, ErrAlreadyExists)
	}
	return nil
}

func (s *SQLite) Set(ctx context.Context, ref Ref, data map[string]any) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return setTx(ctx, tx, ref, data)
	})
}

func (s *SQLite) Update(ctx context.Context, ref Ref, fields map[string]any) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return updateTx(ctx, tx, ref, fields)
	})
}

func (s *SQLite) Delete(ctx context.Context, ref Ref) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM documents WHERE collection = ? AND id = ?`,
		ref.Collection, ref.ID,
	); err != nil {
		return fmt.Errorf("delete %s: %w", ref, err)
	}
	return nil
}

func (s *SQLite) Find(ctx context.Context, q Query) ([]Document, error) {
	where, args, err := buildWhereClause(q)
	if err != nil {
		return nil, err
	}
	query := "SELECT id, data FROM documents WHERE " + where + " ORDER BY id"
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", q.Collection, err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("scan document row: %w", err)
		}
		doc, err := decodeRow(NewRef(q.Collection, id), raw)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

func (s *SQLite) Count(ctx context.Context, q Query) (int64, error) {
	where, args, err := buildWhereClause(q)
	if err != nil {
		return 0, err
	}
	var count int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents WHERE "+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count %s: %w", q.Collection, err)
	}
	return count, nil
}

func (s *SQLite) NewBatch() Batch {
	return &sqliteBatch{store: s}
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

type sqliteBatch struct {
	stagedOps
	store *SQLite
}

func (b *sqliteBatch) Commit(ctx context.Context) error {
	if err := b.check(); err != nil {
		return err
	}
	if b.Len() == 0 {
		return nil
	}
	return b.store.withTx(ctx, func(tx *sql.Tx) error {
		for _, op := range b.stagedOps {
			var err error
			switch op.kind {
			case opSet:
				err = setTx(ctx, tx, op.ref, op.data)
			case opUpdate:
				err = updateTx(ctx, tx, op.ref, op.data)
			case opDelete:
				_, err = tx.ExecContext(ctx,
					`DELETE FROM documents WHERE collection = ? AND id = ?`,
					op.ref.Collection, op.ref.ID)
			}
			if err != nil {
				return fmt.Errorf("batch %s: %w", op.ref, err)
			}
		}
		return nil
	})
}

func setTx(ctx context.Context, tx *sql.Tx, ref Ref, data map[string]any) error {
	body, err := marshalDoc(materialize(data))
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO documents (collection, id, data, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(collection, id) DO UPDATE SET
		   data = excluded.data,
		   updated_at = excluded.updated_at`,
		ref.Collection, ref.ID, body, now, now,
	); err != nil {
		return fmt.Errorf("set %s: %w", ref, err)
	}
	return nil
}

func updateTx(ctx context.Context, tx *sql.Tx, ref Ref, fields map[string]any) error {
	var raw string
	err := tx.QueryRowContext(ctx,
		`SELECT data FROM documents WHERE collection = ? AND id = ?`,
		ref.Collection, ref.ID,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("update %s: %w", ref, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("update %s: %w", ref, err)
	}

	doc := map[string]any{}
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return fmt.Errorf("decode %s: %w", ref, err)
	}
	for path, value := range fields {
		if t, ok := value.(Transform); ok {
			setPath(doc, path, t.apply(getPath(doc, path)))
			continue
		}
		setPath(doc, path, encodeValue(value))
	}

	body, err := marshalDoc(doc)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE documents SET data = ?, updated_at = ? WHERE collection = ? AND id = ?`,
		body, time.Now().UTC(), ref.Collection, ref.ID,
	); err != nil {
		return fmt.Errorf("update %s: %w", ref, err)
	}
	return nil
}

// buildWhereClause constructs a SQL WHERE clause from a Query.
func buildWhereClause(q Query) (string, []any, error) {
	if err := q.validate(); err != nil {
		return "", nil, err
	}
	conditions := []string{"collection = ?"}
	args := []any{q.Collection}

	for _, f := range q.Filters {
		path := "$." + f.Field
		value := encodeFilterValue(f.Value)
		if f.Op == OpArrayContains {
			conditions = append(conditions,
				"EXISTS (SELECT 1 FROM json_each(documents.data, ?) WHERE json_each.value = ?)")
			args = append(args, path, value)
			continue
		}
		op := string(f.Op)
		if f.Op == OpEqual {
			op = "="
		}
		conditions = append(conditions, "json_extract(data, ?) "+op+" ?")
		args = append(args, path, value)
	}

	return strings.Join(conditions, " AND "), args, nil
}

func encodeFilterValue(v any) any {
	switch x := v.(type) {
	case bool:
		if x {
			return 1
		}
		return 0
	default:
		return encodeValue(v)
	}
}

// materialize encodes values for storage and resolves transforms against empty fields.
func materialize(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		if t, ok := v.(Transform); ok {
			out[k] = t.apply(nil)
			continue
		}
		out[k] = encodeValue(v)
	}
	return out
}

// encodeValue rewrites timestamps into the fixed-width text layout.
func encodeValue(v any) any {
	switch x := v.(type) {
	case time.Time:
		return x.UTC().Format(timeLayout)
	case *time.Time:
		if x == nil {
			return nil
		}
		return x.UTC().Format(timeLayout)
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, vv := range x {
			out[k] = encodeValue(vv)
		}
		return out
	case map[string]string:
		out := make(map[string]any, len(x))
		for k, vv := range x {
			out[k] = vv
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, vv := range x {
			out[i] = encodeValue(vv)
		}
		return out
	case []string:
		out := make([]any, len(x))
		for i, vv := range x {
			out[i] = vv
		}
		return out
	default:
		return v
	}
}

func marshalDoc(doc map[string]any) (string, error) {
	body, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("encode document: %w", err)
	}
	return string(body), nil
}

func decodeRow(ref Ref, raw string) (*Document, error) {
	data := map[string]any{}
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, fmt.Errorf("decode %s: %w", ref, err)
	}
	return &Document{Ref: ref, Data: data}, nil
}

func getPath(doc map[string]any, path string) any {
	parts := strings.Split(path, ".")
	var cur any = doc
	for _, p := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[p]
	}
	return cur
}

func setPath(doc map[string]any, path string, value any) {
	parts := strings.Split(path, ".")
	cur := doc
	for _, p := range parts[:len(parts)-1] {
		next, ok := cur[p].(map[string]any)
		if !ok {
			next = map[string]any{}
			cur[p] = next
		}
		cur = next
	}
	cur[parts[len(parts)-1]] = value
}
