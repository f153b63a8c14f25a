// Package framestore keeps record-oriented arrays in a SQLite file, one row
// per record frame. Each field has a fixed frame shape; axis 0 of the field is
// the number of frames written so far. The same file can hold named plans:
// encoded lazy array trees that a later run rebuilds without recomputing.
package framestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	_ "github.com/mattn/go-sqlite3"
	"github.com/vk/detflow/internal/apperr"
	"github.com/vk/detflow/internal/ctxlog"
	"github.com/vk/detflow/internal/ndarray"
	"github.com/vk/detflow/internal/slicealg"
	"github.com/vmihailenco/msgpack/v5"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS fields (
	name  TEXT PRIMARY KEY,
	shape BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS frames (
	field TEXT    NOT NULL,
	idx   INTEGER NOT NULL,
	data  BLOB    NOT NULL,
	PRIMARY KEY (field, idx)
);

CREATE TABLE IF NOT EXISTS plans (
	name TEXT PRIMARY KEY,
	tree BLOB NOT NULL
);
`

// Store is an open frame store.
type Store struct {
	conn *sql.DB
	path string
}

// Open opens (or creates) the store at path and applies the schema.
func Open(path string) (*Store, error) {
	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("framestore: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("framestore: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("framestore: apply schema: %w", err)
	}
	return &Store{conn: conn, path: path}, nil
}

// Path is the file the store was opened from.
func (s *Store) Path() string { return s.path }

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// Fields lists the stored fields in name order.
func (s *Store) Fields(ctx context.Context) ([]string, error) {
	rows, err := s.conn.QueryContext(ctx, `SELECT name FROM fields`)
	if err != nil {
		return nil, fmt.Errorf("framestore: list fields: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("framestore: scan field: %w", err)
		}
		out = append(out, name)
	}
	sort.Strings(out)
	return out, rows.Err()
}

// frameShape returns the shape of one frame of field.
func (s *Store) frameShape(ctx context.Context, q querier, field string) (slicealg.Shape, error) {
	var blob []byte
	err := q.QueryRowContext(ctx, `SELECT shape FROM fields WHERE name = ?`, field).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: field '%s' in %s", apperr.ErrResourceNotFound, field, s.path)
	}
	if err != nil {
		return nil, fmt.Errorf("framestore: read field '%s': %w", field, err)
	}
	var shape []int
	if err := msgpack.Unmarshal(blob, &shape); err != nil {
		return nil, fmt.Errorf("framestore: decode shape of '%s': %w", field, err)
	}
	return slicealg.Shape(shape), nil
}

func (s *Store) count(ctx context.Context, q querier, field string) (int, error) {
	var n int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM frames WHERE field = ?`, field).Scan(&n); err != nil {
		return 0, fmt.Errorf("framestore: count frames of '%s': %w", field, err)
	}
	return n, nil
}

// Shape is the full shape of field: the frame count followed by the frame
// shape.
func (s *Store) Shape(ctx context.Context, field string) (slicealg.Shape, error) {
	frame, err := s.frameShape(ctx, s.conn, field)
	if err != nil {
		return nil, err
	}
	n, err := s.count(ctx, s.conn, field)
	if err != nil {
		return nil, err
	}
	return append(slicealg.Shape{n}, frame...), nil
}

// Frame reads the frame at position i.
func (s *Store) Frame(ctx context.Context, field string, i int) (*ndarray.Array, error) {
	frame, err := s.frameShape(ctx, s.conn, field)
	if err != nil {
		return nil, err
	}
	var blob []byte
	err = s.conn.QueryRowContext(ctx, `SELECT data FROM frames WHERE field = ? AND idx = ?`, field, i).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: frame %d of '%s'", apperr.ErrIndexOutOfRange, i, field)
	}
	if err != nil {
		return nil, fmt.Errorf("framestore: read frame %d of '%s': %w", i, field, err)
	}
	return decodeFrame(frame, blob)
}

// Range reads the frames selected by b in one query.
func (s *Store) Range(ctx context.Context, field string, b slicealg.Bounds) (*ndarray.Array, error) {
	frame, err := s.frameShape(ctx, s.conn, field)
	if err != nil {
		return nil, err
	}
	step := max(b.Step, 1)
	rows, err := s.conn.QueryContext(ctx, `
		SELECT data FROM frames
		WHERE field = ? AND idx >= ? AND idx < ? AND (idx - ?) % ? = 0
		ORDER BY idx
	`, field, b.Start, b.Stop, b.Start, step)
	if err != nil {
		return nil, fmt.Errorf("framestore: read range of '%s': %w", field, err)
	}
	defer rows.Close()

	frames := make([]*ndarray.Array, 0, b.Len())
	for rows.Next() {
		var blob []byte
		if err := rows.Scan(&blob); err != nil {
			return nil, fmt.Errorf("framestore: scan frame: %w", err)
		}
		f, err := decodeFrame(frame, blob)
		if err != nil {
			return nil, err
		}
		frames = append(frames, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("framestore: read range of '%s': %w", field, err)
	}
	if len(frames) != b.Len() {
		return nil, fmt.Errorf("%w: range %d:%d:%d of '%s' has %d frames stored", apperr.ErrIndexOutOfRange,
			b.Start, b.Stop, step, field, len(frames))
	}
	return ndarray.Stack(frame, frames)
}

// Delete drops a field and its frames. Deleting a missing field is a no-op.
func (s *Store) Delete(ctx context.Context, field string) error {
	b, err := s.BeginBatch(ctx)
	if err != nil {
		return err
	}
	defer b.Rollback() //nolint:errcheck

	if err := b.Delete(ctx, field); err != nil {
		return err
	}
	return b.Commit()
}

// SavePlan stores an encoded array tree under name, replacing any previous
// plan of that name.
func (s *Store) SavePlan(ctx context.Context, name string, tree []byte) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO plans (name, tree) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET tree = excluded.tree
	`, name, tree)
	if err != nil {
		return fmt.Errorf("framestore: save plan '%s': %w", name, err)
	}
	return nil
}

// Plan returns the encoded array tree stored under name.
func (s *Store) Plan(ctx context.Context, name string) ([]byte, error) {
	var tree []byte
	err := s.conn.QueryRowContext(ctx, `SELECT tree FROM plans WHERE name = ?`, name).Scan(&tree)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: plan '%s' in %s", apperr.ErrResourceNotFound, name, s.path)
	}
	if err != nil {
		return nil, fmt.Errorf("framestore: read plan '%s': %w", name, err)
	}
	return tree, nil
}

func decodeFrame(shape slicealg.Shape, blob []byte) (*ndarray.Array, error) {
	var data []float64
	if err := msgpack.Unmarshal(blob, &data); err != nil {
		return nil, fmt.Errorf("framestore: decode frame: %w", err)
	}
	return ndarray.New(shape, data)
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Batch groups deletes and appends on any number of fields into one
// transaction. Nothing it does is visible until Commit.
type Batch struct {
	store *Store
	tx    *sql.Tx
	stmts []*sql.Stmt
}

// BeginBatch starts a transaction.
func (s *Store) BeginBatch(ctx context.Context) (*Batch, error) {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("framestore: begin tx: %w", err)
	}
	return &Batch{store: s, tx: tx}, nil
}

// Delete drops a field and its frames inside the batch.
func (b *Batch) Delete(ctx context.Context, field string) error {
	if _, err := b.tx.ExecContext(ctx, `DELETE FROM frames WHERE field = ?`, field); err != nil {
		return fmt.Errorf("framestore: delete frames of '%s': %w", field, err)
	}
	if _, err := b.tx.ExecContext(ctx, `DELETE FROM fields WHERE name = ?`, field); err != nil {
		return fmt.Errorf("framestore: delete field '%s': %w", field, err)
	}
	return nil
}

// Writer starts appending to field inside the batch. A new field is created
// with the given frame shape; an existing one must already have it.
func (b *Batch) Writer(ctx context.Context, field string, frame slicealg.Shape) (*Writer, error) {
	existing, err := b.store.frameShape(ctx, b.tx, field)
	switch {
	case errors.Is(err, apperr.ErrResourceNotFound):
		blob, merr := msgpack.Marshal([]int(frame))
		if merr != nil {
			return nil, fmt.Errorf("framestore: encode shape: %w", merr)
		}
		if _, err := b.tx.ExecContext(ctx, `INSERT INTO fields (name, shape) VALUES (?, ?)`, field, blob); err != nil {
			return nil, fmt.Errorf("framestore: create field '%s': %w", field, err)
		}
	case err != nil:
		return nil, err
	case !existing.Equal(frame):
		return nil, fmt.Errorf("%w: field '%s' stores frames of %s, got %s", apperr.ErrShapeMismatch, field, existing, frame)
	}

	next, err := b.store.count(ctx, b.tx, field)
	if err != nil {
		return nil, err
	}
	stmt, err := b.tx.PrepareContext(ctx, `INSERT INTO frames (field, idx, data) VALUES (?, ?, ?)`)
	if err != nil {
		return nil, fmt.Errorf("framestore: prepare frame insert: %w", err)
	}
	b.stmts = append(b.stmts, stmt)
	ctxlog.FromContext(ctx).Debug("Frame writer opened.", "path", b.store.path, "field", field, "offset", next)
	return &Writer{batch: b, stmt: stmt, field: field, frame: frame.Clone(), next: next}, nil
}

func (b *Batch) closeStmts() {
	for _, st := range b.stmts {
		st.Close()
	}
	b.stmts = nil
}

// Commit makes every delete and append of the batch visible at once.
func (b *Batch) Commit() error {
	b.closeStmts()
	if err := b.tx.Commit(); err != nil {
		return fmt.Errorf("framestore: commit: %w", err)
	}
	return nil
}

// Rollback discards the batch. Calling it after Commit is a no-op that
// returns sql.ErrTxDone.
func (b *Batch) Rollback() error {
	b.closeStmts()
	return b.tx.Rollback()
}

// Writer appends frames to one field of a batch.
type Writer struct {
	batch *Batch
	stmt  *sql.Stmt
	field string
	frame slicealg.Shape
	next  int
}

// Begin starts appending to field in a batch of its own, finished by the
// writer's Commit or Rollback.
func (s *Store) Begin(ctx context.Context, field string, frame slicealg.Shape) (*Writer, error) {
	b, err := s.BeginBatch(ctx)
	if err != nil {
		return nil, err
	}
	w, err := b.Writer(ctx, field, frame)
	if err != nil {
		b.Rollback() //nolint:errcheck
		return nil, err
	}
	return w, nil
}

// Append writes a chunk of frames. chunk must have shape [k, frame...].
func (w *Writer) Append(ctx context.Context, chunk *ndarray.Array) error {
	shape := chunk.Shape()
	if len(shape) == 0 || !slicealg.Shape(shape[1:]).Equal(w.frame) {
		return fmt.Errorf("%w: chunk %s does not hold frames of %s", apperr.ErrShapeMismatch, shape, w.frame)
	}
	size := w.frame.Size()
	data := chunk.Data()
	for i := 0; i < shape[0]; i++ {
		blob, err := msgpack.Marshal(data[i*size : (i+1)*size])
		if err != nil {
			return fmt.Errorf("framestore: encode frame: %w", err)
		}
		if _, err := w.stmt.ExecContext(ctx, w.field, w.next, blob); err != nil {
			return fmt.Errorf("framestore: insert frame %d of '%s': %w", w.next, w.field, err)
		}
		w.next++
	}
	return nil
}

// Len is the number of frames the field will hold after Commit.
func (w *Writer) Len() int { return w.next }

// Commit commits the batch the writer belongs to.
func (w *Writer) Commit() error { return w.batch.Commit() }

// Rollback discards the batch the writer belongs to.
func (w *Writer) Rollback() error { return w.batch.Rollback() }
