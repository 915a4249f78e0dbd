package store

import (
	"bytes"
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"strings"

	"github.com/gofrs/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

const (
	pgSelectDoc       = `SELECT data FROM documents WHERE path = $1`
	pgSelectDocLocked = `SELECT data FROM documents WHERE path = $1 FOR UPDATE`
	pgUpsertDoc       = `INSERT INTO documents (path, collection, doc_id, data) VALUES ($1, $2, $3, $4)
ON CONFLICT (path) DO UPDATE SET data = EXCLUDED.data, updated_at = now()`
	pgUpdateDoc = `UPDATE documents SET data = $2, updated_at = now() WHERE path = $1`
	pgListDocs  = `SELECT doc_id, path, data FROM documents WHERE collection = $1`
	pgDeleteDoc = `DELETE FROM documents WHERE path = $1`
	pgInsertDoc = `INSERT INTO documents (path, collection, doc_id, data) VALUES ($1, $2, $3, $4)`
)

// PostgresStore keeps documents as JSONB rows in the documents table.
// Sentinel updates lock the row and are applied in Go before the row is
// written back, so each UpdateDoc is atomic for the whole document.
type PostgresStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresStore wraps an open connection pool. The documents table is
// created by the migrations under migrations/.
func NewPostgresStore(db *sql.DB, logger *zap.Logger) *PostgresStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostgresStore{db: db, logger: logger}
}

func (s *PostgresStore) GetDoc(ctx context.Context, path string) (Document, error) {
	if _, _, err := SplitDocPath(path); err != nil {
		return nil, err
	}
	return getDoc(ctx, s.db, pgSelectDoc, "get", path)
}

func (s *PostgresStore) SetDoc(ctx context.Context, path string, doc Document) error {
	return setDoc(ctx, s.db, path, doc)
}

func (s *PostgresStore) UpdateDoc(ctx context.Context, path string, upd Update) error {
	if _, _, err := SplitDocPath(path); err != nil {
		return err
	}
	return s.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
		return tx.Update(path, upd)
	})
}

func (s *PostgresStore) ListDocs(ctx context.Context, collection string, opts ...QueryOption) ([]Snapshot, error) {
	if err := ValidateCollectionPath(collection); err != nil {
		return nil, err
	}
	collection = strings.Trim(collection, "/")

	rows, err := s.db.QueryContext(ctx, pgListDocs, collection)
	if err != nil {
		return nil, mapSQLError("list", collection, err)
	}
	defer rows.Close()

	var snaps []Snapshot
	for rows.Next() {
		var (
			id, path string
			raw      []byte
		)
		if err := rows.Scan(&id, &path, &raw); err != nil {
			return nil, mapSQLError("list", collection, err)
		}
		doc, err := decodeJSONB(raw)
		if err != nil {
			return nil, NewError(CodeInvalid, "list", path, err)
		}
		snaps = append(snaps, Snapshot{ID: id, Path: path, Data: doc})
	}
	if err := rows.Err(); err != nil {
		return nil, mapSQLError("list", collection, err)
	}
	return SortSnapshots(snaps, BuildQuery(opts...)), nil
}

func (s *PostgresStore) AddDoc(ctx context.Context, collection string, doc Document) (string, error) {
	if err := ValidateCollectionPath(collection); err != nil {
		return "", err
	}
	id, err := uuid.NewV4()
	if err != nil {
		return "", NewError(CodeUnavailable, "add", collection, err)
	}
	collection = strings.Trim(collection, "/")
	raw, err := encodeJSONB(doc)
	if err != nil {
		return "", NewError(CodeInvalid, "add", collection, err)
	}
	path := Join(collection, id.String())
	if _, err := s.db.ExecContext(ctx, pgInsertDoc, path, collection, id.String(), raw); err != nil {
		return "", mapSQLError("add", path, err)
	}
	return id.String(), nil
}

func (s *PostgresStore) DeleteDoc(ctx context.Context, path string) error {
	if _, _, err := SplitDocPath(path); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, pgDeleteDoc, strings.Trim(path, "/")); err != nil {
		return mapSQLError("delete", path, err)
	}
	return nil
}

func (s *PostgresStore) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return mapSQLError("transaction", "", err)
	}
	tx := &postgresTx{ctx: ctx, tx: sqlTx}
	if err := fn(ctx, tx); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.logger.Warn("Transaction rollback failed", zap.Error(rbErr))
		}
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return mapSQLError("commit", "", err)
	}
	return nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

type postgresTx struct {
	ctx context.Context
	tx  *sql.Tx
}

func (t *postgresTx) Get(path string) (Document, error) {
	if _, _, err := SplitDocPath(path); err != nil {
		return nil, err
	}
	return getDoc(t.ctx, t.tx, pgSelectDocLocked, "get", path)
}

func (t *postgresTx) Set(path string, doc Document) error {
	return setDoc(t.ctx, t.tx, path, doc)
}

func (t *postgresTx) Update(path string, upd Update) error {
	doc, err := t.Get(path)
	if err != nil {
		return err
	}
	if err := ApplyUpdate(doc, upd); err != nil {
		return NewError(CodeInvalid, "update", path, err)
	}
	raw, err := encodeJSONB(doc)
	if err != nil {
		return NewError(CodeInvalid, "update", path, err)
	}
	if _, err := t.tx.ExecContext(t.ctx, pgUpdateDoc, strings.Trim(path, "/"), raw); err != nil {
		return mapSQLError("update", path, err)
	}
	return nil
}

func getDoc(ctx context.Context, q queryer, query, op, path string) (Document, error) {
	var raw []byte
	if err := q.QueryRowContext(ctx, query, strings.Trim(path, "/")).Scan(&raw); err != nil {
		return nil, mapSQLError(op, path, err)
	}
	doc, err := decodeJSONB(raw)
	if err != nil {
		return nil, NewError(CodeInvalid, op, path, err)
	}
	return doc, nil
}

func setDoc(ctx context.Context, q queryer, path string, doc Document) error {
	collection, id, err := SplitDocPath(path)
	if err != nil {
		return err
	}
	raw, err := encodeJSONB(doc)
	if err != nil {
		return NewError(CodeInvalid, "set", path, err)
	}
	if _, err := q.ExecContext(ctx, pgUpsertDoc, strings.Trim(path, "/"), collection, id, raw); err != nil {
		return mapSQLError("set", path, err)
	}
	return nil
}

func encodeJSONB(doc Document) ([]byte, error) {
	if doc == nil {
		doc = Document{}
	}
	return json.Marshal(doc)
}

func decodeJSONB(raw []byte) (Document, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var m map[string]interface{}
	if err := dec.Decode(&m); err != nil {
		return nil, err
	}
	if m == nil {
		return Document{}, nil
	}
	return normalizeValue(m).(map[string]interface{}), nil
}

// mapSQLError folds database/sql and lib/pq failures into store codes.
func mapSQLError(op, path string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return NewError(CodeNotFound, op, path, nil)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return NewError(CodeTimeout, op, path, err)
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return NewError(CodeUnavailable, op, path, err)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		case pqErr.Code == "42501":
			return NewError(CodePermissionDenied, op, path, err)
		case pqErr.Code == "57014":
			return NewError(CodeTimeout, op, path, err)
		}
		switch string(pqErr.Code.Class()) {
		case "22", "23":
			return NewError(CodeInvalid, op, path, err)
		case "28":
			return NewError(CodePermissionDenied, op, path, err)
		}
		return NewError(CodeUnavailable, op, path, err)
	}
	return NewError(CodeUnavailable, op, path, err)
}

var _ DocumentStore = (*PostgresStore)(nil)
