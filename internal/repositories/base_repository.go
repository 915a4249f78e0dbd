package repositories

import (
	"context"
	"time"

	"go.uber.org/zap"

	"wannagonna/internal/store"
)

const slowOperationThreshold = 200 * time.Millisecond

// BaseRepository provides shared document access with slow-operation logging.
type BaseRepository struct {
	store  store.DocumentStore
	logger *zap.Logger
}

// NewBaseRepository creates a new base repository
func NewBaseRepository(ds store.DocumentStore, logger *zap.Logger) *BaseRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BaseRepository{
		store:  ds,
		logger: logger,
	}
}

// ===============================
// CORE DOCUMENT OPERATIONS
// ===============================

// getDoc reads a document, logging slow reads and non-NotFound failures.
func (r *BaseRepository) getDoc(ctx context.Context, path string) (store.Document, error) {
	start := time.Now()
	doc, err := r.store.GetDoc(ctx, path)
	r.observe("get", path, start, err)
	return doc, err
}

func (r *BaseRepository) listDocs(ctx context.Context, collection string, opts ...store.QueryOption) ([]store.Snapshot, error) {
	start := time.Now()
	snaps, err := r.store.ListDocs(ctx, collection, opts...)
	r.observe("list", collection, start, err)
	return snaps, err
}

func (r *BaseRepository) updateDoc(ctx context.Context, path string, upd store.Update) error {
	start := time.Now()
	err := r.store.UpdateDoc(ctx, path, upd)
	r.observe("update", path, start, err)
	return err
}

func (r *BaseRepository) addDoc(ctx context.Context, collection string, doc store.Document) (string, error) {
	start := time.Now()
	id, err := r.store.AddDoc(ctx, collection, doc)
	r.observe("add", collection, start, err)
	return id, err
}

func (r *BaseRepository) runTransaction(ctx context.Context, path string, fn func(ctx context.Context, tx store.Tx) error) error {
	start := time.Now()
	err := r.store.RunTransaction(ctx, fn)
	r.observe("transaction", path, start, err)
	return err
}

func (r *BaseRepository) observe(op, path string, start time.Time, err error) {
	duration := time.Since(start)
	if duration > slowOperationThreshold {
		r.logger.Warn("Slow store operation detected",
			zap.String("op", op),
			zap.String("path", path),
			zap.Duration("duration", duration),
		)
	}
	if err != nil && !store.IsNotFound(err) {
		r.logger.Error("Store operation failed",
			zap.String("op", op),
			zap.String("path", path),
			zap.Error(err),
		)
	}
}
