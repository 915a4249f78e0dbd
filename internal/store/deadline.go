package store

import (
	"context"
	"time"
)

// DefaultOperationTimeout bounds a single document operation.
const DefaultOperationTimeout = 10 * time.Second

type deadlineStore struct {
	next    DocumentStore
	timeout time.Duration
}

// WithDeadline wraps ds so that every operation runs under timeout. Expired
// deadlines surface as CodeTimeout.
func WithDeadline(ds DocumentStore, timeout time.Duration) DocumentStore {
	if timeout <= 0 {
		timeout = DefaultOperationTimeout
	}
	return &deadlineStore{next: ds, timeout: timeout}
}

func (d *deadlineStore) GetDoc(ctx context.Context, path string) (Document, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	doc, err := d.next.GetDoc(ctx, path)
	return doc, wrapContext("get", path, err)
}

func (d *deadlineStore) SetDoc(ctx context.Context, path string, doc Document) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	return wrapContext("set", path, d.next.SetDoc(ctx, path, doc))
}

func (d *deadlineStore) UpdateDoc(ctx context.Context, path string, upd Update) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	return wrapContext("update", path, d.next.UpdateDoc(ctx, path, upd))
}

func (d *deadlineStore) ListDocs(ctx context.Context, collection string, opts ...QueryOption) ([]Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	snaps, err := d.next.ListDocs(ctx, collection, opts...)
	return snaps, wrapContext("list", collection, err)
}

func (d *deadlineStore) AddDoc(ctx context.Context, collection string, doc Document) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	id, err := d.next.AddDoc(ctx, collection, doc)
	return id, wrapContext("add", collection, err)
}

func (d *deadlineStore) DeleteDoc(ctx context.Context, path string) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	return wrapContext("delete", path, d.next.DeleteDoc(ctx, path))
}

func (d *deadlineStore) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	return wrapContext("transaction", "", d.next.RunTransaction(ctx, fn))
}
