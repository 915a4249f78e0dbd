// Package store defines the gateway the rewards engine uses to reach its
// document database, blob storage and trusted remote callables, together with
// the adapters that implement it.
package store

import "context"

// DocumentStore is a collection/document database with field sentinels.
type DocumentStore interface {
	GetDoc(ctx context.Context, path string) (Document, error)
	SetDoc(ctx context.Context, path string, doc Document) error
	UpdateDoc(ctx context.Context, path string, upd Update) error
	ListDocs(ctx context.Context, collection string, opts ...QueryOption) ([]Snapshot, error)
	AddDoc(ctx context.Context, collection string, doc Document) (string, error)
	DeleteDoc(ctx context.Context, path string) error

	// RunTransaction runs fn with serializable access to the documents it
	// reads. Writes made through tx commit together when fn returns nil.
	RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the view of the store inside RunTransaction.
type Tx interface {
	Get(path string) (Document, error)
	Set(path string, doc Document) error
	Update(path string, upd Update) error
}

// BlobStore holds binary assets addressed by slash separated paths.
type BlobStore interface {
	DownloadURL(ctx context.Context, path string) (string, error)
	Put(ctx context.Context, path string, data []byte) error
}

// RemoteCaller invokes a trusted named callable. result may be nil when the
// response body is not needed.
type RemoteCaller interface {
	Call(ctx context.Context, name string, payload interface{}, result interface{}) error
}

// Direction of an ordered listing.
type Direction int

const (
	Asc Direction = iota
	Desc
)

// Query holds ListDocs options.
type Query struct {
	OrderBy   string
	Direction Direction
	Limit     int
}

// QueryOption configures a ListDocs call.
type QueryOption func(*Query)

// OrderBy sorts the listing by a top-level field.
func OrderBy(field string, dir Direction) QueryOption {
	return func(q *Query) {
		q.OrderBy = field
		q.Direction = dir
	}
}

// Limit caps the number of returned documents.
func Limit(n int) QueryOption {
	return func(q *Query) {
		q.Limit = n
	}
}

// BuildQuery folds options into a Query.
func BuildQuery(opts ...QueryOption) Query {
	var q Query
	for _, opt := range opts {
		opt(&q)
	}
	return q
}
