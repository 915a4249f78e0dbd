package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/gofrs/uuid"
)

// MemoryStore is an in-process DocumentStore. Documents are deep-copied on
// every read and write, and transactions hold the store lock for their whole
// duration.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]Document
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]Document)}
}

func (s *MemoryStore) GetDoc(ctx context.Context, path string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, wrapContext("get", path, err)
	}
	if _, _, err := SplitDocPath(path); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.get(path)
}

func (s *MemoryStore) SetDoc(ctx context.Context, path string, doc Document) error {
	if err := ctx.Err(); err != nil {
		return wrapContext("set", path, err)
	}
	if _, _, err := SplitDocPath(path); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.set(path, doc)
	return nil
}

func (s *MemoryStore) UpdateDoc(ctx context.Context, path string, upd Update) error {
	if err := ctx.Err(); err != nil {
		return wrapContext("update", path, err)
	}
	if _, _, err := SplitDocPath(path); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.update(path, upd)
}

func (s *MemoryStore) ListDocs(ctx context.Context, collection string, opts ...QueryOption) ([]Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, wrapContext("list", collection, err)
	}
	if err := ValidateCollectionPath(collection); err != nil {
		return nil, err
	}
	collection = strings.Trim(collection, "/")
	prefix := collection + "/"

	s.mu.RLock()
	var snaps []Snapshot
	for path, doc := range s.docs {
		if !strings.HasPrefix(path, prefix) {
			continue
		}
		id := strings.TrimPrefix(path, prefix)
		if strings.Contains(id, "/") {
			continue
		}
		snaps = append(snaps, Snapshot{ID: id, Path: path, Data: doc.Clone()})
	}
	s.mu.RUnlock()

	return SortSnapshots(snaps, BuildQuery(opts...)), nil
}

func (s *MemoryStore) AddDoc(ctx context.Context, collection string, doc Document) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", wrapContext("add", collection, err)
	}
	if err := ValidateCollectionPath(collection); err != nil {
		return "", err
	}
	id, err := uuid.NewV4()
	if err != nil {
		return "", NewError(CodeUnavailable, "add", collection, err)
	}
	path := Join(strings.Trim(collection, "/"), id.String())

	s.mu.Lock()
	defer s.mu.Unlock()
	s.set(path, doc)
	return id.String(), nil
}

func (s *MemoryStore) DeleteDoc(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return wrapContext("delete", path, err)
	}
	if _, _, err := SplitDocPath(path); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, strings.Trim(path, "/"))
	return nil
}

// RunTransaction buffers writes and applies them only when fn succeeds.
func (s *MemoryStore) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return wrapContext("transaction", "", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memoryTx{store: s, staged: make(map[string]Document)}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return wrapContext("transaction", "", err)
	}
	for path, doc := range tx.staged {
		if doc == nil {
			delete(s.docs, path)
			continue
		}
		s.docs[path] = doc
	}
	return nil
}

// Len returns the number of stored documents.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

func (s *MemoryStore) get(path string) (Document, error) {
	doc, ok := s.docs[strings.Trim(path, "/")]
	if !ok {
		return nil, NewError(CodeNotFound, "get", path, nil)
	}
	return doc.Clone(), nil
}

func (s *MemoryStore) set(path string, doc Document) {
	if doc == nil {
		doc = Document{}
	}
	s.docs[strings.Trim(path, "/")] = doc.Clone()
}

func (s *MemoryStore) update(path string, upd Update) error {
	key := strings.Trim(path, "/")
	current, ok := s.docs[key]
	if !ok {
		return NewError(CodeNotFound, "update", path, nil)
	}
	next := current.Clone()
	if err := ApplyUpdate(next, upd); err != nil {
		return NewError(CodeInvalid, "update", path, err)
	}
	s.docs[key] = next
	return nil
}

type memoryTx struct {
	store  *MemoryStore
	staged map[string]Document
}

func (t *memoryTx) Get(path string) (Document, error) {
	if _, _, err := SplitDocPath(path); err != nil {
		return nil, err
	}
	key := strings.Trim(path, "/")
	if doc, ok := t.staged[key]; ok {
		if doc == nil {
			return nil, NewError(CodeNotFound, "get", path, nil)
		}
		return doc.Clone(), nil
	}
	return t.store.get(key)
}

func (t *memoryTx) Set(path string, doc Document) error {
	if _, _, err := SplitDocPath(path); err != nil {
		return err
	}
	if doc == nil {
		doc = Document{}
	}
	t.staged[strings.Trim(path, "/")] = doc.Clone()
	return nil
}

func (t *memoryTx) Update(path string, upd Update) error {
	current, err := t.Get(path)
	if err != nil {
		return err
	}
	if err := ApplyUpdate(current, upd); err != nil {
		return NewError(CodeInvalid, "update", path, err)
	}
	t.staged[strings.Trim(path, "/")] = current
	return nil
}

// SortSnapshots orders snaps by the query field (document id when unset) and
// applies the limit.
func SortSnapshots(snaps []Snapshot, q Query) []Snapshot {
	sort.SliceStable(snaps, func(i, j int) bool {
		var c int
		if q.OrderBy == "" {
			c = strings.Compare(snaps[i].ID, snaps[j].ID)
		} else {
			c = CompareValues(snaps[i].Data[q.OrderBy], snaps[j].Data[q.OrderBy])
			if c == 0 {
				c = strings.Compare(snaps[i].ID, snaps[j].ID)
			}
		}
		if q.Direction == Desc {
			return c > 0
		}
		return c < 0
	})
	if q.Limit > 0 && len(snaps) > q.Limit {
		snaps = snaps[:q.Limit]
	}
	return snaps
}

var _ DocumentStore = (*MemoryStore)(nil)

