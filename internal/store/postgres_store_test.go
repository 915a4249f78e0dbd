package store

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// jsonField matches a JSONB argument whose field equals want.
type jsonField struct {
	field string
	want  interface{}
}

func (m jsonField) Match(v driver.Value) bool {
	raw, ok := v.([]byte)
	if !ok {
		return false
	}
	doc, err := decodeJSONB(raw)
	if err != nil {
		return false
	}
	return valuesEqual(doc[m.field], m.want)
}

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger, _ := zap.NewDevelopment()
	return NewPostgresStore(db, logger), mock
}

func TestPostgresStoreGetDoc(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(pgSelectDoc)).
		WithArgs("members/m1").
		WillReturnRows(sqlmock.NewRows([]string{"data"}).AddRow([]byte(`{"xp":10,"badges":[{"id":"7"}]}`)))

	doc, err := s.GetDoc(context.Background(), "members/m1")
	require.NoError(t, err)
	assert.Equal(t, int64(10), doc["xp"])
	assert.Len(t, doc.Array("badges"), 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreGetDocMissing(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(pgSelectDoc)).
		WithArgs("members/ghost").
		WillReturnRows(sqlmock.NewRows([]string{"data"}))

	_, err := s.GetDoc(context.Background(), "members/ghost")
	assert.True(t, IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreSetDoc(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta(pgUpsertDoc)).
		WithArgs("badges/sdg", "badges", "sdg", jsonField{field: "title", want: "SDGs"}).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.SetDoc(context.Background(), "badges/sdg", Document{"title": "SDGs", "order": 1})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreUpdateDocAppliesSentinels(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(pgSelectDocLocked)).
		WithArgs("members/m1").
		WillReturnRows(sqlmock.NewRows([]string{"data"}).AddRow([]byte(`{"xp":10}`)))
	mock.ExpectExec(regexp.QuoteMeta(pgUpdateDoc)).
		WithArgs("members/m1", jsonField{field: "xp", want: int64(35)}).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.UpdateDoc(context.Background(), "members/m1", Update{"xp": Increment(25)})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreUpdateDocMissingRollsBack(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(pgSelectDocLocked)).
		WithArgs("members/ghost").
		WillReturnRows(sqlmock.NewRows([]string{"data"}))
	mock.ExpectRollback()

	err := s.UpdateDoc(context.Background(), "members/ghost", Update{"xp": Increment(1)})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreTransactionLocksRowForCompareAndAppend(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(pgSelectDocLocked)).
		WithArgs("members/m1").
		WillReturnRows(sqlmock.NewRows([]string{"data"}).AddRow([]byte(`{"xp":10,"badges":[]}`)))
	mock.ExpectQuery(regexp.QuoteMeta(pgSelectDocLocked)).
		WithArgs("members/m1").
		WillReturnRows(sqlmock.NewRows([]string{"data"}).AddRow([]byte(`{"xp":10,"badges":[]}`)))
	mock.ExpectExec(regexp.QuoteMeta(pgUpdateDoc)).
		WithArgs("members/m1", jsonField{field: "xp", want: int64(60)}).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.RunTransaction(context.Background(), func(ctx context.Context, tx Tx) error {
		doc, err := tx.Get("members/m1")
		if err != nil {
			return err
		}
		if len(doc.Array("badges")) > 0 {
			return nil
		}
		return tx.Update("members/m1", Update{
			"badges": ArrayAppend(map[string]interface{}{"id": "7"}),
			"xp":     Increment(50),
		})
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreTransactionNoopStillCommits(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(pgSelectDocLocked)).
		WithArgs("members/m1").
		WillReturnRows(sqlmock.NewRows([]string{"data"}).AddRow([]byte(`{"xp":60,"badges":[{"id":"7"}]}`)))
	mock.ExpectCommit()

	err := s.RunTransaction(context.Background(), func(ctx context.Context, tx Tx) error {
		doc, err := tx.Get("members/m1")
		if err != nil {
			return err
		}
		if len(doc.Array("badges")) > 0 {
			return nil
		}
		return tx.Update("members/m1", Update{"xp": Increment(50)})
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreListDocsOrders(t *testing.T) {
	s, mock := newMockStore(t)

	rows := sqlmock.NewRows([]string{"doc_id", "path", "data"}).
		AddRow("a", "members/m1/xpHistory/a", []byte(`{"timestamp":"2024-01-01T00:00:00Z"}`)).
		AddRow("b", "members/m1/xpHistory/b", []byte(`{"timestamp":"2024-03-01T00:00:00Z"}`))
	mock.ExpectQuery(regexp.QuoteMeta(pgListDocs)).
		WithArgs("members/m1/xpHistory").
		WillReturnRows(rows)

	snaps, err := s.ListDocs(context.Background(), "members/m1/xpHistory", OrderBy("timestamp", Desc))
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, "b", snaps[0].ID)
	assert.Equal(t, "a", snaps[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreAddDoc(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta(pgInsertDoc)).
		WithArgs(sqlmock.AnyArg(), "members/m1/xpHistory", sqlmock.AnyArg(), jsonField{field: "points", want: 20}).
		WillReturnResult(sqlmock.NewResult(0, 1))

	id, err := s.AddDoc(context.Background(), "members/m1/xpHistory", Document{"points": 20})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMapSQLError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Code
	}{
		{"permission", &pq.Error{Code: "42501"}, CodePermissionDenied},
		{"connection", &pq.Error{Code: "08006"}, CodeUnavailable},
		{"canceled statement", &pq.Error{Code: "57014"}, CodeTimeout},
		{"unique violation", &pq.Error{Code: "23505"}, CodeInvalid},
		{"bad json", &pq.Error{Code: "22P02"}, CodeInvalid},
		{"deadline", context.DeadlineExceeded, CodeTimeout},
		{"bad conn", driver.ErrBadConn, CodeUnavailable},
		{"other", errors.New("boom"), CodeUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CodeOf(mapSQLError("op", "members/m1", tt.err)))
		})
	}
}

func TestPostgresStorePermissionDenied(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta(pgDeleteDoc)).
		WithArgs("members/m1").
		WillReturnError(&pq.Error{Code: "42501", Message: "permission denied for table documents"})

	err := s.DeleteDoc(context.Background(), "members/m1")
	assert.ErrorIs(t, err, ErrPermissionDenied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDecodeJSONBNormalizesNumbers(t *testing.T) {
	doc, err := decodeJSONB([]byte(`{"xp":5,"ratio":0.5,"nested":{"n":2}}`))
	require.NoError(t, err)
	assert.Equal(t, int64(5), doc["xp"])
	assert.Equal(t, 0.5, doc["ratio"])
	assert.Equal(t, int64(2), doc["nested"].(map[string]interface{})["n"])

	raw, err := json.Marshal(doc)
	require.NoError(t, err)
	assert.JSONEq(t, `{"xp":5,"ratio":0.5,"nested":{"n":2}}`, string(raw))
}
