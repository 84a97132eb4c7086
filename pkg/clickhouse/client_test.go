package clickhouse

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDSN(t *testing.T) {
	cfg := defaultClientConfig()
	for _, opt := range []ClientOption{
		WithAddr("ch", 9000),
		WithDatabase("stag", "default", "p@ss"),
		WithTimeouts(5*time.Second, 0, 30*time.Second),
		WithInsertMode(ParseInsertMode(true, true)),
	} {
		opt(cfg)
	}
	assert.Equal(t, "clickhouse://default:p%40ss@ch:9000/stag?async_insert=1&dial_timeout=5s&max_execution_time=30&wait_for_async_insert=1", BuildDSN(*cfg))

	dsn := BuildDSN(ClientConfig{Addr: "ch:8123", Database: "stag", UseHTTP: true, Insert: InsertAsync})
	assert.Equal(t, "http://ch:8123/stag?async_insert=1", dsn)
}

func TestParseInsertMode(t *testing.T) {
	assert.Equal(t, InsertSync, ParseInsertMode(false, true))
	assert.Equal(t, InsertAsync, ParseInsertMode(true, false))
	assert.Equal(t, InsertAsyncWait, ParseInsertMode(true, true))
}

func TestNewClientUnreachable(t *testing.T) {
	_, err := NewClient(WithAddr("127.0.0.1", 1), WithTimeouts(200*time.Millisecond, 0, 0))
	assert.Error(t, err)
}

func TestInitSchemaStopsOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	c := NewClientFromDB(db)

	mock.ExpectExec("CREATE TABLE a").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE b").WillReturnError(errors.New("syntax"))
	err = c.InitSchema(context.Background(), []string{"CREATE TABLE a", "CREATE TABLE b", "CREATE TABLE c"})
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
