package main

import (
	"bytes"
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"blog_migrate/internal/base"
	"blog_migrate/internal/config"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fixture = `
version = 1
fallback_slug = "general"

[[category]]
legacy_id = 1
name = "General"
slug = "general"

[[post]]
title = "Hello"
slug = "hello"
content = "<p>hi</p>"
legacy_category_id = 42
published = true
`

func setEnv(t *testing.T, kv map[string]string) {
	t.Helper()
	for _, key := range []string{"DATABASE_URL", "DATABASE_TLS", "LEGACY_DATABASE_URL", "SEED_FILE", "LOG_LEVEL"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
	for k, v := range kv {
		t.Setenv(k, v)
	}
}

func stubConnect(t *testing.T, fn func(ctx context.Context, cfg *config.Config) (*sql.DB, *base.Dialect, error)) {
	t.Helper()
	orig := connect
	connect = fn
	t.Cleanup(func() { connect = orig })
}

func TestMissingDatabaseURL(t *testing.T) {
	setEnv(t, nil)
	var called bool
	stubConnect(t, func(context.Context, *config.Config) (*sql.DB, *base.Dialect, error) {
		called = true
		return nil, nil, errors.New("unexpected")
	})

	var out bytes.Buffer
	code := run(context.Background(), &out)

	assert.Equal(t, 1, code)
	assert.False(t, called, "no connection attempt without DATABASE_URL")
	assert.Contains(t, out.String(), "DATABASE_URL is not set")
	assert.Contains(t, out.String(), "export DATABASE_URL=")
}

func TestConnectionErrorExitsOne(t *testing.T) {
	setEnv(t, map[string]string{"DATABASE_URL": "mysql://u:p@db/blog"})
	stubConnect(t, func(context.Context, *config.Config) (*sql.DB, *base.Dialect, error) {
		return nil, nil, &base.ConnectionError{Target: "mysql://u@db:3306/blog", Err: errors.New("access denied")}
	})

	var out bytes.Buffer
	assert.Equal(t, 1, run(context.Background(), &out))
	assert.Contains(t, out.String(), "access denied")
}

func TestUnsupportedSchemePrintsHint(t *testing.T) {
	setEnv(t, map[string]string{"DATABASE_URL": "sqlite:///tmp/blog.db"})

	var out bytes.Buffer
	assert.Equal(t, 1, run(context.Background(), &out))
	assert.Contains(t, out.String(), `unsupported scheme`)
	assert.Contains(t, out.String(), "export DATABASE_URL=")
	assert.NotContains(t, out.String(), "connection error")
}

func TestBadSeedFileExitsOne(t *testing.T) {
	setEnv(t, map[string]string{
		"DATABASE_URL": "mysql://u:p@db/blog",
		"SEED_FILE":    filepath.Join(t.TempDir(), "missing.toml"),
	})
	stubConnect(t, func(context.Context, *config.Config) (*sql.DB, *base.Dialect, error) {
		t.Fatal("connect must not be called")
		return nil, nil, nil
	})

	assert.Equal(t, 1, run(context.Background(), &bytes.Buffer{}))
}

func TestRunWithFixtureSeed(t *testing.T) {
	seedFile := filepath.Join(t.TempDir(), "seed.toml")
	require.NoError(t, os.WriteFile(seedFile, []byte(fixture), 0o600))
	setEnv(t, map[string]string{
		"DATABASE_URL": "mysql://u:p@db/blog",
		"SEED_FILE":    seedFile,
	})

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	stubConnect(t, func(context.Context, *config.Config) (*sql.DB, *base.Dialect, error) {
		return db, base.MySQL, nil
	})

	mock.ExpectBegin()
	mock.ExpectExec(base.MySQL.UpsertCategory).
		WithArgs("General", "general", "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(7, 1))
	mock.ExpectCommit()
	mock.ExpectQuery(base.MySQL.SelectCategories).
		WillReturnRows(sqlmock.NewRows([]string{"id", "slug"}).AddRow(7, "general"))
	mock.ExpectBegin()
	mock.ExpectExec(base.MySQL.UpsertPost).
		WithArgs("Hello", "hello", "", "<p>hi</p>", int64(7), true, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()
	mock.ExpectQuery(base.MySQL.CountCategories).WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(base.MySQL.CountPosts).WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectClose()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var out bytes.Buffer
	assert.Equal(t, 0, run(ctx, &out))
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Contains(t, out.String(), "legacy category not mapped")
	assert.Contains(t, out.String(), "migration finished")
	assert.Contains(t, out.String(), "posts: 1")
}
