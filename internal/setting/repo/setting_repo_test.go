package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ashrafnet/CommunityServer/internal/setting/entity"
	"github.com/Ashrafnet/CommunityServer/pkg/database"
)

func TestGetByID_Postgres(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()
	r := NewRepo(sqlx.NewDb(db, "postgres"))

	rows := sqlmock.NewRows([]string{"id", "parent_id", "root_id", "record_meta", "category", "metadata"}).
		AddRow("password:1", "", "", "{}", "password_policy", `{"min_length":8}`)
	mock.ExpectQuery(`(?s)^SELECT\s+id,.+FROM\s+settings\s+WHERE\s+id\s*=\s*\$1$`).
		WithArgs("password:1").
		WillReturnRows(rows)

	st, err := r.GetByID(context.Background(), "password:1")
	require.NoError(t, err)
	assert.Equal(t, "password_policy", st.Category)
	assert.JSONEq(t, `{"min_length":8}`, string(st.Metadata))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByID_NoRows(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()
	r := NewRepo(sqlx.NewDb(db, "postgres"))

	mock.ExpectQuery(`FROM\s+settings`).WillReturnError(sql.ErrNoRows)

	_, err = r.GetByID(context.Background(), "missing")
	assert.True(t, errors.Is(err, sql.ErrNoRows))
}

func TestUpsert_SQLite(t *testing.T) {
	db, err := database.Connect(database.Config{
		Driver:   database.DriverSQLite,
		DSN:      "file:settings_upsert?mode=memory&cache=shared",
		MaxConns: 1,
		Timeout:  time.Second,
	})
	require.NoError(t, err)
	defer db.Close()
	r := NewRepo(db)
	ctx := context.Background()

	require.NoError(t, r.EnsureTable(ctx))
	require.NoError(t, r.EnsureTable(ctx))

	st := entity.NewSetting("password:1", "", "", entity.CategoryPasswordPolicy, nil, json.RawMessage(`{"min_length":8}`))
	require.NoError(t, r.Upsert(ctx, st))
	st.Metadata = json.RawMessage(`{"min_length":12}`)
	require.NoError(t, r.Upsert(ctx, st))

	got, err := r.GetByID(ctx, "password:1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"min_length":12}`, string(got.Metadata))
	assert.JSONEq(t, `{}`, string(got.RecordMeta))

	_, err = r.GetByID(ctx, "password:2")
	assert.True(t, errors.Is(err, sql.ErrNoRows))
}
