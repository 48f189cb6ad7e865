package engine

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/aethra/daicho/internal/database/dbtest"
	apperr "github.com/aethra/daicho/internal/errors"
	"github.com/aethra/daicho/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecords_GetExcludesDeleted(t *testing.T) {
	db, mock := dbtest.New(t)
	r := NewRecords[models.Account](db, "取引先", nil, nil, "code ASC")
	id := uuid.New()

	mock.ExpectQuery(`SELECT \* FROM "accounts" WHERE id = \$1 AND "accounts"\."deleted_at" IS NULL`).
		WithArgs(id, 1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "code", "name"}).AddRow(id.String(), "A001", "山田商事"))

	a, err := r.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "A001", a.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecords_GetMissing(t *testing.T) {
	db, mock := dbtest.New(t)
	r := NewRecords[models.Account](db, "取引先", nil, nil, "code ASC")

	mock.ExpectQuery(`SELECT \* FROM "accounts"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := r.Get(context.Background(), uuid.New())
	assert.True(t, apperr.IsNotFound(err))
	assert.Equal(t, "取引先が見つかりません", err.Error())
}

func TestRecords_DeleteIsSoft(t *testing.T) {
	db, mock := dbtest.New(t)
	r := NewRecords[models.Contact](db, "担当者", nil, nil, "")
	id := uuid.New()

	mock.ExpectExec(`UPDATE "contacts" SET "deleted_at"=\$1 WHERE id = \$2 AND "contacts"\."deleted_at" IS NULL`).
		WithArgs(sqlmock.AnyArg(), id).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, r.Delete(context.Background(), id))

	mock.ExpectExec(`UPDATE "contacts" SET "deleted_at"`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := r.Delete(context.Background(), id)
	assert.True(t, apperr.IsNotFound(err))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecords_ListPagesAndSearches(t *testing.T) {
	db, mock := dbtest.New(t)
	r := NewRecords[models.Account](db, "取引先", []string{"code", "name"}, []string{"name"}, "code ASC")

	mock.ExpectQuery(`SELECT count\(\*\) FROM "accounts" WHERE \(+"code" ILIKE \$1 ESCAPE '\\' OR "name" ILIKE \$2 ESCAPE '\\'\)+ AND "accounts"\."deleted_at" IS NULL`).
		WithArgs(`%山田\_%`, `%山田\_%`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(30))
	mock.ExpectQuery(`SELECT \* FROM "accounts" WHERE .* ORDER BY "name" DESC LIMIT \$3 OFFSET \$4`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "code"}).AddRow(uuid.New().String(), "A010"))

	res, err := r.List(context.Background(), Page{Page: 2, PageSize: 10, Sort: "name", SortDir: "desc"},
		[]Scope{r.Search("山田_")})
	require.NoError(t, err)
	assert.Equal(t, int64(30), res.Total)
	assert.Equal(t, 3, res.TotalPages)
	assert.Equal(t, 2, res.Page)
	assert.True(t, res.HasNext())
	assert.True(t, res.HasPrev())
	require.Len(t, res.Data, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPageNormalize(t *testing.T) {
	p := Page{}.normalize()
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, 25, p.PageSize)
	assert.Equal(t, 100, Page{PageSize: 1000}.normalize().PageSize)
}
