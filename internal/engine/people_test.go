package engine

import (
	"context"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/aethra/daicho/internal/auth"
	"github.com/aethra/daicho/internal/database/dbtest"
	apperr "github.com/aethra/daicho/internal/errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommentEngine_CreateValidatesBody(t *testing.T) {
	db, _ := dbtest.New(t)
	e := NewCommentEngine(db)

	_, err := e.Create(context.Background(), uuid.New(), Actor{ID: uuid.New()}, "  \n ")
	assert.EqualError(t, err, "コメントを入力してください")

	_, err = e.Create(context.Background(), uuid.New(), Actor{ID: uuid.New()}, strings.Repeat("あ", 4001))
	assert.EqualError(t, err, "コメントが長すぎます")
}

func TestCommentEngine_DeleteAuthorOrAdmin(t *testing.T) {
	projectID, author, commentID := uuid.New(), uuid.New(), uuid.New()
	commentRow := func() *sqlmock.Rows {
		return sqlmock.NewRows([]string{"id", "project_id", "employee_id", "body"}).
			AddRow(commentID.String(), projectID.String(), author.String(), "現地は雨天")
	}

	t.Run("other staff denied", func(t *testing.T) {
		db, mock := dbtest.New(t)
		e := NewCommentEngine(db)
		mock.ExpectQuery(`SELECT \* FROM "comments" WHERE id = \$1`).WillReturnRows(commentRow())

		err := e.Delete(context.Background(), projectID, commentID, Actor{ID: uuid.New()})
		var denied *apperr.PermissionDeniedError
		assert.ErrorAs(t, err, &denied)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("admin allowed", func(t *testing.T) {
		db, mock := dbtest.New(t)
		e := NewCommentEngine(db)
		mock.ExpectQuery(`SELECT \* FROM "comments"`).WillReturnRows(commentRow())
		mock.ExpectExec(`UPDATE "comments" SET "deleted_at"`).WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, e.Delete(context.Background(), projectID, commentID, Actor{ID: uuid.New(), Admin: true}))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("wrong project", func(t *testing.T) {
		db, mock := dbtest.New(t)
		e := NewCommentEngine(db)
		mock.ExpectQuery(`SELECT \* FROM "comments"`).WillReturnRows(commentRow())

		err := e.Delete(context.Background(), uuid.New(), commentID, Actor{ID: author})
		assert.True(t, apperr.IsNotFound(err))
	})
}

func TestEmployeeEngine_Authenticate(t *testing.T) {
	hash, err := auth.HashPassword("correct-horse")
	require.NoError(t, err)
	id := uuid.New()
	employeeRow := func(active bool) *sqlmock.Rows {
		return sqlmock.NewRows([]string{"id", "email", "password_hash", "is_active", "role"}).
			AddRow(id.String(), "taro@example.jp", hash, active, "staff")
	}
	const invalid = "メールアドレスまたはパスワードが正しくありません"

	t.Run("success", func(t *testing.T) {
		db, mock := dbtest.New(t)
		e := NewEmployeeEngine(db)
		mock.ExpectQuery(`SELECT \* FROM "employees" WHERE lower\(email\) = \$1`).
			WithArgs("taro@example.jp", 1).
			WillReturnRows(employeeRow(true))

		emp, err := e.Authenticate(context.Background(), " Taro@Example.JP ", "correct-horse")
		require.NoError(t, err)
		assert.Equal(t, id, emp.ID)
	})

	t.Run("wrong password", func(t *testing.T) {
		db, mock := dbtest.New(t)
		e := NewEmployeeEngine(db)
		mock.ExpectQuery(`SELECT \* FROM "employees"`).WillReturnRows(employeeRow(true))

		_, err := e.Authenticate(context.Background(), "taro@example.jp", "wrong")
		assert.EqualError(t, err, invalid)
	})

	t.Run("inactive", func(t *testing.T) {
		db, mock := dbtest.New(t)
		e := NewEmployeeEngine(db)
		mock.ExpectQuery(`SELECT \* FROM "employees"`).WillReturnRows(employeeRow(false))

		_, err := e.Authenticate(context.Background(), "taro@example.jp", "correct-horse")
		assert.EqualError(t, err, invalid)
	})

	t.Run("unknown email", func(t *testing.T) {
		db, mock := dbtest.New(t)
		e := NewEmployeeEngine(db)
		mock.ExpectQuery(`SELECT \* FROM "employees"`).WillReturnRows(sqlmock.NewRows([]string{"id"}))

		_, err := e.Authenticate(context.Background(), "nobody@example.jp", "correct-horse")
		assert.EqualError(t, err, invalid)
	})
}

func TestEmployeeInput_PasswordRequiredOnCreate(t *testing.T) {
	db, _ := dbtest.New(t)
	e := NewEmployeeEngine(db)

	_, err := e.Create(context.Background(), EmployeeInput{
		Code: "E001", LastName: "山田", Email: "taro@example.jp", Password: "short",
	})
	var verr *apperr.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "password", verr.Field)

	_, err = e.Create(context.Background(), EmployeeInput{
		Code: "E001", LastName: "山田", Email: "taro@example.jp", Password: "long enough", Role: "owner",
	})
	assert.EqualError(t, err, "権限の指定が正しくありません")
}
