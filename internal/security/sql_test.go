package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateIdentifier(t *testing.T) {
	assert.NoError(t, ValidateIdentifier("name_kana"))
	assert.Error(t, ValidateIdentifier(""))
	assert.Error(t, ValidateIdentifier("Name"))
	assert.Error(t, ValidateIdentifier("name; drop table accounts"))
}

func TestEscapeLikePattern(t *testing.T) {
	assert.Equal(t, `100\%`, EscapeLikePattern("100%"))
	assert.Equal(t, `a\_b`, EscapeLikePattern("a_b"))
	assert.Equal(t, `c:\\dir`, EscapeLikePattern(`c:\dir`))
}

func TestSearchCondition(t *testing.T) {
	cond, args := SearchCondition([]string{"name", "Bad-Col", "code"}, " 山田% ")
	assert.Equal(t, `("name" ILIKE ? ESCAPE '\' OR "code" ILIKE ? ESCAPE '\')`, cond)
	assert.Equal(t, []interface{}{`%山田\%%`, `%山田\%%`}, args)

	cond, args = SearchCondition([]string{"name"}, "   ")
	assert.Empty(t, cond)
	assert.Nil(t, args)
}

func TestOrderClause(t *testing.T) {
	allowed := map[string]bool{"name": true, "code": true}
	assert.Equal(t, `"name" DESC`, OrderClause("name", "desc", allowed, "created_at DESC"))
	assert.Equal(t, `"code" ASC`, OrderClause("code", "", allowed, "created_at DESC"))
	assert.Equal(t, "created_at DESC", OrderClause("password_hash", "asc", allowed, "created_at DESC"))
	assert.Equal(t, "created_at DESC", OrderClause("", "asc", allowed, "created_at DESC"))
}
