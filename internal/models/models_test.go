package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBaseBeforeCreate(t *testing.T) {
	var b Base
	require.NoError(t, b.BeforeCreate(nil))
	assert.NotEqual(t, uuid.Nil, b.ID)

	id := uuid.New()
	b = Base{ID: id}
	require.NoError(t, b.BeforeCreate(nil))
	assert.Equal(t, id, b.ID)
}

func TestAllocations_ScanValue(t *testing.T) {
	var a Allocations
	require.NoError(t, a.Scan([]byte(`{"2024-05":"200000","2024-04":"150000"}`)))
	assert.Equal(t, []string{"2024-04", "2024-05"}, a.Months())
	assert.True(t, a.Total().Equal(decimal.NewFromInt(350000)))

	v, err := a.Value()
	require.NoError(t, err)
	assert.Contains(t, v, `"2024-04":"150000"`)

	var empty Allocations
	require.NoError(t, empty.Scan(nil))
	assert.NotNil(t, empty)
	assert.True(t, empty.Total().IsZero())

	v, err = Allocations(nil).Value()
	require.NoError(t, err)
	assert.Equal(t, "{}", v)
}

func TestJSONB_String(t *testing.T) {
	var j JSONB
	require.NoError(t, j.Scan(`{"lot":"12-3","area":120.5,"urgent":true}`))
	assert.Equal(t, "12-3", j.String("lot"))
	assert.Equal(t, "120.5", j.String("area"))
	assert.Equal(t, "はい", j.String("urgent"))
	assert.Equal(t, "", j.String("missing"))

	assert.Error(t, j.Scan(42))
}

func TestJSONB_ScanKeepsLargeNumbers(t *testing.T) {
	var j JSONB
	require.NoError(t, j.Scan([]byte(`{"land_area":12345678901234567.89}`)))
	assert.Equal(t, "12345678901234567.89", j.String("land_area"))

	v, err := j.Value()
	require.NoError(t, err)
	assert.Equal(t, `{"land_area":12345678901234567.89}`, v)
}

func TestValidMonth(t *testing.T) {
	assert.True(t, ValidMonth("2024-01"))
	assert.True(t, ValidMonth("2024-12"))
	assert.False(t, ValidMonth("2024-13"))
	assert.False(t, ValidMonth("2024-1"))
	assert.False(t, ValidMonth("24-01"))
}

func TestAttendanceRecord_WorkedMinutes(t *testing.T) {
	in := time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)
	r := AttendanceRecord{ClockInAt: in, BreakMinutes: 60}
	assert.Equal(t, 0, r.WorkedMinutes())

	out := in.Add(9 * time.Hour)
	r.ClockOutAt = &out
	assert.Equal(t, 480, r.WorkedMinutes())

	short := in.Add(30 * time.Minute)
	r.ClockOutAt = &short
	assert.Equal(t, 0, r.WorkedMinutes())
}

func TestNames(t *testing.T) {
	assert.Equal(t, "山田 太郎", Contact{LastName: "山田", FirstName: "太郎"}.FullName())
	assert.Equal(t, "山田", Employee{LastName: "山田"}.FullName())
	assert.True(t, Contact{}.IsIndividual())
	assert.True(t, Employee{Role: RoleAdmin}.IsAdmin())
	assert.False(t, Employee{Role: RoleStaff}.IsAdmin())
}
