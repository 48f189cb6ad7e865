package engine

import (
	"net/mail"
	"regexp"
	"strings"
	"time"

	apperr "github.com/aethra/daicho/internal/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/text/width"
)

// JST is the business time zone. Work dates and invoice numbering follow it.
var JST = time.FixedZone("JST", 9*60*60)

const dateLayout = "2006-01-02"

// Accepted datetime layouts from forms and the calendar widget
var dateTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

// Actor is the employee performing an operation
type Actor struct {
	ID    uuid.UUID
	Admin bool
}

func required(field, label, value string) error {
	if strings.TrimSpace(value) == "" {
		return apperr.NewValidationError(field, label+"は必須です")
	}
	return nil
}

func parseDate(field, label, value string) (time.Time, error) {
	t, err := time.ParseInLocation(dateLayout, strings.TrimSpace(value), JST)
	if err != nil {
		return time.Time{}, apperr.NewValidationError(field, label+"の日付形式が正しくありません")
	}
	return t, nil
}

func parseOptionalDate(field, label, value string) (*time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	t, err := parseDate(field, label, value)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func parseDateTime(field, label, value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range dateTimeLayouts {
		if t, err := time.ParseInLocation(layout, value, JST); err == nil {
			return t, nil
		}
	}
	if t, err := time.ParseInLocation(dateLayout, value, JST); err == nil {
		return t, nil
	}
	return time.Time{}, apperr.NewValidationError(field, label+"の日時形式が正しくありません")
}

// NormalizeAmount folds full-width digits and drops thousands separators
func NormalizeAmount(value string) string {
	return strings.ReplaceAll(width.Narrow.String(strings.TrimSpace(value)), ",", "")
}

func parseDecimal(field, label, value string) (decimal.Decimal, error) {
	value = NormalizeAmount(value)
	if value == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, apperr.NewValidationError(field, label+"は数値で入力してください")
	}
	if d.IsNegative() {
		return decimal.Zero, apperr.NewValidationError(field, label+"は0以上で入力してください")
	}
	return d, nil
}

func parseOptionalUUID(field, label, value string) (*uuid.UUID, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	id, err := uuid.Parse(value)
	if err != nil {
		return nil, apperr.NewValidationError(field, label+"の指定が正しくありません")
	}
	return &id, nil
}

func parseUUID(field, label, value string) (uuid.UUID, error) {
	id, err := parseOptionalUUID(field, label, value)
	if err != nil {
		return uuid.Nil, err
	}
	if id == nil {
		return uuid.Nil, apperr.NewValidationError(field, label+"は必須です")
	}
	return *id, nil
}

var postalCodeRe = regexp.MustCompile(`^(\d{3})-?(\d{4})$`)

// NormalizePostalCode folds full-width digits and formats as NNN-NNNN.
// Empty input stays empty.
func NormalizePostalCode(value string) (string, error) {
	value = strings.ReplaceAll(value, "ー", "-")
	value = strings.TrimSpace(width.Narrow.String(value))
	if value == "" {
		return "", nil
	}
	m := postalCodeRe.FindStringSubmatch(value)
	if m == nil {
		return "", apperr.NewValidationError("postal_code", "郵便番号は123-4567の形式で入力してください")
	}
	return m[1] + "-" + m[2], nil
}

func validEmail(field, value string) error {
	if value == "" {
		return nil
	}
	if _, err := mail.ParseAddress(value); err != nil {
		return apperr.NewValidationError(field, "メールアドレスの形式が正しくありません")
	}
	return nil
}

func trim(s string) string { return strings.TrimSpace(s) }
