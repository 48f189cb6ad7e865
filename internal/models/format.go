package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Yen formats an amount with thousands separators, truncated to whole yen
func Yen(d decimal.Decimal) string {
	s := d.Truncate(0).String()
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}

// JapaneseDate formats t as 2006年1月2日
func JapaneseDate(t time.Time) string {
	return t.Format("2006年1月2日")
}
