// Package security guards the few places where SQL is assembled from
// request input: sort columns and free-text search.
package security

import (
	"fmt"
	"regexp"
	"strings"
)

// ValidIdentifierRegex matches valid PostgreSQL identifiers
// Only allows lowercase letters, digits, and underscores, starting with a letter or underscore
var ValidIdentifierRegex = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// ValidateIdentifier checks if a string is a valid SQL identifier
func ValidateIdentifier(name string) error {
	if name == "" {
		return fmt.Errorf("identifier cannot be empty")
	}
	if len(name) > 63 {
		return fmt.Errorf("identifier too long (max 63 characters)")
	}
	if !ValidIdentifierRegex.MatchString(name) {
		return fmt.Errorf("invalid identifier: %q", name)
	}
	return nil
}

// QuoteIdentifier safely quotes a PostgreSQL identifier
// This should only be used AFTER validation
func QuoteIdentifier(name string) string {
	escaped := strings.ReplaceAll(name, `"`, `""`)
	return `"` + escaped + `"`
}

// EscapeLikePattern escapes special characters in LIKE patterns
func EscapeLikePattern(pattern string) string {
	pattern = strings.ReplaceAll(pattern, `\`, `\\`)
	pattern = strings.ReplaceAll(pattern, `%`, `\%`)
	pattern = strings.ReplaceAll(pattern, `_`, `\_`)
	return pattern
}

// SearchCondition builds an OR of ILIKE matches over columns for use with
// gorm's Where. Invalid column names are skipped; an empty condition means
// nothing to filter on.
func SearchCondition(columns []string, term string) (string, []interface{}) {
	term = strings.TrimSpace(term)
	if term == "" {
		return "", nil
	}
	param := "%" + EscapeLikePattern(term) + "%"

	conditions := make([]string, 0, len(columns))
	args := make([]interface{}, 0, len(columns))
	for _, col := range columns {
		if err := ValidateIdentifier(col); err != nil {
			continue
		}
		conditions = append(conditions, fmt.Sprintf(`%s ILIKE ? ESCAPE '\'`, QuoteIdentifier(col)))
		args = append(args, param)
	}
	if len(conditions) == 0 {
		return "", nil
	}
	return "(" + strings.Join(conditions, " OR ") + ")", args
}

// OrderClause returns a quoted ORDER BY expression when sort is in the
// allowed set, otherwise fallback unchanged.
func OrderClause(sort, dir string, allowed map[string]bool, fallback string) string {
	if sort == "" || !allowed[sort] {
		return fallback
	}
	if err := ValidateIdentifier(sort); err != nil {
		return fallback
	}
	direction := "ASC"
	if strings.EqualFold(dir, "desc") {
		direction = "DESC"
	}
	return QuoteIdentifier(sort) + " " + direction
}
