package store

import (
	"database/sql"
	"encoding/json"
	"strings"
)

// placeholderList returns "?,?,?" for n placeholders.
func placeholderList(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?,", n-1) + "?"
}

// stringsToArgs converts []string to []any for use with database/sql.
func stringsToArgs(ss []string) []any {
	args := make([]any, len(ss))
	for i, s := range ss {
		args[i] = s
	}
	return args
}

// nullString maps nil to SQL NULL.
func nullString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// stringPtr maps SQL NULL back to nil.
func stringPtr(ns sql.NullString) *string {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	s := ns.String
	return &s
}

// marshalDocumentation converts []string to JSON text for storage.
func marshalDocumentation(doc []string) string {
	if len(doc) == 0 {
		return "[]"
	}
	b, _ := json.Marshal(doc)
	return string(b)
}

// unmarshalDocumentation converts JSON text back to []string.
func unmarshalDocumentation(s string) []string {
	if s == "" || s == "null" {
		return []string{}
	}
	var doc []string
	if err := json.Unmarshal([]byte(s), &doc); err != nil || doc == nil {
		return []string{}
	}
	return doc
}
