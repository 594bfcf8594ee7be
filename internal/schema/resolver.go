// Gatekeeper - Event Registration Check-in Pipeline
// Copyright 2026 Texperia Tech Team
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/texperia/gatekeeper

// Package schema resolves the logical fields of the registration sheet onto
// whatever literal column headers a given spreadsheet instance uses.
//
// Headers are matched through a configurable alias table so the pipeline
// survives human edits to the sheet: each logical field carries an ordered
// list of acceptable spellings, probed case-insensitively after trimming.
// Day-event columns are classified separately by substring containment,
// because those headers are free-text labels that merely embed a marker
// phrase (e.g. "Robotics Workshop (Day 1)").
package schema

import (
	"fmt"
	"strings"
)

// HeaderMap maps a normalized header spelling to its zero-based column
// index. The first occurrence wins when a sheet contains duplicate headers.
type HeaderMap map[string]int

// HeaderInfo bundles a sheet's literal header row with its lookup map.
type HeaderInfo struct {
	Headers []string
	Map     HeaderMap
}

// DayType classifies a header as a day-1 or day-2 event column.
type DayType int

const (
	DayOne DayType = iota + 1
	DayTwo
)

// Normalize trims surrounding whitespace from a cell or header value.
// Comparisons additionally lowercase; Normalize itself preserves case so
// cell content keeps its human-readable form.
func Normalize(value string) string {
	return strings.TrimSpace(value)
}

func normalizeKey(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

// BuildHeaderMap builds a HeaderMap from a literal header row. Empty headers
// are skipped; on duplicates the first occurrence wins.
func BuildHeaderMap(headers []string) HeaderMap {
	m := make(HeaderMap, len(headers))
	for idx, header := range headers {
		key := normalizeKey(header)
		if key == "" {
			continue
		}
		if _, exists := m[key]; !exists {
			m[key] = idx
		}
	}
	return m
}

// SchemaError reports logical fields that have no resolvable header in a
// sheet. It is fatal to the operation that required the fields, never to
// the process.
type SchemaError struct {
	Missing []Field
}

func (e *SchemaError) Error() string {
	names := make([]string, len(e.Missing))
	for i, f := range e.Missing {
		names[i] = string(f)
	}
	return fmt.Sprintf("required columns missing: %s (check the alias table for accepted header spellings)",
		strings.Join(names, ", "))
}

// Resolver resolves logical fields against header maps using an alias table.
type Resolver struct {
	aliases AliasTable
}

// NewResolver creates a Resolver. A nil or empty table falls back to
// DefaultAliases.
func NewResolver(aliases AliasTable) *Resolver {
	if len(aliases) == 0 {
		aliases = DefaultAliases()
	}
	return &Resolver{aliases: aliases}
}

// Resolve returns the column index of a logical field. Aliases are probed in
// table order and the first match wins, which encodes the priority among
// synonymous headers. The second result is false when no alias matches;
// callers decide whether absence is fatal.
func (r *Resolver) Resolve(headerMap HeaderMap, field Field) (int, bool) {
	for _, alias := range r.aliases[field] {
		if idx, ok := headerMap[normalizeKey(alias)]; ok {
			return idx, true
		}
	}
	return 0, false
}

// ResolveLetter returns the A1-style column letter of a logical field.
func (r *Resolver) ResolveLetter(headerMap HeaderMap, field Field) (string, bool) {
	idx, ok := r.Resolve(headerMap, field)
	if !ok {
		return "", false
	}
	return ColumnLetter(idx), true
}

// ValidateRequired fails with a *SchemaError listing every unresolved field,
// so partial or garbled sheets fail fast with an actionable message instead
// of corrupting unrelated columns.
func (r *Resolver) ValidateRequired(headerMap HeaderMap, fields ...Field) error {
	var missing []Field
	for _, f := range fields {
		if _, ok := r.Resolve(headerMap, f); !ok {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return &SchemaError{Missing: missing}
	}
	return nil
}

// DayType classifies a header as a day-1 or day-2 event column by substring
// containment against the configured marker phrases. Deliberately loose:
// the header only has to embed the marker somewhere in its text.
func (r *Resolver) DayType(header string) (DayType, bool) {
	normalized := normalizeKey(header)
	for _, marker := range r.aliases[MarkerDay1] {
		if strings.Contains(normalized, strings.ToLower(marker)) {
			return DayOne, true
		}
	}
	for _, marker := range r.aliases[MarkerDay2] {
		if strings.Contains(normalized, strings.ToLower(marker)) {
			return DayTwo, true
		}
	}
	return 0, false
}

// Cell returns the normalized value of the row cell under a logical field,
// or "" when the field does not resolve or the row is short.
func (r *Resolver) Cell(row []string, headerMap HeaderMap, field Field) string {
	idx, ok := r.Resolve(headerMap, field)
	if !ok || idx >= len(row) {
		return ""
	}
	return Normalize(row[idx])
}
