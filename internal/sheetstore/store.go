// Gatekeeper - Event Registration Check-in Pipeline
// Copyright 2026 Texperia Tech Team
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/texperia/gatekeeper

// Package sheetstore reads and writes the registration spreadsheets through
// the Google Sheets v4 API.
//
// The spreadsheet is the system of record: row 1 is the header row, data
// rows start at index 2, and all addressing is A1-style. The accessor keeps
// a time-bounded header cache per spreadsheet, rate-limits outbound calls
// against the Sheets quota, and routes every call through a circuit breaker
// so a flapping remote store fails fast instead of hanging callers.
//
// The store offers read-modify-write primitives only. It cannot make them
// transactional; callers that need consistency re-read rows immediately
// before acting on them.
package sheetstore

import (
	"context"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/texperia/gatekeeper/internal/cache"
	"github.com/texperia/gatekeeper/internal/metrics"
	"github.com/texperia/gatekeeper/internal/schema"
)

// DefaultTabName is the sheet tab that Google Forms writes responses to.
const DefaultTabName = "Form Responses 1"

// Config holds store tuning knobs.
type Config struct {
	// TabName is the sheet tab holding form responses.
	TabName string

	// HeaderCacheTTL bounds how long a cached header row is served before a
	// fresh read. Header rows rarely change; 5 minutes is the default.
	HeaderCacheTTL time.Duration

	// RequestsPerSecond caps outbound Sheets API calls. The Sheets quota is
	// 60 read and 60 write requests per minute per user.
	RequestsPerSecond float64
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		TabName:           DefaultTabName,
		HeaderCacheTTL:    5 * time.Minute,
		RequestsPerSecond: 1,
	}
}

// Store is the tabular store accessor.
type Store struct {
	api      API
	resolver *schema.Resolver
	cfg      Config
	headers  *cache.Cache
	limiter  *rate.Limiter
	cb       *gobreaker.CircuitBreaker[[][]interface{}]
	logger   zerolog.Logger
}

// New creates a Store around the given API.
func New(api API, resolver *schema.Resolver, cfg Config, logger *zerolog.Logger) *Store {
	if cfg.TabName == "" {
		cfg.TabName = DefaultTabName
	}
	if cfg.HeaderCacheTTL <= 0 {
		cfg.HeaderCacheTTL = 5 * time.Minute
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 1
	}

	return &Store{
		api:      api,
		resolver: resolver,
		cfg:      cfg,
		headers:  cache.New(cfg.HeaderCacheTTL),
		limiter:  rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 4),
		cb:       newBreaker(),
		logger:   logger.With().Str("component", "sheetstore").Logger(),
	}
}

// Resolver returns the schema resolver the store was built with.
func (s *Store) Resolver() *schema.Resolver {
	return s.resolver
}

// get performs a rate-limited, breaker-protected range read.
func (s *Store) get(ctx context.Context, spreadsheetID, readRange string) ([][]interface{}, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, &RemoteError{Op: "read", SpreadsheetID: spreadsheetID, Err: err}
	}

	rows, err := s.cb.Execute(func() ([][]interface{}, error) {
		return s.api.Get(ctx, spreadsheetID, readRange)
	})
	if err != nil {
		result := "failure"
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			result = "rejected"
		}
		metrics.SheetRequests.WithLabelValues("read", result).Inc()
		return nil, &RemoteError{Op: "read", SpreadsheetID: spreadsheetID, Err: err}
	}
	metrics.SheetRequests.WithLabelValues("read", "success").Inc()
	return rows, nil
}

// write performs a rate-limited, breaker-protected batch update.
func (s *Store) write(ctx context.Context, spreadsheetID string, updates []CellUpdate) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return &RemoteError{Op: "write", SpreadsheetID: spreadsheetID, Err: err}
	}

	_, err := s.cb.Execute(func() ([][]interface{}, error) {
		return nil, s.api.BatchUpdate(ctx, spreadsheetID, updates)
	})
	if err != nil {
		result := "failure"
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			result = "rejected"
		}
		metrics.SheetRequests.WithLabelValues("write", result).Inc()
		return &RemoteError{Op: "write", SpreadsheetID: spreadsheetID, Err: err}
	}
	metrics.SheetRequests.WithLabelValues("write", "success").Inc()
	return nil
}

// HeaderInfo returns the header row and its lookup map, served from the
// header cache when fresh. A fresh read repopulates the cache.
func (s *Store) HeaderInfo(ctx context.Context, spreadsheetID string) (*schema.HeaderInfo, error) {
	if cached, ok := s.headers.Get(spreadsheetID); ok {
		metrics.HeaderCacheLookups.WithLabelValues("hit").Inc()
		return cached.(*schema.HeaderInfo), nil
	}
	metrics.HeaderCacheLookups.WithLabelValues("miss").Inc()

	rows, err := s.get(ctx, spreadsheetID, fmt.Sprintf("%s!1:1", s.cfg.TabName))
	if err != nil {
		return nil, err
	}

	var headers []string
	if len(rows) > 0 {
		headers = cellStrings(rows[0])
	}
	s.logger.Debug().
		Str("spreadsheet", spreadsheetID).
		Strs("headers", headers).
		Msg("Detected sheet headers")

	info := &schema.HeaderInfo{
		Headers: headers,
		Map:     schema.BuildHeaderMap(headers),
	}
	s.headers.Set(spreadsheetID, info)
	return info, nil
}

// ReadAll reads the whole tab: the header row followed by every data row.
func (s *Store) ReadAll(ctx context.Context, spreadsheetID string) ([][]string, error) {
	rows, err := s.get(ctx, spreadsheetID, s.cfg.TabName)
	if err != nil {
		return nil, err
	}
	out := make([][]string, len(rows))
	for i, row := range rows {
		out[i] = cellStrings(row)
	}
	return out, nil
}

// ReadRow re-reads one row fresh. rowIndex is 1-based (row 1 is headers);
// width is the number of header columns, bounding the range.
func (s *Store) ReadRow(ctx context.Context, spreadsheetID string, rowIndex, width int) ([]string, error) {
	last := schema.ColumnLetter(maxInt(width-1, 0))
	readRange := fmt.Sprintf("%s!A%d:%s%d", s.cfg.TabName, rowIndex, last, rowIndex)

	rows, err := s.get(ctx, spreadsheetID, readRange)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return cellStrings(rows[0]), nil
}

// ReadColumn reads one column's data cells (row 2 downward), preserving row
// order. Trailing empty cells may be omitted by the remote API.
func (s *Store) ReadColumn(ctx context.Context, spreadsheetID, columnLetter string) ([]string, error) {
	readRange := fmt.Sprintf("%s!%s2:%s", s.cfg.TabName, columnLetter, columnLetter)

	rows, err := s.get(ctx, spreadsheetID, readRange)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(rows))
	for i, row := range rows {
		if len(row) > 0 {
			out[i] = cellString(row[0])
		}
	}
	return out, nil
}

// WriteFields resolves each logical field to its column and issues one
// batched multi-cell update, so all resolved fields land atomically from the
// caller's perspective. Fields that fail to resolve are logged and skipped
// rather than aborting the write; callers guard the fields they cannot live
// without through the resolver's ValidateRequired.
func (s *Store) WriteFields(ctx context.Context, spreadsheetID string, rowIndex int, updates map[schema.Field]string) error {
	info, err := s.HeaderInfo(ctx, spreadsheetID)
	if err != nil {
		return err
	}

	cells := make([]CellUpdate, 0, len(updates))
	for field, value := range updates {
		letter, ok := s.resolver.ResolveLetter(info.Map, field)
		if !ok {
			s.logger.Warn().
				Str("spreadsheet", spreadsheetID).
				Str("field", string(field)).
				Msg("Column not found, skipping field update")
			continue
		}
		cells = append(cells, CellUpdate{
			Range: fmt.Sprintf("%s!%s%d", s.cfg.TabName, letter, rowIndex),
			Value: value,
		})
	}

	if len(cells) == 0 {
		return nil
	}

	if err := s.write(ctx, spreadsheetID, cells); err != nil {
		return err
	}
	s.logger.Debug().
		Str("spreadsheet", spreadsheetID).
		Int("row", rowIndex).
		Int("cells", len(cells)).
		Msg("Updated row fields")
	return nil
}

func cellStrings(row []interface{}) []string {
	out := make([]string, len(row))
	for i, v := range row {
		out[i] = cellString(v)
	}
	return out
}

func cellString(v interface{}) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
