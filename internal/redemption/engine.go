// Gatekeeper - Event Registration Check-in Pipeline
// Copyright 2026 Texperia Tech Team
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/texperia/gatekeeper

// Package redemption turns a presented token into a recorded attendance.
//
// A token admits exactly once. Single-use is enforced by the attendance
// cell: redemption re-reads the row and rejects it once the cell reads
// PRESENT. Concurrent scans of the same token within this process are
// serialized by a per-token mutex, which narrows the read-check-write race
// to writers outside this process.
package redemption

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/texperia/gatekeeper/internal/credential"
	"github.com/texperia/gatekeeper/internal/mailer"
	"github.com/texperia/gatekeeper/internal/metrics"
	"github.com/texperia/gatekeeper/internal/models"
	"github.com/texperia/gatekeeper/internal/schema"
)

// Sentinel outcomes of a redemption attempt.
var (
	// ErrInvalidFormat rejects a malformed token before any remote lookup.
	ErrInvalidFormat = errors.New("invalid token format")

	// ErrNotFound means no row in the routed sheet carries the token.
	ErrNotFound = errors.New("token not found")

	// ErrAlreadyRedeemed means the token's row is already marked present.
	ErrAlreadyRedeemed = errors.New("token already redeemed")
)

// Store is the slice of the tabular store accessor the engine needs.
type Store interface {
	HeaderInfo(ctx context.Context, spreadsheetID string) (*schema.HeaderInfo, error)
	ReadRow(ctx context.Context, spreadsheetID string, rowIndex, width int) ([]string, error)
	ReadColumn(ctx context.Context, spreadsheetID, columnLetter string) ([]string, error)
	WriteFields(ctx context.Context, spreadsheetID string, rowIndex int, updates map[schema.Field]string) error
}

// Dispatcher is the asynchronous email queue.
type Dispatcher interface {
	Dispatch(msg mailer.Message, onDone func(sent bool))
}

// Result describes a redeemed (or already-redeemed) registration.
type Result struct {
	Token        string              `json:"token"`
	Organization models.Organization `json:"organization"`
	RowIndex     int                 `json:"rowIndex"`
	Name         string              `json:"name"`
	Day1Events   []string            `json:"day1Events,omitempty"`
	Day2Events   []string            `json:"day2Events,omitempty"`
	RedeemedAt   time.Time           `json:"redeemedAt"`
}

// Engine performs token redemptions.
type Engine struct {
	store      Store
	resolver   *schema.Resolver
	dispatcher Dispatcher
	sheets     map[models.Organization]string
	logger     zerolog.Logger
	locks      *keyedMutex
	now        func() time.Time
}

// New creates an Engine. sheets routes each organization prefix to its
// spreadsheet ID.
func New(
	store Store,
	resolver *schema.Resolver,
	dispatcher Dispatcher,
	sheets map[models.Organization]string,
	logger *zerolog.Logger,
) *Engine {
	return &Engine{
		store:      store,
		resolver:   resolver,
		dispatcher: dispatcher,
		sheets:     sheets,
		logger:     logger.With().Str("component", "redemption").Logger(),
		locks:      newKeyedMutex(),
		now:        time.Now,
	}
}

// Redeem validates, locates, and consumes a presented token.
//
// On ErrAlreadyRedeemed the Result is still populated so the caller can show
// who the token belonged to. For all other errors the Result is nil.
func (e *Engine) Redeem(ctx context.Context, rawToken string) (*Result, error) {
	token := credential.Normalize(rawToken)
	if !credential.Valid(token) {
		metrics.Redemptions.WithLabelValues("invalid_format").Inc()
		return nil, ErrInvalidFormat
	}

	org, _ := credential.OrgFromToken(token)
	sheetID, ok := e.sheets[org]
	if !ok {
		metrics.Redemptions.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("no spreadsheet configured for organization %s", org)
	}

	// Serialize concurrent scans of the same token. The key is the
	// canonical lowercase form so case variants contend on one lock.
	unlock := e.locks.lock(strings.ToLower(token))
	defer unlock()

	result, err := e.redeem(ctx, org, sheetID, token)
	switch {
	case err == nil:
		metrics.Redemptions.WithLabelValues("success").Inc()
	case errors.Is(err, ErrNotFound):
		metrics.Redemptions.WithLabelValues("not_found").Inc()
	case errors.Is(err, ErrAlreadyRedeemed):
		metrics.Redemptions.WithLabelValues("already_redeemed").Inc()
	default:
		metrics.Redemptions.WithLabelValues("error").Inc()
	}
	return result, err
}

func (e *Engine) redeem(ctx context.Context, org models.Organization, sheetID, token string) (*Result, error) {
	info, err := e.store.HeaderInfo(ctx, sheetID)
	if err != nil {
		return nil, err
	}
	if err := e.resolver.ValidateRequired(info.Map, schema.FieldToken, schema.FieldAttendance); err != nil {
		return nil, err
	}

	rowIndex, err := e.locate(ctx, sheetID, info, token)
	if err != nil {
		return nil, err
	}

	// Fresh read; the column scan may be stale.
	row, err := e.store.ReadRow(ctx, sheetID, rowIndex, len(info.Headers))
	if err != nil {
		return nil, err
	}
	if !credential.Equal(e.resolver.Cell(row, info.Map, schema.FieldToken), token) {
		return nil, ErrNotFound
	}

	day1, day2 := credential.ExtractEvents(e.resolver, info, row)
	result := &Result{
		Token:        token,
		Organization: org,
		RowIndex:     rowIndex,
		Name:         e.resolver.Cell(row, info.Map, schema.FieldName),
		Day1Events:   day1,
		Day2Events:   day2,
		RedeemedAt:   e.now(),
	}

	attendance := e.resolver.Cell(row, info.Map, schema.FieldAttendance)
	if strings.EqualFold(attendance, models.AttendancePresent) {
		e.logger.Warn().
			Str("organization", string(org)).
			Int("row", rowIndex).
			Msg("Rejected reuse of redeemed token")
		return result, ErrAlreadyRedeemed
	}

	err = e.store.WriteFields(ctx, sheetID, rowIndex, map[schema.Field]string{
		schema.FieldAttendance: models.AttendancePresent,
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info().
		Str("organization", string(org)).
		Int("row", rowIndex).
		Msg("Token redeemed")

	// Attendance receipt is best effort; the redemption stands regardless.
	if email := e.resolver.Cell(row, info.Map, schema.FieldEmail); email != "" && e.dispatcher != nil {
		e.dispatcher.Dispatch(mailer.Message{
			Org:        org,
			To:         email,
			Name:       result.Name,
			Token:      token,
			Day1Events: day1,
			Day2Events: day2,
			Kind:       mailer.KindAttendance,
		}, nil)
	}

	return result, nil
}

// locate scans the token column for the presented token and returns its
// 1-based sheet row.
func (e *Engine) locate(ctx context.Context, sheetID string, info *schema.HeaderInfo, token string) (int, error) {
	letter, ok := e.resolver.ResolveLetter(info.Map, schema.FieldToken)
	if !ok {
		return 0, &schema.SchemaError{Missing: []schema.Field{schema.FieldToken}}
	}

	column, err := e.store.ReadColumn(ctx, sheetID, letter)
	if err != nil {
		return 0, err
	}

	for i, cell := range column {
		if credential.Equal(cell, token) {
			return i + 2, nil
		}
	}
	return 0, ErrNotFound
}
