// Gatekeeper - Event Registration Check-in Pipeline
// Copyright 2026 Texperia Tech Team
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/texperia/gatekeeper

// Package reconciler runs the periodic credentialing loop.
//
// Each cycle scans both organization sheets for approved registrations that
// have no token yet, mints a credential per row, writes it back together
// with the QR link and a PENDING mail status, and queues the confirmation
// email. The final mail status (YES/NO) is written asynchronously when the
// delivery resolves.
//
// Cycles are single-flight: if a cycle is still running when the next tick
// fires, the tick is skipped rather than queued. Exactly-once credentialing
// rests on the token cell itself; a row is re-read immediately before
// minting and skipped if a token has appeared since the bulk scan.
package reconciler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/texperia/gatekeeper/internal/credential"
	"github.com/texperia/gatekeeper/internal/mailer"
	"github.com/texperia/gatekeeper/internal/metrics"
	"github.com/texperia/gatekeeper/internal/models"
	"github.com/texperia/gatekeeper/internal/schema"
)

// Store is the slice of the tabular store accessor the reconciler needs.
type Store interface {
	HeaderInfo(ctx context.Context, spreadsheetID string) (*schema.HeaderInfo, error)
	ReadAll(ctx context.Context, spreadsheetID string) ([][]string, error)
	ReadRow(ctx context.Context, spreadsheetID string, rowIndex, width int) ([]string, error)
	WriteFields(ctx context.Context, spreadsheetID string, rowIndex int, updates map[schema.Field]string) error
}

// Dispatcher is the asynchronous email queue.
type Dispatcher interface {
	Dispatch(msg mailer.Message, onDone func(sent bool))
}

// requiredFields must resolve before any row in a sheet is touched.
var requiredFields = []schema.Field{
	schema.FieldTimestamp,
	schema.FieldPaymentStatus,
	schema.FieldToken,
}

// Config holds reconciler tuning knobs.
type Config struct {
	// Interval between cycle starts. 10 seconds in production.
	Interval time.Duration

	// InitialDelay before the first cycle, letting the HTTP surface come up
	// before the first burst of sheet reads.
	InitialDelay time.Duration

	// CycleTimeout bounds one full cycle across both sheets.
	CycleTimeout time.Duration

	// WriteBackTimeout bounds the asynchronous mail-status write.
	WriteBackTimeout time.Duration

	// Sheets maps each organization to its spreadsheet ID.
	Sheets map[models.Organization]string
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Interval:         10 * time.Second,
		InitialDelay:     2 * time.Second,
		CycleTimeout:     5 * time.Minute,
		WriteBackTimeout: 30 * time.Second,
	}
}

// Reconciler drives the credentialing loop.
type Reconciler struct {
	store      Store
	resolver   *schema.Resolver
	issuer     *credential.Issuer
	dispatcher Dispatcher
	logger     zerolog.Logger
	config     Config

	// Runtime state
	mu       sync.Mutex
	running  bool
	stopCh   chan struct{}
	doneCh   chan struct{}
	inFlight atomic.Bool
}

// New creates a Reconciler.
func New(
	store Store,
	resolver *schema.Resolver,
	issuer *credential.Issuer,
	dispatcher Dispatcher,
	logger *zerolog.Logger,
	config Config,
) *Reconciler {
	if config.Interval <= 0 {
		config.Interval = 10 * time.Second
	}
	if config.CycleTimeout <= 0 {
		config.CycleTimeout = 5 * time.Minute
	}
	if config.WriteBackTimeout <= 0 {
		config.WriteBackTimeout = 30 * time.Second
	}

	return &Reconciler{
		store:      store,
		resolver:   resolver,
		issuer:     issuer,
		dispatcher: dispatcher,
		logger:     logger.With().Str("component", "reconciler").Logger(),
		config:     config,
	}
}

// Start begins the reconciliation loop.
func (r *Reconciler) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("reconciler already running")
	}
	r.running = true
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})
	r.mu.Unlock()

	r.logger.Info().
		Dur("interval", r.config.Interval).
		Dur("initial_delay", r.config.InitialDelay).
		Int("sheets", len(r.config.Sheets)).
		Msg("Starting reconciler")

	go r.run(ctx)
	return nil
}

// Stop stops the loop and waits for the current cycle to complete.
func (r *Reconciler) Stop() error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	r.logger.Info().Msg("Stopping reconciler...")
	close(r.stopCh)
	<-r.doneCh

	r.mu.Lock()
	r.running = false
	r.mu.Unlock()

	r.logger.Info().Msg("Reconciler stopped")
	return nil
}

// IsRunning reports whether the loop is active.
func (r *Reconciler) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// run is the main loop.
func (r *Reconciler) run(ctx context.Context) {
	defer close(r.doneCh)

	if r.config.InitialDelay > 0 {
		select {
		case <-time.After(r.config.InitialDelay):
		case <-r.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}

	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	r.cycle(ctx)

	for {
		select {
		case <-ticker.C:
			r.cycle(ctx)
		case <-r.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// cycle runs one bounded reconciliation pass.
func (r *Reconciler) cycle(ctx context.Context) {
	cycleCtx, cancel := context.WithTimeout(ctx, r.config.CycleTimeout)
	defer cancel()

	if _, err := r.RunCycle(cycleCtx); err != nil {
		r.logger.Error().Err(err).Msg("Reconciliation cycle failed")
	}
}

// ErrCycleInFlight is returned when a cycle is requested while the previous
// one is still running.
var ErrCycleInFlight = fmt.Errorf("reconciliation cycle already in flight")

// RunCycle executes one reconciliation pass across both sheets. Safe to call
// from the loop and from the manual-trigger endpoint alike; overlapping
// calls are rejected, not queued.
func (r *Reconciler) RunCycle(ctx context.Context) (models.CycleSummary, error) {
	if !r.inFlight.CompareAndSwap(false, true) {
		metrics.ReconcileCycles.WithLabelValues("skipped").Inc()
		r.logger.Debug().Msg("Cycle still in flight, skipping tick")
		return models.CycleSummary{}, ErrCycleInFlight
	}
	defer r.inFlight.Store(false)

	start := time.Now()
	summary := models.CycleSummary{
		Processed: make(map[models.Organization][]models.ProcessedRow, len(r.config.Sheets)),
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for org, sheetID := range r.config.Sheets {
		wg.Add(1)
		go func(org models.Organization, sheetID string) {
			defer wg.Done()

			processed, err := r.processSheet(ctx, org, sheetID)
			if err != nil {
				r.logger.Error().
					Err(err).
					Str("organization", string(org)).
					Msg("Sheet reconciliation failed")
				return
			}

			mu.Lock()
			summary.Processed[org] = processed
			mu.Unlock()
		}(org, sheetID)
	}
	wg.Wait()

	summary.Duration = time.Since(start)
	metrics.ReconcileCycles.WithLabelValues("completed").Inc()
	metrics.ReconcileCycleDuration.Observe(summary.Duration.Seconds())

	if n := summary.Total(); n > 0 {
		r.logger.Info().
			Int("rows", n).
			Dur("duration", summary.Duration).
			Msg("Reconciliation cycle credentialed rows")
	} else {
		r.logger.Debug().
			Dur("duration", summary.Duration).
			Msg("Reconciliation cycle found no pending rows")
	}
	return summary, nil
}

// processSheet scans one sheet and credentials its pending rows in order.
func (r *Reconciler) processSheet(ctx context.Context, org models.Organization, sheetID string) ([]models.ProcessedRow, error) {
	info, err := r.store.HeaderInfo(ctx, sheetID)
	if err != nil {
		return nil, err
	}
	if err := r.resolver.ValidateRequired(info.Map, requiredFields...); err != nil {
		return nil, err
	}

	rows, err := r.store.ReadAll(ctx, sheetID)
	if err != nil {
		return nil, err
	}

	pending := r.filterPending(rows, info)
	if len(pending) == 0 {
		return nil, nil
	}

	r.logger.Info().
		Str("organization", string(org)).
		Int("pending", len(pending)).
		Msg("Found rows pending credentials")

	// Rows are processed sequentially so a mid-cycle failure leaves a clean
	// prefix of credentialed rows, not an arbitrary subset.
	var processed []models.ProcessedRow
	for _, p := range pending {
		result, err := r.processRow(ctx, org, sheetID, info, p.Index)
		if err != nil {
			metrics.RowErrors.WithLabelValues(string(org)).Inc()
			r.logger.Error().
				Err(err).
				Str("organization", string(org)).
				Int("row", p.Index).
				Msg("Row credentialing failed, will retry next cycle")
			continue
		}
		if result != nil {
			processed = append(processed, *result)
		}
	}
	return processed, nil
}

// filterPending returns the rows eligible for credentialing. rows[0] is the
// header row; data rows map to 1-based sheet indexes starting at 2.
func (r *Reconciler) filterPending(rows [][]string, info *schema.HeaderInfo) []models.PendingRow {
	var pending []models.PendingRow
	for i, row := range rows {
		if i == 0 {
			continue
		}
		if r.eligible(row, info) {
			pending = append(pending, models.PendingRow{Index: i + 1, Row: row})
		}
	}
	return pending
}

// eligible implements the credentialing predicate: payment approved, no
// token yet, and a submission timestamp present (blank padding rows are not
// registrations).
func (r *Reconciler) eligible(row []string, info *schema.HeaderInfo) bool {
	payment := r.resolver.Cell(row, info.Map, schema.FieldPaymentStatus)
	token := r.resolver.Cell(row, info.Map, schema.FieldToken)
	timestamp := r.resolver.Cell(row, info.Map, schema.FieldTimestamp)

	return strings.EqualFold(payment, models.PaymentApproved) &&
		token == "" &&
		timestamp != ""
}

// processRow credentials a single row. Returns (nil, nil) when the fresh
// re-read shows the row no longer needs a credential.
func (r *Reconciler) processRow(ctx context.Context, org models.Organization, sheetID string, info *schema.HeaderInfo, rowIndex int) (*models.ProcessedRow, error) {
	// Re-read the row fresh; the bulk scan may be stale and the token cell
	// is the exactly-once guard.
	row, err := r.store.ReadRow(ctx, sheetID, rowIndex, len(info.Headers))
	if err != nil {
		return nil, err
	}
	if !r.eligible(row, info) {
		r.logger.Debug().
			Str("organization", string(org)).
			Int("row", rowIndex).
			Msg("Row no longer pending on re-read, skipping")
		return nil, nil
	}

	cred := r.issuer.Issue(org)
	email := r.resolver.Cell(row, info.Map, schema.FieldEmail)

	mailStatus := models.MailPending
	if email == "" {
		mailStatus = models.MailNoAddress
	}

	// Token and PENDING land before the email attempt starts, so a crash
	// between write and send leaves an auditable PENDING row instead of an
	// emailed-but-uncredentialed registrant.
	updates := map[schema.Field]string{
		schema.FieldToken:              cred.Token,
		schema.FieldQRLink:             cred.RedemptionURL,
		schema.FieldTokenGeneratedTime: cred.GeneratedAt,
		schema.FieldMailSent:           string(mailStatus),
	}
	if err := r.store.WriteFields(ctx, sheetID, rowIndex, updates); err != nil {
		return nil, err
	}
	metrics.RowsCredentialed.WithLabelValues(string(org)).Inc()

	queued := false
	if email != "" {
		day1, day2 := credential.ExtractEvents(r.resolver, info, row)
		r.dispatcher.Dispatch(mailer.Message{
			Org:           org,
			To:            email,
			Name:          r.resolver.Cell(row, info.Map, schema.FieldName),
			Token:         cred.Token,
			RedemptionURL: cred.RedemptionURL,
			Day1Events:    day1,
			Day2Events:    day2,
			Kind:          mailer.KindConfirmation,
		}, r.mailStatusWriter(sheetID, rowIndex))
		queued = true
	}

	r.logger.Info().
		Str("organization", string(org)).
		Int("row", rowIndex).
		Bool("email_queued", queued).
		Msg("Row credentialed")

	return &models.ProcessedRow{
		RowIndex:     rowIndex,
		Organization: org,
		EmailQueued:  queued,
	}, nil
}

// mailStatusWriter returns the delivery callback that records YES/NO in the
// mail-status cell. It runs detached from the cycle context; the write is
// best effort and a failure leaves the cell at PENDING for operator
// follow-up.
func (r *Reconciler) mailStatusWriter(sheetID string, rowIndex int) func(sent bool) {
	return func(sent bool) {
		status := models.MailSent
		if !sent {
			status = models.MailFailed
		}

		ctx, cancel := context.WithTimeout(context.Background(), r.config.WriteBackTimeout)
		defer cancel()

		err := r.store.WriteFields(ctx, sheetID, rowIndex, map[schema.Field]string{
			schema.FieldMailSent: string(status),
		})
		if err != nil {
			r.logger.Error().
				Err(err).
				Int("row", rowIndex).
				Str("status", string(status)).
				Msg("Failed to record mail status")
		}
	}
}
