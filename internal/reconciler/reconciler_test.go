// Gatekeeper - Event Registration Check-in Pipeline
// Copyright 2026 Texperia Tech Team
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/texperia/gatekeeper

package reconciler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/texperia/gatekeeper/internal/credential"
	"github.com/texperia/gatekeeper/internal/mailer"
	"github.com/texperia/gatekeeper/internal/models"
	"github.com/texperia/gatekeeper/internal/schema"
)

var testHeaders = []string{
	"Timestamp",
	"Name of the Student :",
	"Email ID:",
	"Payment status",
	"Token",
	"Mail_Sent",
	"Token_Generated_Time",
	"QR_Link",
	"Event Choice (Day 1)",
	"Event Choice (Day 2)",
}

// fakeStore is an in-memory Store. Writes resolve logical fields against the
// sheet headers exactly like the real accessor.
type fakeStore struct {
	mu       sync.Mutex
	resolver *schema.Resolver
	headers  []string

	// rows[sheetID][i] is sheet row i+2.
	rows map[string][][]string

	writeErr  map[int]error // rowIndex -> injected write failure
	onReadAll func()        // called with the lock released
	onReadRow func(rowIndex int)
}

func newFakeStore(rows map[string][][]string) *fakeStore {
	return &fakeStore{
		resolver: schema.NewResolver(nil),
		headers:  testHeaders,
		rows:     rows,
		writeErr: make(map[int]error),
	}
}

func (f *fakeStore) HeaderInfo(_ context.Context, _ string) (*schema.HeaderInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &schema.HeaderInfo{Headers: f.headers, Map: schema.BuildHeaderMap(f.headers)}, nil
}

func (f *fakeStore) ReadAll(_ context.Context, sheetID string) ([][]string, error) {
	if f.onReadAll != nil {
		f.onReadAll()
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	out := [][]string{append([]string(nil), f.headers...)}
	for _, row := range f.rows[sheetID] {
		out = append(out, append([]string(nil), row...))
	}
	return out, nil
}

func (f *fakeStore) ReadRow(_ context.Context, sheetID string, rowIndex, _ int) ([]string, error) {
	if f.onReadRow != nil {
		f.onReadRow(rowIndex)
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	data := f.rows[sheetID]
	i := rowIndex - 2
	if i < 0 || i >= len(data) {
		return nil, nil
	}
	return append([]string(nil), data[i]...), nil
}

func (f *fakeStore) WriteFields(_ context.Context, sheetID string, rowIndex int, updates map[schema.Field]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.writeErr[rowIndex]; err != nil {
		return err
	}

	headerMap := schema.BuildHeaderMap(f.headers)
	row := f.rows[sheetID][rowIndex-2]
	for field, value := range updates {
		idx, ok := f.resolver.Resolve(headerMap, field)
		if !ok {
			continue
		}
		for len(row) <= idx {
			row = append(row, "")
		}
		row[idx] = value
	}
	f.rows[sheetID][rowIndex-2] = row
	return nil
}

func (f *fakeStore) cell(sheetID string, rowIndex int, field schema.Field) string {
	f.mu.Lock()
	defer f.mu.Unlock()

	headerMap := schema.BuildHeaderMap(f.headers)
	return f.resolver.Cell(f.rows[sheetID][rowIndex-2], headerMap, field)
}

// fakeDispatcher resolves deliveries synchronously with a fixed outcome.
type fakeDispatcher struct {
	mu      sync.Mutex
	sent    []mailer.Message
	outcome bool
}

func (f *fakeDispatcher) Dispatch(msg mailer.Message, onDone func(sent bool)) {
	f.mu.Lock()
	f.sent = append(f.sent, msg)
	f.mu.Unlock()
	if onDone != nil {
		onDone(f.outcome)
	}
}

func (f *fakeDispatcher) messages() []mailer.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]mailer.Message(nil), f.sent...)
}

func row(timestamp, name, email, payment, token string, extra ...string) []string {
	r := []string{timestamp, name, email, payment, token, "", "", ""}
	return append(r, extra...)
}

func newTestReconciler(store Store, dispatcher Dispatcher, sheets map[models.Organization]string) *Reconciler {
	logger := zerolog.Nop()
	cfg := DefaultConfig()
	cfg.Sheets = sheets
	return New(
		store,
		schema.NewResolver(nil),
		credential.NewIssuer("https://checkin.example.com"),
		dispatcher,
		&logger,
		cfg,
	)
}

func TestRunCycleCredentialsEligibleRows(t *testing.T) {
	store := newFakeStore(map[string][][]string{
		"cs-sheet": {
			row("1/10/2026 10:00", "Ada", "ada@example.com", "APPROVED", "", "Robotics", "Hackathon"),
			row("1/10/2026 10:05", "Bob", "bob@example.com", "pending", ""),
			row("1/10/2026 10:10", "Cyd", "cyd@example.com", "APPROVED", "CS-1b4e28ba-2fa1-11d2-883f-0016d3cca427"),
			row("", "", "", "", ""),
		},
	})
	dispatcher := &fakeDispatcher{outcome: true}
	rec := newTestReconciler(store, dispatcher, map[models.Organization]string{
		models.OrgCS: "cs-sheet",
	})

	summary, err := rec.RunCycle(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, summary.Total())

	processed := summary.Processed[models.OrgCS]
	require.Len(t, processed, 1)
	assert.Equal(t, 2, processed[0].RowIndex)
	assert.True(t, processed[0].EmailQueued)

	token := store.cell("cs-sheet", 2, schema.FieldToken)
	assert.True(t, credential.Valid(token), "written token %q must validate", token)
	org, _ := credential.OrgFromToken(token)
	assert.Equal(t, models.OrgCS, org)

	assert.Contains(t, store.cell("cs-sheet", 2, schema.FieldQRLink), "/scan?token="+token)
	assert.NotEmpty(t, store.cell("cs-sheet", 2, schema.FieldTokenGeneratedTime))

	// Synchronous fake delivery resolved before RunCycle returned.
	assert.Equal(t, string(models.MailSent), store.cell("cs-sheet", 2, schema.FieldMailSent))

	msgs := dispatcher.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "ada@example.com", msgs[0].To)
	assert.Equal(t, mailer.KindConfirmation, msgs[0].Kind)
	assert.Equal(t, []string{"Robotics"}, msgs[0].Day1Events)
	assert.Equal(t, []string{"Hackathon"}, msgs[0].Day2Events)

	// Ineligible rows untouched.
	assert.Empty(t, store.cell("cs-sheet", 3, schema.FieldToken))
	assert.Equal(t, "CS-1b4e28ba-2fa1-11d2-883f-0016d3cca427", store.cell("cs-sheet", 4, schema.FieldToken))
}

func TestRunCycleIsIdempotent(t *testing.T) {
	store := newFakeStore(map[string][][]string{
		"cs-sheet": {
			row("1/10/2026 10:00", "Ada", "ada@example.com", "APPROVED", ""),
		},
	})
	dispatcher := &fakeDispatcher{outcome: true}
	rec := newTestReconciler(store, dispatcher, map[models.Organization]string{
		models.OrgCS: "cs-sheet",
	})

	first, err := rec.RunCycle(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, first.Total())
	token := store.cell("cs-sheet", 2, schema.FieldToken)

	second, err := rec.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, second.Total())
	assert.Equal(t, token, store.cell("cs-sheet", 2, schema.FieldToken))
	assert.Len(t, dispatcher.messages(), 1)
}

func TestRunCycleWritesNoEmailMarker(t *testing.T) {
	store := newFakeStore(map[string][][]string{
		"ncs-sheet": {
			row("1/10/2026 10:00", "Ada", "", "APPROVED", ""),
		},
	})
	dispatcher := &fakeDispatcher{outcome: true}
	rec := newTestReconciler(store, dispatcher, map[models.Organization]string{
		models.OrgNCS: "ncs-sheet",
	})

	summary, err := rec.RunCycle(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, summary.Total())
	assert.False(t, summary.Processed[models.OrgNCS][0].EmailQueued)

	assert.True(t, credential.Valid(store.cell("ncs-sheet", 2, schema.FieldToken)))
	assert.Equal(t, string(models.MailNoAddress), store.cell("ncs-sheet", 2, schema.FieldMailSent))
	assert.Empty(t, dispatcher.messages())
}

func TestRunCycleRecordsFailedDelivery(t *testing.T) {
	store := newFakeStore(map[string][][]string{
		"cs-sheet": {
			row("1/10/2026 10:00", "Ada", "ada@example.com", "APPROVED", ""),
		},
	})
	dispatcher := &fakeDispatcher{outcome: false}
	rec := newTestReconciler(store, dispatcher, map[models.Organization]string{
		models.OrgCS: "cs-sheet",
	})

	_, err := rec.RunCycle(context.Background())
	require.NoError(t, err)

	// Token stays; only the mail status records the failure.
	assert.True(t, credential.Valid(store.cell("cs-sheet", 2, schema.FieldToken)))
	assert.Equal(t, string(models.MailFailed), store.cell("cs-sheet", 2, schema.FieldMailSent))
}

func TestRunCycleSkipsRowCredentialedSinceScan(t *testing.T) {
	store := newFakeStore(map[string][][]string{
		"cs-sheet": {
			row("1/10/2026 10:00", "Ada", "ada@example.com", "APPROVED", ""),
		},
	})
	// Another writer fills the token between the bulk scan and the re-read.
	store.onReadRow = func(rowIndex int) {
		store.mu.Lock()
		defer store.mu.Unlock()
		store.rows["cs-sheet"][rowIndex-2][4] = "CS-1b4e28ba-2fa1-11d2-883f-0016d3cca427"
	}
	dispatcher := &fakeDispatcher{outcome: true}
	rec := newTestReconciler(store, dispatcher, map[models.Organization]string{
		models.OrgCS: "cs-sheet",
	})

	summary, err := rec.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Total())
	assert.Equal(t, "CS-1b4e28ba-2fa1-11d2-883f-0016d3cca427", store.cell("cs-sheet", 2, schema.FieldToken))
	assert.Empty(t, dispatcher.messages())
}

func TestRunCycleIsolatesRowFailures(t *testing.T) {
	store := newFakeStore(map[string][][]string{
		"cs-sheet": {
			row("1/10/2026 10:00", "Ada", "ada@example.com", "APPROVED", ""),
			row("1/10/2026 10:05", "Bob", "bob@example.com", "APPROVED", ""),
		},
	})
	store.mu.Lock()
	store.writeErr[2] = errors.New("quota exceeded")
	store.mu.Unlock()

	dispatcher := &fakeDispatcher{outcome: true}
	rec := newTestReconciler(store, dispatcher, map[models.Organization]string{
		models.OrgCS: "cs-sheet",
	})

	summary, err := rec.RunCycle(context.Background())
	require.NoError(t, err)

	// Row 2 failed and stays pending; row 3 was still credentialed.
	require.Equal(t, 1, summary.Total())
	assert.Equal(t, 3, summary.Processed[models.OrgCS][0].RowIndex)
	assert.Empty(t, store.cell("cs-sheet", 2, schema.FieldToken))
	assert.True(t, credential.Valid(store.cell("cs-sheet", 3, schema.FieldToken)))
}

func TestRunCycleSingleFlight(t *testing.T) {
	store := newFakeStore(map[string][][]string{
		"cs-sheet": {
			row("1/10/2026 10:00", "Ada", "ada@example.com", "APPROVED", ""),
		},
	})

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	store.onReadAll = func() {
		once.Do(func() {
			close(entered)
			<-release
		})
	}

	dispatcher := &fakeDispatcher{outcome: true}
	rec := newTestReconciler(store, dispatcher, map[models.Organization]string{
		models.OrgCS: "cs-sheet",
	})

	done := make(chan error, 1)
	go func() {
		_, err := rec.RunCycle(context.Background())
		done <- err
	}()

	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("first cycle never started reading")
	}

	_, err := rec.RunCycle(context.Background())
	assert.ErrorIs(t, err, ErrCycleInFlight)

	close(release)
	require.NoError(t, <-done)
}

func TestStartStop(t *testing.T) {
	store := newFakeStore(map[string][][]string{"cs-sheet": {}})
	dispatcher := &fakeDispatcher{outcome: true}

	logger := zerolog.Nop()
	cfg := DefaultConfig()
	cfg.Interval = 10 * time.Millisecond
	cfg.InitialDelay = 0
	cfg.Sheets = map[models.Organization]string{models.OrgCS: "cs-sheet"}

	rec := New(store, schema.NewResolver(nil), credential.NewIssuer("https://checkin.example.com"),
		dispatcher, &logger, cfg)

	require.NoError(t, rec.Start(context.Background()))
	assert.Error(t, rec.Start(context.Background()), "second start must fail")
	assert.True(t, rec.IsRunning())

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, rec.Stop())
	assert.False(t, rec.IsRunning())

	// Stop is idempotent.
	require.NoError(t, rec.Stop())
}
