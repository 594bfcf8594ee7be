// Gatekeeper - Event Registration Check-in Pipeline
// Copyright 2026 Texperia Tech Team
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/texperia/gatekeeper

package redemption

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/texperia/gatekeeper/internal/mailer"
	"github.com/texperia/gatekeeper/internal/models"
	"github.com/texperia/gatekeeper/internal/schema"
)

const (
	csToken  = "CS-1b4e28ba-2fa1-11d2-883f-0016d3cca427"
	ncsToken = "NCS-6ba7b810-9dad-11d1-80b4-00c04fd430c8"
)

var testHeaders = []string{
	"Timestamp",
	"Name of the Student :",
	"Email ID:",
	"Payment status",
	"Token",
	"Attendance",
	"Event Choice (Day 1)",
	"Event Choice (Day 2)",
}

// fakeStore is an in-memory Store over the test header layout.
type fakeStore struct {
	mu       sync.Mutex
	resolver *schema.Resolver

	// rows[sheetID][i] is sheet row i+2.
	rows map[string][][]string

	writeDelay time.Duration
	writes     int
}

func newFakeStore(rows map[string][][]string) *fakeStore {
	return &fakeStore{
		resolver: schema.NewResolver(nil),
		rows:     rows,
	}
}

func (f *fakeStore) HeaderInfo(_ context.Context, _ string) (*schema.HeaderInfo, error) {
	return &schema.HeaderInfo{Headers: testHeaders, Map: schema.BuildHeaderMap(testHeaders)}, nil
}

func (f *fakeStore) ReadRow(_ context.Context, sheetID string, rowIndex, _ int) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data := f.rows[sheetID]
	i := rowIndex - 2
	if i < 0 || i >= len(data) {
		return nil, nil
	}
	return append([]string(nil), data[i]...), nil
}

func (f *fakeStore) ReadColumn(_ context.Context, sheetID, columnLetter string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	idx, err := schema.ColumnIndex(columnLetter)
	if err != nil {
		return nil, err
	}

	var out []string
	for _, row := range f.rows[sheetID] {
		if idx < len(row) {
			out = append(out, row[idx])
		} else {
			out = append(out, "")
		}
	}
	return out, nil
}

func (f *fakeStore) WriteFields(_ context.Context, sheetID string, rowIndex int, updates map[schema.Field]string) error {
	if f.writeDelay > 0 {
		time.Sleep(f.writeDelay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes++

	headerMap := schema.BuildHeaderMap(testHeaders)
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
	return f.resolver.Cell(f.rows[sheetID][rowIndex-2], schema.BuildHeaderMap(testHeaders), field)
}

type fakeDispatcher struct {
	mu   sync.Mutex
	sent []mailer.Message
}

func (f *fakeDispatcher) Dispatch(msg mailer.Message, onDone func(sent bool)) {
	f.mu.Lock()
	f.sent = append(f.sent, msg)
	f.mu.Unlock()
	if onDone != nil {
		onDone(true)
	}
}

func (f *fakeDispatcher) messages() []mailer.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]mailer.Message(nil), f.sent...)
}

func testSheets() map[models.Organization]string {
	return map[models.Organization]string{
		models.OrgCS:  "cs-sheet",
		models.OrgNCS: "ncs-sheet",
	}
}

func newTestEngine(store Store, dispatcher Dispatcher) *Engine {
	logger := zerolog.Nop()
	return New(store, schema.NewResolver(nil), dispatcher, testSheets(), &logger)
}

func defaultRows() map[string][][]string {
	return map[string][][]string{
		"cs-sheet": {
			{"1/10/2026 10:00", "Ada Lovelace", "ada@example.com", "APPROVED", csToken, "", "Robotics", "Hackathon"},
		},
		"ncs-sheet": {
			{"1/10/2026 11:00", "Bob", "bob@example.com", "APPROVED", ncsToken, "PRESENT"},
		},
	}
}

func TestRedeemMarksAttendance(t *testing.T) {
	store := newFakeStore(defaultRows())
	dispatcher := &fakeDispatcher{}
	engine := newTestEngine(store, dispatcher)

	result, err := engine.Redeem(context.Background(), csToken)
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, models.OrgCS, result.Organization)
	assert.Equal(t, 2, result.RowIndex)
	assert.Equal(t, "Ada Lovelace", result.Name)
	assert.Equal(t, []string{"Robotics"}, result.Day1Events)
	assert.Equal(t, []string{"Hackathon"}, result.Day2Events)
	assert.False(t, result.RedeemedAt.IsZero())

	assert.Equal(t, models.AttendancePresent, store.cell("cs-sheet", 2, schema.FieldAttendance))

	msgs := dispatcher.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, mailer.KindAttendance, msgs[0].Kind)
	assert.Equal(t, "ada@example.com", msgs[0].To)
}

func TestRedeemNormalizesPresentedToken(t *testing.T) {
	store := newFakeStore(defaultRows())
	engine := newTestEngine(store, &fakeDispatcher{})

	// Uppercase hex with surrounding whitespace still matches the stored cell.
	result, err := engine.Redeem(context.Background(), "  CS-1B4E28BA-2FA1-11D2-883F-0016D3CCA427 ")
	require.NoError(t, err)
	assert.Equal(t, 2, result.RowIndex)
}

func TestRedeemRejectsMalformedTokenLocally(t *testing.T) {
	store := newFakeStore(defaultRows())
	engine := newTestEngine(store, &fakeDispatcher{})

	tests := []string{
		"",
		"not-a-token",
		"XX-1b4e28ba-2fa1-11d2-883f-0016d3cca427",
		"CS-1b4e28ba",
	}
	for _, token := range tests {
		result, err := engine.Redeem(context.Background(), token)
		assert.ErrorIs(t, err, ErrInvalidFormat, "token %q", token)
		assert.Nil(t, result)
	}

	// No remote traffic for malformed tokens.
	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Zero(t, store.writes)
}

func TestRedeemUnknownToken(t *testing.T) {
	store := newFakeStore(defaultRows())
	engine := newTestEngine(store, &fakeDispatcher{})

	result, err := engine.Redeem(context.Background(), "CS-ffffffff-2fa1-11d2-883f-0016d3cca427")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Nil(t, result)
}

func TestRedeemAlreadyRedeemed(t *testing.T) {
	store := newFakeStore(defaultRows())
	dispatcher := &fakeDispatcher{}
	engine := newTestEngine(store, dispatcher)

	result, err := engine.Redeem(context.Background(), ncsToken)
	require.ErrorIs(t, err, ErrAlreadyRedeemed)

	// The result still names the registrant for the operator.
	require.NotNil(t, result)
	assert.Equal(t, "Bob", result.Name)
	assert.Empty(t, dispatcher.messages())
}

func TestRedeemIsSingleUse(t *testing.T) {
	store := newFakeStore(defaultRows())
	engine := newTestEngine(store, &fakeDispatcher{})

	_, err := engine.Redeem(context.Background(), csToken)
	require.NoError(t, err)

	_, err = engine.Redeem(context.Background(), csToken)
	assert.ErrorIs(t, err, ErrAlreadyRedeemed)
}

func TestConcurrentRedeemAdmitsOnce(t *testing.T) {
	store := newFakeStore(defaultRows())
	store.writeDelay = 10 * time.Millisecond
	engine := newTestEngine(store, &fakeDispatcher{})

	const attempts = 8
	results := make(chan error, attempts)

	var start sync.WaitGroup
	start.Add(1)
	for i := 0; i < attempts; i++ {
		go func() {
			start.Wait()
			_, err := engine.Redeem(context.Background(), csToken)
			results <- err
		}()
	}
	start.Done()

	var successes, rejections int
	for i := 0; i < attempts; i++ {
		switch err := <-results; {
		case err == nil:
			successes++
		default:
			require.ErrorIs(t, err, ErrAlreadyRedeemed)
			rejections++
		}
	}

	assert.Equal(t, 1, successes, "exactly one scan admits")
	assert.Equal(t, attempts-1, rejections)
}

func TestRedeemRoutesByPrefix(t *testing.T) {
	rows := defaultRows()
	// Clear the NCS attendance so both sheets have a redeemable row.
	rows["ncs-sheet"][0][5] = ""
	store := newFakeStore(rows)
	engine := newTestEngine(store, &fakeDispatcher{})

	result, err := engine.Redeem(context.Background(), ncsToken)
	require.NoError(t, err)
	assert.Equal(t, models.OrgNCS, result.Organization)
	assert.Equal(t, models.AttendancePresent, store.cell("ncs-sheet", 2, schema.FieldAttendance))

	// The CS sheet is untouched.
	assert.Empty(t, store.cell("cs-sheet", 2, schema.FieldAttendance))
}

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	km := newKeyedMutex()

	unlock := km.lock("a")
	acquired := make(chan struct{})
	go func() {
		u := km.lock("a")
		close(acquired)
		u()
	}()

	select {
	case <-acquired:
		t.Fatal("second holder acquired while first held the lock")
	case <-time.After(20 * time.Millisecond):
	}

	unlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second holder never acquired")
	}

	// Entries are reclaimed once released.
	km.mu.Lock()
	defer km.mu.Unlock()
	assert.Empty(t, km.locks)
}

func TestKeyedMutexIndependentKeys(t *testing.T) {
	km := newKeyedMutex()

	unlockA := km.lock("a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		u := km.lock("b")
		u()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("independent key blocked")
	}
}
