// Gatekeeper - Event Registration Check-in Pipeline
// Copyright 2026 Texperia Tech Team
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/texperia/gatekeeper

package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/thejerf/suture/v4"
)

type mockLoop struct {
	startErr   error
	stopErr    error
	startCount atomic.Int32
	stopCount  atomic.Int32
}

func (m *mockLoop) Start(_ context.Context) error {
	m.startCount.Add(1)
	return m.startErr
}

func (m *mockLoop) Stop() error {
	m.stopCount.Add(1)
	return m.stopErr
}

func TestReconcilerServiceImplementsSutureService(t *testing.T) {
	var _ suture.Service = (*ReconcilerService)(nil)
}

func TestReconcilerServiceLifecycle(t *testing.T) {
	loop := &mockLoop{}
	svc := NewReconcilerService(loop)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- svc.Serve(ctx)
	}()

	// Started, parked on the context.
	deadline := time.After(time.Second)
	for loop.startCount.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("loop was not started")
		case <-time.After(5 * time.Millisecond):
		}
	}
	if loop.stopCount.Load() != 0 {
		t.Fatal("loop stopped before cancellation")
	}

	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancellation")
	}

	if got := loop.stopCount.Load(); got != 1 {
		t.Errorf("expected 1 Stop call, got %d", got)
	}
}

func TestReconcilerServiceStartFailure(t *testing.T) {
	startErr := errors.New("already running")
	svc := NewReconcilerService(&mockLoop{startErr: startErr})

	err := svc.Serve(context.Background())
	if !errors.Is(err, startErr) {
		t.Errorf("expected start error, got %v", err)
	}
}

func TestReconcilerServiceStopFailure(t *testing.T) {
	stopErr := errors.New("stop failed")
	loop := &mockLoop{stopErr: stopErr}
	svc := NewReconcilerService(loop)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- svc.Serve(ctx)
	}()

	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, stopErr) {
			t.Errorf("expected stop error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
	}
}

func TestReconcilerServiceString(t *testing.T) {
	svc := NewReconcilerService(&mockLoop{})
	if svc.String() != "reconciler" {
		t.Errorf("expected 'reconciler', got %q", svc.String())
	}
}
