// Gatekeeper - Event Registration Check-in Pipeline
// Copyright 2026 Texperia Tech Team
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/texperia/gatekeeper

package services

import (
	"context"
	"fmt"
)

// Loop matches the reconciler's lifecycle methods.
type Loop interface {
	Start(ctx context.Context) error
	Stop() error
}

// ReconcilerService runs the credentialing loop under supervision. The loop
// manages its own goroutine, so Serve just starts it, parks on the context,
// and stops it on the way out.
type ReconcilerService struct {
	loop Loop
}

// NewReconcilerService wraps the credentialing loop for supervision.
func NewReconcilerService(loop Loop) *ReconcilerService {
	return &ReconcilerService{loop: loop}
}

// Serve implements suture.Service.
func (s *ReconcilerService) Serve(ctx context.Context) error {
	if err := s.loop.Start(ctx); err != nil {
		return fmt.Errorf("reconciler start failed: %w", err)
	}

	<-ctx.Done()

	if err := s.loop.Stop(); err != nil {
		return fmt.Errorf("reconciler stop failed: %w", err)
	}
	return ctx.Err()
}

// String identifies the service in supervisor logs.
func (s *ReconcilerService) String() string {
	return "reconciler"
}
