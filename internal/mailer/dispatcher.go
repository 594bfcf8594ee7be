// Gatekeeper - Event Registration Check-in Pipeline
// Copyright 2026 Texperia Tech Team
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/texperia/gatekeeper

package mailer

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/texperia/gatekeeper/internal/metrics"
)

// Dispatcher queues messages for asynchronous delivery. Callers never block
// on SMTP; the outcome is reported through the onDone callback, which the
// reconciliation loop uses to write the final mail status back to the sheet.
type Dispatcher struct {
	sender  Sender
	timeout time.Duration
	logger  zerolog.Logger

	wg sync.WaitGroup
}

// NewDispatcher creates a Dispatcher. timeout bounds each delivery attempt.
func NewDispatcher(sender Sender, timeout time.Duration, logger *zerolog.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &Dispatcher{
		sender:  sender,
		timeout: timeout,
		logger:  logger.With().Str("component", "dispatcher").Logger(),
	}
}

// Dispatch queues one message and returns immediately. onDone receives the
// delivery outcome; it may be nil. Delivery runs under its own deadline,
// detached from the caller's context, so an ending reconciliation cycle
// never cancels an in-flight send.
func (d *Dispatcher) Dispatch(msg Message, onDone func(sent bool)) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		err := d.sender.Send(ctx, msg)
		if err != nil {
			metrics.Emails.WithLabelValues(string(msg.Kind), "failed").Inc()
		} else {
			metrics.Emails.WithLabelValues(string(msg.Kind), "sent").Inc()
		}

		if onDone != nil {
			onDone(err == nil)
		}
	}()
}

// Wait blocks until every queued delivery has resolved. Called on shutdown
// so accepted emails are not abandoned mid-send.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
