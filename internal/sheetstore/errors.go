// Gatekeeper - Event Registration Check-in Pipeline
// Copyright 2026 Texperia Tech Team
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/texperia/gatekeeper

package sheetstore

import "fmt"

// RemoteError wraps a failed call against the remote tabular store
// (network, quota, auth). It propagates to the immediate caller; inside the
// reconciliation loop's per-row processing it is caught and logged,
// degrading that row to retry-next-cycle.
type RemoteError struct {
	Op            string // read, write
	SpreadsheetID string
	Err           error
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("sheets %s failed for spreadsheet %s: %v", e.Op, e.SpreadsheetID, e.Err)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}
