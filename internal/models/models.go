// Gatekeeper - Event Registration Check-in Pipeline
// Copyright 2026 Texperia Tech Team
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/texperia/gatekeeper

// Package models holds the shared value types of the check-in pipeline:
// the organizations that issue credentials, the well-known cell values of
// the registration sheet, and the HTTP response envelope.
package models

import "time"

// Organization identifies which of the two independent sheets and mail
// identities a registration belongs to. It doubles as the token prefix.
type Organization string

const (
	// OrgCS is the computer-science stream.
	OrgCS Organization = "CS"

	// OrgNCS is the non-computer-science stream.
	OrgNCS Organization = "NCS"
)

// Valid reports whether o is one of the two known organizations.
func (o Organization) Valid() bool {
	return o == OrgCS || o == OrgNCS
}

// Well-known cell values. These are written to and compared against sheet
// cells verbatim (comparisons are done on trimmed, upper-cased copies).
const (
	// PaymentApproved marks a row whose payment an operator has approved.
	PaymentApproved = "APPROVED"

	// AttendancePresent is the terminal attendance state of a redeemed row.
	AttendancePresent = "PRESENT"
)

// MailStatus tracks the confirmation-email lifecycle of a row.
type MailStatus string

const (
	// MailPending is written together with the token, before the email
	// attempt starts. A row stuck at PENDING means the process died before
	// the send resolved; recovery is operator follow-up, not retry.
	MailPending MailStatus = "PENDING"

	// MailSent means the confirmation email was delivered.
	MailSent MailStatus = "YES"

	// MailFailed means the delivery attempt resolved with an error.
	MailFailed MailStatus = "NO"

	// MailNoAddress means the row has no email address to deliver to.
	MailNoAddress MailStatus = "NO_EMAIL"
)

// PendingRow is a data row that passed the credentialing eligibility filter
// during a bulk read. Index is the 1-based sheet row (row 1 is headers).
type PendingRow struct {
	Index int
	Row   []string
}

// ProcessedRow summarizes one successfully credentialed row.
type ProcessedRow struct {
	RowIndex     int          `json:"rowIndex"`
	Organization Organization `json:"organization"`
	EmailQueued  bool         `json:"emailQueued"`
}

// CycleSummary is the outcome of one reconciliation cycle across both sheets.
type CycleSummary struct {
	Processed map[Organization][]ProcessedRow `json:"processed"`
	Duration  time.Duration                   `json:"duration"`
}

// Total returns the number of rows credentialed in the cycle.
func (s CycleSummary) Total() int {
	n := 0
	for _, rows := range s.Processed {
		n += len(rows)
	}
	return n
}
