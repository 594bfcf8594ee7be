// Gatekeeper - Event Registration Check-in Pipeline
// Copyright 2026 Texperia Tech Team
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/texperia/gatekeeper

package schema

// Field is the logical role a spreadsheet column plays, independent of its
// literal header text.
type Field string

// Logical fields of the registration sheet.
const (
	FieldName               Field = "name"
	FieldEmail              Field = "email"
	FieldPaymentStatus      Field = "paymentStatus"
	FieldToken              Field = "token"
	FieldTimestamp          Field = "timestamp"
	FieldAttendance         Field = "attendance"
	FieldMailSent           Field = "mailSent"
	FieldTokenGeneratedTime Field = "tokenGeneratedTime"
	FieldQRLink             Field = "qrLink"
)

// Marker keys for the day-event header classifier. Unlike the fields above
// these are matched by substring containment, not header equality.
const (
	MarkerDay1 Field = "day1"
	MarkerDay2 Field = "day2"
)

// AliasTable maps each logical field to its acceptable literal header
// spellings, in priority order. The table is static configuration: loaded
// once at startup, append-only, never derived at runtime.
type AliasTable map[Field][]string

// DefaultAliases returns the built-in alias table. The spellings cover the
// form's literal prompt text first, then progressively more generic headers,
// so a hand-edited sheet keeps resolving as long as one spelling survives.
func DefaultAliases() AliasTable {
	return AliasTable{
		FieldName: {
			"Name of the Student :",
			"Name of the Student",
			"Student Name",
			"Name",
			"Full Name",
			"Participant Name",
		},
		FieldEmail: {
			"Email ID:",
			"Email ID",
			"Student Email",
			"Email Address",
			"Email",
			"E-mail",
			"Mail",
		},
		FieldPaymentStatus: {
			"Payment status",
			"Payment Status",
			"Status",
			"Payment",
		},
		FieldToken: {
			"Token",
			"Registration Token",
			"Unique Token",
		},
		FieldTimestamp: {
			"Timestamp",
			"Time Stamp",
			"Submission Time",
			"Date",
			"Submitted At",
		},
		FieldAttendance: {
			"Attendance",
			"Present",
			"Attendance Status",
			"Check-in",
		},
		FieldMailSent: {
			"Mail_Sent",
			"Mail Sent",
			"Email Sent",
			"Confirmation Sent",
		},
		FieldTokenGeneratedTime: {
			"Token_Generated_Time",
			"Token Generated Time",
			"Token Time",
			"Generated Time",
		},
		FieldQRLink: {
			"QR_Link",
			"QR Link",
			"QR Code",
			"Scan Link",
		},
		MarkerDay1: {
			"day 1",
			"day1",
			"day_1",
			"first day",
		},
		MarkerDay2: {
			"day 2",
			"day2",
			"day_2",
			"second day",
		},
	}
}
