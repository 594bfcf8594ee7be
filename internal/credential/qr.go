// Gatekeeper - Event Registration Check-in Pipeline
// Copyright 2026 Texperia Tech Team
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/texperia/gatekeeper

package credential

import (
	qrcode "github.com/skip2/go-qrcode"
)

// DefaultQRSize is the rendered QR edge length in pixels.
const DefaultQRSize = 256

// QRPNG renders the redemption URL as a PNG QR code. Medium error
// correction survives the print-and-rescan cycle of a paper badge.
func QRPNG(redemptionURL string, size int) ([]byte, error) {
	if size <= 0 {
		size = DefaultQRSize
	}
	return qrcode.Encode(redemptionURL, qrcode.Medium, size)
}
