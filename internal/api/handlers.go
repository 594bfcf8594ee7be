// Gatekeeper - Event Registration Check-in Pipeline
// Copyright 2026 Texperia Tech Team
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/texperia/gatekeeper

package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/texperia/gatekeeper/internal/credential"
	"github.com/texperia/gatekeeper/internal/logging"
	"github.com/texperia/gatekeeper/internal/models"
	"github.com/texperia/gatekeeper/internal/redemption"
	"github.com/texperia/gatekeeper/internal/schema"
	"github.com/texperia/gatekeeper/internal/validation"
)

// Redeemer consumes a presented token.
type Redeemer interface {
	Redeem(ctx context.Context, token string) (*redemption.Result, error)
}

// CycleRunner triggers one reconciliation pass on demand.
type CycleRunner interface {
	RunCycle(ctx context.Context) (models.CycleSummary, error)
}

// HeaderReader is the diagnostic slice of the store accessor.
type HeaderReader interface {
	HeaderInfo(ctx context.Context, spreadsheetID string) (*schema.HeaderInfo, error)
}

// Handler serves the HTTP endpoints.
type Handler struct {
	redeemer   Redeemer
	reconciler CycleRunner
	store      HeaderReader
	issuer     *credential.Issuer
	sheets     map[models.Organization]string
	version    string
	startTime  time.Time
}

// NewHandler creates a Handler.
func NewHandler(
	redeemer Redeemer,
	reconciler CycleRunner,
	store HeaderReader,
	issuer *credential.Issuer,
	sheets map[models.Organization]string,
	version string,
) *Handler {
	return &Handler{
		redeemer:   redeemer,
		reconciler: reconciler,
		store:      store,
		issuer:     issuer,
		sheets:     sheets,
		version:    version,
		startTime:  time.Now(),
	}
}

// ScanRequest is the POST /scan request body. The token may also arrive as
// the "token" query parameter; the body wins when both are present.
type ScanRequest struct {
	Token string `json:"token" validate:"required"`
}

// Scan handles POST /scan: redeem a token and record attendance.
func (h *Handler) Scan(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req ScanRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			rw.BadRequest("Request body must be JSON")
			return
		}
	}
	if req.Token == "" {
		req.Token = r.URL.Query().Get("token")
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		rw.ValidationError("Invalid scan request", verr.Messages())
		return
	}

	result, err := h.redeemer.Redeem(r.Context(), req.Token)
	switch {
	case err == nil:
		rw.Success(result)
	case errors.Is(err, redemption.ErrInvalidFormat):
		rw.Error(http.StatusBadRequest, ErrCodeInvalidToken, "Token format is invalid")
	case errors.Is(err, redemption.ErrNotFound):
		// 400, not 404: the route exists, the presented token does not. The
		// distinct code lets the desk UI tell the two apart.
		rw.Error(http.StatusBadRequest, ErrCodeTokenNotFound, "Token not found")
	case errors.Is(err, redemption.ErrAlreadyRedeemed):
		rw.ErrorWithDetails(http.StatusConflict, ErrCodeAlreadyRedeemed,
			"Token has already been redeemed", result)
	default:
		logging.Ctx(r.Context()).Error().Err(err).Msg("Redemption failed")
		rw.InternalError("Redemption failed")
	}
}

// ScanQR handles GET /scan?token=...: render the token's redemption URL as
// a PNG QR code. This is the image the confirmation email embeds.
func (h *Handler) ScanQR(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	token := credential.Normalize(r.URL.Query().Get("token"))
	if !credential.Valid(token) {
		rw.Error(http.StatusBadRequest, ErrCodeInvalidToken, "Token format is invalid")
		return
	}

	png, err := credential.QRPNG(h.issuer.RedemptionURL(token), credential.DefaultQRSize)
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("QR encoding failed")
		rw.InternalError("Failed to render QR code")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "private, max-age=86400")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

// Reconcile handles POST /reconcile: trigger one cycle outside the normal
// cadence, typically after a bulk payment approval.
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	summary, err := h.reconciler.RunCycle(r.Context())
	if err != nil {
		rw.Conflict("A reconciliation cycle is already in flight")
		return
	}
	rw.Success(summary)
}

// healthResponse is the GET /health payload.
type healthResponse struct {
	Status        string  `json:"status"`
	Version       string  `json:"version,omitempty"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(healthResponse{
		Status:        "ok",
		Version:       h.version,
		UptimeSeconds: time.Since(h.startTime).Seconds(),
	})
}

// sheetDiagnostics is the per-sheet payload of GET /test-connection.
type sheetDiagnostics struct {
	SpreadsheetID string   `json:"spreadsheetId"`
	Headers       []string `json:"headers"`
}

// TestConnection handles GET /test-connection: read the header row of every
// configured sheet to prove credentials and spreadsheet IDs work.
func (h *Handler) TestConnection(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	result := make(map[models.Organization]sheetDiagnostics, len(h.sheets))
	for org, sheetID := range h.sheets {
		info, err := h.store.HeaderInfo(r.Context(), sheetID)
		if err != nil {
			rw.ExternalServiceError("sheets", err)
			return
		}
		result[org] = sheetDiagnostics{
			SpreadsheetID: sheetID,
			Headers:       info.Headers,
		}
	}
	rw.Success(result)
}
