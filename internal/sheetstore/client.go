// Gatekeeper - Event Registration Check-in Pipeline
// Copyright 2026 Texperia Tech Team
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/texperia/gatekeeper

package sheetstore

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// CellUpdate addresses one cell (A1 notation, including the tab name) and
// the value to write into it.
type CellUpdate struct {
	Range string
	Value string
}

// API is the minimal surface of the remote tabular store. The concrete
// implementation talks to the Google Sheets v4 API; tests substitute an
// in-memory fake.
type API interface {
	// Get reads a range and returns its rows. A1 ranges addressing empty
	// areas yield zero rows, not an error.
	Get(ctx context.Context, spreadsheetID, readRange string) ([][]interface{}, error)

	// BatchUpdate writes several cells in one request. Values are written
	// with USER_ENTERED semantics, so the sheet interprets formulas and
	// types the way a typing user would.
	BatchUpdate(ctx context.Context, spreadsheetID string, updates []CellUpdate) error
}

// googleAPI implements API over the Google Sheets service.
type googleAPI struct {
	srv *sheets.Service
}

// NewGoogleAPI builds the Sheets v4 client from a service-account key file.
// The path defaults to $GOOGLE_APPLICATION_CREDENTIALS, then
// credentials.json in the working directory.
func NewGoogleAPI(ctx context.Context, credentialsFile string) (API, error) {
	if credentialsFile == "" {
		credentialsFile = os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")
	}
	if credentialsFile == "" {
		credentialsFile = "credentials.json"
	}

	b, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read service account key %s: %w", credentialsFile, err)
	}

	jwtConfig, err := google.JWTConfigFromJSON(b, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse service account key: %w", err)
	}

	srv, err := sheets.NewService(ctx, option.WithHTTPClient(jwtConfig.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("unable to create sheets service: %w", err)
	}

	return &googleAPI{srv: srv}, nil
}

func (g *googleAPI) Get(ctx context.Context, spreadsheetID, readRange string) ([][]interface{}, error) {
	resp, err := g.srv.Spreadsheets.Values.Get(spreadsheetID, readRange).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	return resp.Values, nil
}

func (g *googleAPI) BatchUpdate(ctx context.Context, spreadsheetID string, updates []CellUpdate) error {
	data := make([]*sheets.ValueRange, 0, len(updates))
	for _, u := range updates {
		data = append(data, &sheets.ValueRange{
			Range:  u.Range,
			Values: [][]interface{}{{u.Value}},
		})
	}

	req := &sheets.BatchUpdateValuesRequest{
		ValueInputOption: "USER_ENTERED",
		Data:             data,
	}
	_, err := g.srv.Spreadsheets.Values.BatchUpdate(spreadsheetID, req).Context(ctx).Do()
	return err
}
