// Gatekeeper - Event Registration Check-in Pipeline
// Copyright 2026 Texperia Tech Team
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/texperia/gatekeeper

// Package credential mints and validates single-use check-in tokens.
//
// A token is the organization prefix joined to a random UUID, e.g.
// "CS-1b4e28ba-2fa1-11d2-883f-0016d3cca427". The prefix routes a later
// redemption to the right spreadsheet without a cross-sheet search, and the
// UUID body makes tokens unguessable. Tokens compare case-insensitively
// after trimming; the canonical stored form is lowercase.
package credential

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/texperia/gatekeeper/internal/models"
	"github.com/texperia/gatekeeper/internal/schema"
)

// tokenRe matches the full credential format: organization prefix, dash,
// UUID. Anchored on both ends so embedded or decorated tokens never pass.
var tokenRe = regexp.MustCompile(`(?i)^(CS|NCS)-[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

// Credential is one freshly minted token with its derived artifacts.
type Credential struct {
	Token         string
	RedemptionURL string
	GeneratedAt   string
}

// Issuer mints credentials and derives their redemption URLs.
type Issuer struct {
	baseURL string
	now     func() time.Time
}

// NewIssuer creates an Issuer. baseURL is the public origin of this service,
// without a trailing slash.
func NewIssuer(baseURL string) *Issuer {
	return &Issuer{
		baseURL: strings.TrimRight(baseURL, "/"),
		now:     time.Now,
	}
}

// Mint returns a new token for the organization.
func (i *Issuer) Mint(org models.Organization) string {
	return fmt.Sprintf("%s-%s", org, uuid.NewString())
}

// RedemptionURL returns the scan URL that redeems the token. The token is
// query-escaped; UUIDs do not need it but the URL must stay well-formed for
// any input.
func (i *Issuer) RedemptionURL(token string) string {
	return fmt.Sprintf("%s/scan?token=%s", i.baseURL, url.QueryEscape(token))
}

// Issue mints a credential with its redemption URL and generation timestamp.
// The timestamp is human-readable sheet content, not machine state; nothing
// parses it back.
func (i *Issuer) Issue(org models.Organization) Credential {
	token := i.Mint(org)
	return Credential{
		Token:         token,
		RedemptionURL: i.RedemptionURL(token),
		GeneratedAt:   i.now().Format("2006-01-02 15:04:05"),
	}
}

// Normalize trims a presented token. Matching is case-insensitive, so case
// is preserved here and ignored at comparison time.
func Normalize(token string) string {
	return strings.TrimSpace(token)
}

// Valid reports whether a presented string is a well-formed credential.
// Malformed input is rejected locally, before any remote lookup.
func Valid(token string) bool {
	return tokenRe.MatchString(Normalize(token))
}

// OrgFromToken returns the organization encoded in the token prefix. The
// second result is false for malformed tokens.
func OrgFromToken(token string) (models.Organization, bool) {
	token = Normalize(token)
	if !tokenRe.MatchString(token) {
		return "", false
	}
	prefix, _, _ := strings.Cut(token, "-")
	return models.Organization(strings.ToUpper(prefix)), true
}

// Equal compares a sheet cell against a presented token, trimmed and
// case-insensitive.
func Equal(cell, token string) bool {
	return strings.EqualFold(Normalize(cell), Normalize(token))
}

// ExtractEvents collects the registrant's chosen events from the day-event
// columns of a row. Columns are classified by their header's day marker; a
// non-empty cell under a day column is one chosen event, named by the cell
// text.
func ExtractEvents(resolver *schema.Resolver, info *schema.HeaderInfo, row []string) (day1, day2 []string) {
	for idx, header := range info.Headers {
		day, ok := resolver.DayType(header)
		if !ok || idx >= len(row) {
			continue
		}
		event := schema.Normalize(row[idx])
		if event == "" {
			continue
		}
		switch day {
		case schema.DayOne:
			day1 = append(day1, event)
		case schema.DayTwo:
			day2 = append(day2, event)
		}
	}
	return day1, day2
}
