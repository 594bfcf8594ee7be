// Gatekeeper - Event Registration Check-in Pipeline
// Copyright 2026 Texperia Tech Team
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/texperia/gatekeeper

// Package config loads and validates the service configuration from layered
// sources: built-in defaults, an optional YAML file, and environment
// variables, in ascending precedence.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/texperia/gatekeeper/internal/models"
	"github.com/texperia/gatekeeper/internal/schema"
)

// Config is the root configuration.
type Config struct {
	Server    ServerConfig        `koanf:"server"`
	Sheets    SheetsConfig        `koanf:"sheets"`
	Reconcile ReconcileConfig     `koanf:"reconcile"`
	Mail      MailConfig          `koanf:"mail"`
	Security  SecurityConfig      `koanf:"security"`
	Logging   LoggingConfig       `koanf:"logging"`
	Aliases   map[string][]string `koanf:"aliases"`
}

// ServerConfig holds the HTTP server settings.
type ServerConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`

	// BaseURL is the public origin of this service, used to build the
	// redemption URLs embedded in QR codes and emails.
	BaseURL string `koanf:"base_url"`

	Timeout time.Duration `koanf:"timeout"`

	// ShutdownGrace bounds graceful shutdown before in-flight work is
	// abandoned.
	ShutdownGrace time.Duration `koanf:"shutdown_grace"`
}

// SheetsConfig holds the remote tabular store settings.
type SheetsConfig struct {
	// CredentialsFile is the Google service-account key path. Empty falls
	// back to $GOOGLE_APPLICATION_CREDENTIALS, then ./credentials.json.
	CredentialsFile string `koanf:"credentials_file"`

	// CSSpreadsheetID and NCSSpreadsheetID are the two organization sheets.
	CSSpreadsheetID  string `koanf:"cs_spreadsheet_id"`
	NCSSpreadsheetID string `koanf:"ncs_spreadsheet_id"`

	TabName           string        `koanf:"tab_name"`
	HeaderCacheTTL    time.Duration `koanf:"header_cache_ttl"`
	RequestsPerSecond float64       `koanf:"requests_per_second"`
}

// ReconcileConfig holds the credentialing loop cadence.
type ReconcileConfig struct {
	Interval         time.Duration `koanf:"interval"`
	InitialDelay     time.Duration `koanf:"initial_delay"`
	CycleTimeout     time.Duration `koanf:"cycle_timeout"`
	WriteBackTimeout time.Duration `koanf:"write_back_timeout"`
}

// MailIdentity is one organization's sender mailbox.
type MailIdentity struct {
	User     string `koanf:"user"`
	Password string `koanf:"password"`
}

// MailConfig holds the SMTP settings and per-organization identities.
type MailConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	UseTLS          bool          `koanf:"use_tls"`
	Timeout         time.Duration `koanf:"timeout"`
	DispatchTimeout time.Duration `koanf:"dispatch_timeout"`
	FromName        string        `koanf:"from_name"`

	CS  MailIdentity `koanf:"cs"`
	NCS MailIdentity `koanf:"ncs"`
}

// SecurityConfig holds the HTTP hardening settings.
type SecurityConfig struct {
	CORSOrigins     []string      `koanf:"cors_origins"`
	ScanRateLimit   int           `koanf:"scan_rate_limit"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
}

// LoggingConfig holds the logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// defaultConfig returns the built-in defaults, overridden by file and env.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:          "0.0.0.0",
			Port:          3000,
			BaseURL:       "",
			Timeout:       30 * time.Second,
			ShutdownGrace: 10 * time.Second,
		},
		Sheets: SheetsConfig{
			CredentialsFile:   "",
			TabName:           "Form Responses 1",
			HeaderCacheTTL:    5 * time.Minute,
			RequestsPerSecond: 1,
		},
		Reconcile: ReconcileConfig{
			Interval:         10 * time.Second,
			InitialDelay:     2 * time.Second,
			CycleTimeout:     5 * time.Minute,
			WriteBackTimeout: 30 * time.Second,
		},
		Mail: MailConfig{
			Host:            "smtp.gmail.com",
			Port:            587,
			UseTLS:          true,
			Timeout:         30 * time.Second,
			DispatchTimeout: time.Minute,
			FromName:        "Texperia 2026",
		},
		Security: SecurityConfig{
			CORSOrigins:     []string{},
			ScanRateLimit:   120,
			RateLimitWindow: time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Validate checks the configuration for operability.
func (c *Config) Validate() error {
	var problems []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("server.port %d is out of range", c.Server.Port))
	}
	if c.Server.BaseURL == "" {
		problems = append(problems, "server.base_url is required (public origin for QR redemption URLs)")
	}
	if c.Sheets.CSSpreadsheetID == "" {
		problems = append(problems, "sheets.cs_spreadsheet_id is required")
	}
	if c.Sheets.NCSSpreadsheetID == "" {
		problems = append(problems, "sheets.ncs_spreadsheet_id is required")
	}
	if c.Reconcile.Interval < time.Second {
		problems = append(problems, "reconcile.interval must be at least 1s")
	}
	for org, id := range map[string]MailIdentity{"cs": c.Mail.CS, "ncs": c.Mail.NCS} {
		if (id.User == "") != (id.Password == "") {
			problems = append(problems, fmt.Sprintf("mail.%s requires both user and password, or neither", org))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// SheetMap returns the organization-to-spreadsheet routing table.
func (c *Config) SheetMap() map[models.Organization]string {
	return map[models.Organization]string{
		models.OrgCS:  c.Sheets.CSSpreadsheetID,
		models.OrgNCS: c.Sheets.NCSSpreadsheetID,
	}
}

// AliasTable returns the schema alias table: the built-in defaults with any
// configured per-field overrides applied on top.
func (c *Config) AliasTable() schema.AliasTable {
	table := schema.DefaultAliases()
	for field, aliases := range c.Aliases {
		if len(aliases) > 0 {
			table[schema.Field(field)] = aliases
		}
	}
	return table
}
