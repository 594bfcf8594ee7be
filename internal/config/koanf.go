// Gatekeeper - Event Registration Check-in Pipeline
// Copyright 2026 Texperia Tech Team
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/texperia/gatekeeper

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists where config files are searched, in order. The
// first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/gatekeeper/config.yaml",
	"/etc/gatekeeper/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// Load loads configuration using Koanf v2 with layered sources:
//  1. Built-in defaults
//  2. Optional YAML config file
//  3. Environment variables (highest priority)
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// findConfigFile returns the first config file that exists, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths are parsed from comma-separated env strings into slices.
var sliceConfigPaths = []string{
	"security.cors_origins",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}

		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envTransformFunc maps environment variable names to config paths. Unmapped
// variables are dropped so random environment noise never pollutes config.
func envTransformFunc(key string) string {
	envMappings := map[string]string{
		// Server
		"port":           "server.port",
		"http_host":      "server.host",
		"base_url":       "server.base_url",
		"http_timeout":   "server.timeout",
		"shutdown_grace": "server.shutdown_grace",

		// Sheets
		"google_application_credentials": "sheets.credentials_file",
		"cs_sheet_id":                    "sheets.cs_spreadsheet_id",
		"ncs_sheet_id":                   "sheets.ncs_spreadsheet_id",
		"sheet_tab_name":                 "sheets.tab_name",
		"header_cache_ttl":               "sheets.header_cache_ttl",
		"sheets_requests_per_second":     "sheets.requests_per_second",

		// Reconciliation
		"reconcile_interval":      "reconcile.interval",
		"reconcile_initial_delay": "reconcile.initial_delay",
		"reconcile_cycle_timeout": "reconcile.cycle_timeout",

		// Mail
		"smtp_host":             "mail.host",
		"smtp_port":             "mail.port",
		"smtp_use_tls":          "mail.use_tls",
		"smtp_timeout":          "mail.timeout",
		"mail_dispatch_timeout": "mail.dispatch_timeout",
		"mail_from_name":        "mail.from_name",
		"cs_email_user":         "mail.cs.user",
		"cs_email_pass":         "mail.cs.password",
		"ncs_email_user":        "mail.ncs.user",
		"ncs_email_pass":        "mail.ncs.password",

		// Security
		"cors_origins":      "security.cors_origins",
		"scan_rate_limit":   "security.scan_rate_limit",
		"rate_limit_window": "security.rate_limit_window",

		// Logging
		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",
	}

	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}
	return ""
}
