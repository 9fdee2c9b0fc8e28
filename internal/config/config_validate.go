// Vulnsync - Distributed Vulnerability Intelligence Synchronization
// Copyright 2026 Kestrel Security
// SPDX-License-Identifier: Apache-2.0
// https://github.com/kestrelsec/vulnsync

package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// maxResultsPerPage is the largest page size the NVD API accepts.
const maxResultsPerPage = 2000

// maxWindowDays is the longest date range the NVD API accepts per query.
const maxWindowDays = 120

// Validate checks that required configuration is present and valid.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateDatabase(); err != nil {
		return err
	}
	if err := c.validateNVD(); err != nil {
		return err
	}
	if err := c.validateSync(); err != nil {
		return err
	}
	if err := c.validateGitHub(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	return nil
}

func (c *Config) validateDatabase() error {
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required (VULNSYNC_DATABASE__DSN)")
	}
	if c.Database.MaxConns < 0 {
		return fmt.Errorf("database.max_conns must not be negative, got %d", c.Database.MaxConns)
	}
	return nil
}

func (c *Config) validateNVD() error {
	if err := validateHTTPURL(c.NVD.BaseURL, "nvd.base_url"); err != nil {
		return err
	}
	if c.NVD.ResultsPerPage < 1 || c.NVD.ResultsPerPage > maxResultsPerPage {
		return fmt.Errorf("nvd.results_per_page must be between 1 and %d, got %d",
			maxResultsPerPage, c.NVD.ResultsPerPage)
	}
	if c.NVD.RequestInterval < 0 {
		return fmt.Errorf("nvd.request_interval must not be negative")
	}
	if c.NVD.RetryAttempts < 1 {
		return fmt.Errorf("nvd.retry_attempts must be at least 1, got %d", c.NVD.RetryAttempts)
	}
	if c.NVD.RetryDelay <= 0 {
		return fmt.Errorf("nvd.retry_delay must be positive")
	}
	return nil
}

func (c *Config) validateSync() error {
	if c.Sync.Interval < time.Minute {
		return fmt.Errorf("sync.interval must be at least 1m, got %s", c.Sync.Interval)
	}
	if c.Sync.MaxWindowDays < 1 || c.Sync.MaxWindowDays > maxWindowDays {
		return fmt.Errorf("sync.max_window_days must be between 1 and %d, got %d",
			maxWindowDays, c.Sync.MaxWindowDays)
	}
	if c.Sync.FallbackLookback <= 0 {
		return fmt.Errorf("sync.fallback_lookback must be positive")
	}
	if c.Sync.InitialEpoch.After(time.Now()) {
		return fmt.Errorf("sync.initial_epoch must not be in the future")
	}
	return nil
}

func (c *Config) validateGitHub() error {
	// The inventory read path is optional; without a token the endpoint is
	// simply not mounted.
	if c.GitHub.Token == "" {
		return nil
	}
	if err := validateHTTPURL(c.GitHub.BaseURL, "github.base_url"); err != nil {
		return err
	}
	if c.GitHub.Org == "" {
		return fmt.Errorf("github.org is required when github.token is set")
	}
	for name, size := range map[string]int{
		"github.team_page_size":  c.GitHub.TeamPageSize,
		"github.repo_page_size":  c.GitHub.RepoPageSize,
		"github.alert_page_size": c.GitHub.AlertPageSize,
	} {
		if size < 1 || size > 100 {
			return fmt.Errorf("%s must be between 1 and 100, got %d", name, size)
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "warning", "error", "fatal", "disabled", "":
	default:
		return fmt.Errorf("logging.level %q is not a valid level", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console", "":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}
	return nil
}

// validateHTTPURL checks that a value parses as an absolute http(s) URL.
func validateHTTPURL(raw, field string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", field)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %w", field, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must use http or https, got %q", field, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%s is missing a host", field)
	}
	return nil
}
