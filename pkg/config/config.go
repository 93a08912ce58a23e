package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultBaseURL is the hosted runZero console.
const DefaultBaseURL = "https://console.runzero.com"

// Config represents the tool configuration file.
type Config struct {
	Console  ConsoleConfig  `json:"console" yaml:"console"`
	Output   OutputConfig   `json:"output" yaml:"output"`
	Defaults DefaultsConfig `json:"defaults" yaml:"defaults"`
	Import   ImportConfig   `json:"import" yaml:"import"`
	Sync     SyncConfig     `json:"sync" yaml:"sync"`
	SNMP     SNMPConfig     `json:"snmp" yaml:"snmp"`
	Influx   InfluxConfig   `json:"influx" yaml:"influx"`
	NVD      NVDConfig      `json:"nvd" yaml:"nvd"`
	Snow     SnowConfig     `json:"snow" yaml:"snow"`
	Logging  LoggingConfig  `json:"logging" yaml:"logging"`
	Metrics  MetricsConfig  `json:"metrics" yaml:"metrics"`
}

// ConsoleConfig stores runZero API information.
type ConsoleConfig struct {
	BaseURL      string `json:"base_url" yaml:"base_url"`
	ExportToken  string `json:"export_token" yaml:"export_token"`
	OrgToken     string `json:"org_token" yaml:"org_token"`
	AccountToken string `json:"account_token" yaml:"account_token"`
	ClientID     string `json:"client_id" yaml:"client_id"`
	ClientSecret string `json:"client_secret" yaml:"client_secret"`
	SiteID       string `json:"site_id" yaml:"site_id"`
}

// TokenKind selects which API key an endpoint needs.
type TokenKind string

const (
	ExportToken  TokenKind = "export"
	OrgToken     TokenKind = "org"
	AccountToken TokenKind = "account"
)

// Token returns the configured key for kind, or "" when unset.
func (c ConsoleConfig) Token(kind TokenKind) string {
	switch kind {
	case ExportToken:
		return c.ExportToken
	case OrgToken:
		return c.OrgToken
	case AccountToken:
		return c.AccountToken
	}
	return ""
}

// UseOAuth reports whether client credentials are available.
func (c ConsoleConfig) UseOAuth() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

// OutputConfig controls where reports go.
type OutputConfig struct {
	Path   string `json:"path" yaml:"path"`
	Format string `json:"format" yaml:"format"`
}

// DefaultsConfig holds query defaults.
type DefaultsConfig struct {
	TimeRange   string `json:"time_range" yaml:"time_range"`
	TaskCount   int    `json:"task_count" yaml:"task_count"`
	TaskType    string `json:"task_type" yaml:"task_type"`
	TargetsFile string `json:"targets_file" yaml:"targets_file"`
}

// ImportConfig configures bulk uploads.
type ImportConfig struct {
	Dir   string `json:"dir" yaml:"dir"`
	Kind  string `json:"kind" yaml:"kind"`
	Clean bool   `json:"clean" yaml:"clean"`
}

// SyncConfig names the console scan data is copied from. The destination is
// the regular console.
type SyncConfig struct {
	SourceURL   string `json:"source_url" yaml:"source_url"`
	SourceToken string `json:"source_token" yaml:"source_token"`
}

// SNMPConfig configures live serial probing.
type SNMPConfig struct {
	Community string `json:"community" yaml:"community"`
	Port      int    `json:"port" yaml:"port"`
	TimeoutMS int    `json:"timeout_ms" yaml:"timeout_ms"`
}

// InfluxConfig configures optional time-series publishing.
type InfluxConfig struct {
	URL    string `json:"url" yaml:"url"`
	Token  string `json:"token" yaml:"token"`
	Org    string `json:"org" yaml:"org"`
	Bucket string `json:"bucket" yaml:"bucket"`
}

// Enabled reports whether enough is set to write points.
func (c InfluxConfig) Enabled() bool {
	return c.URL != "" && c.Bucket != ""
}

// NVDConfig configures CVE lookups.
type NVDConfig struct {
	URL           string `json:"url" yaml:"url"`
	APIKey        string `json:"api_key" yaml:"api_key"`
	Retries       int    `json:"retries" yaml:"retries"`
	DelayMS       int    `json:"delay_ms" yaml:"delay_ms"`
	RateLimit     int    `json:"rate_limit" yaml:"rate_limit"`
	WindowSeconds int    `json:"window_seconds" yaml:"window_seconds"`
}

// SnowConfig stores Snow License Manager credentials.
type SnowConfig struct {
	BaseURL    string `json:"base_url" yaml:"base_url"`
	Username   string `json:"username" yaml:"username"`
	Password   string `json:"password" yaml:"password"`
	CustomerID string `json:"customer_id" yaml:"customer_id"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`
	Path   string `json:"path" yaml:"path"`
	Format string `json:"format" yaml:"format"`
}

// MetricsConfig controls the run metrics export.
type MetricsConfig struct {
	TextfilePath string `json:"textfile_path" yaml:"textfile_path"`
}

// Default returns a configuration with every default filled in.
func Default() *Config {
	return &Config{
		Console:  ConsoleConfig{BaseURL: DefaultBaseURL},
		Defaults: DefaultsConfig{TimeRange: "1week", TaskCount: 1000, TaskType: "scan"},
		Import:   ImportConfig{Kind: "nessus"},
		SNMP:     SNMPConfig{Community: "public", Port: 161, TimeoutMS: 2000},
		NVD: NVDConfig{
			URL:           "https://services.nvd.nist.gov/rest/json/cves/2.0",
			Retries:       3,
			DelayMS:       5000,
			RateLimit:     5,
			WindowSeconds: 30,
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load reads YAML/JSON configuration over the defaults. An empty path
// returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err == nil {
		return cfg, nil
	}
	cfg = Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// MissingError reports a required setting that was never provided.
type MissingError struct {
	Key string
}

func (e *MissingError) Error() string {
	return fmt.Sprintf("missing required setting %s", e.Key)
}

// Require returns a MissingError when value is blank.
func Require(key, value string) error {
	if strings.TrimSpace(value) == "" {
		return &MissingError{Key: key}
	}
	return nil
}
