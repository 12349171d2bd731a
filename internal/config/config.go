// Package config loads the rawrsheets binary's YAML configuration file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// File is the on-disk configuration. Zero values mean "use the default".
type File struct {
	Source  Source  `yaml:"source"`
	Refresh Refresh `yaml:"refresh"`
	Redis   Redis   `yaml:"redis"`
	Cache   Cache   `yaml:"cache"`
	Server  Server  `yaml:"server"`
	Log     Log     `yaml:"log"`
	Tracing Tracing `yaml:"tracing"`
}

// Source describes the spreadsheet and how to read it.
type Source struct {
	SpreadsheetID string   `yaml:"spreadsheet_id"`
	Subsets       []string `yaml:"subsets"`
	APIKey        string   `yaml:"api_key"`
	// RequestsPerSecond paces calls to the Sheets API.
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Columns           Columns `yaml:"columns"`
}

// Columns are the header names of the projected columns.
type Columns struct {
	Handle     string `yaml:"handle"`
	URL        string `yaml:"url"`
	Disclaimer string `yaml:"disclaimer"`
}

type Refresh struct {
	Interval   time.Duration `yaml:"interval"`
	PollPeriod time.Duration `yaml:"poll_period"`
	// FetchTimeout bounds a cycle. Unset keeps the default; 0s disables it.
	FetchTimeout *time.Duration `yaml:"fetch_timeout"`
}

// Redis enables the Redis store when Addr is set.
type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// Cache sizes the in-process layer in front of Redis.
type Cache struct {
	MaxCost int64 `yaml:"max_cost"`
}

type Server struct {
	GRPCAddr    string `yaml:"grpc_addr"`
	MetricsAddr string `yaml:"metrics_addr"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type Tracing struct {
	Stdout bool `yaml:"stdout"`
}

// Load reads and parses the file at path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML data. Unknown keys are rejected so typos surface early.
// An empty document yields a zero File.
func Parse(data []byte) (*File, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}
	r := f.Refresh
	if r.Interval < 0 || r.PollPeriod < 0 || (r.FetchTimeout != nil && *r.FetchTimeout < 0) {
		return nil, errors.New("parse config yaml: durations must not be negative")
	}
	return &f, nil
}
