package refresh

import (
	"errors"
	"fmt"
	"time"

	"github.com/Keksclan/goRawrSheets/sheet"
)

// ErrInvalidConfig is returned by [New] for an unusable [Config].
var ErrInvalidConfig = errors.New("refresh: invalid config")

// Config describes where the allowlist lives and how often it is refreshed.
type Config struct {
	// SourceID identifies the remote dataset (the spreadsheet ID).
	SourceID string

	// Subsets are fetched on every cycle and merged in this order, so a
	// handle in a later subset overrides the same handle in an earlier one.
	Subsets []string

	// Columns names the header cells that hold each record field. The zero
	// value means sheet.DefaultColumns().
	Columns sheet.Columns

	// Interval is the minimum time between two real fetches.
	Interval time.Duration

	// PollPeriod is how often Run performs a due-check. Zero means Interval.
	// It must not exceed Interval.
	PollPeriod time.Duration

	// FetchTimeout bounds one whole cycle. Zero disables the bound.
	FetchTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Columns == (sheet.Columns{}) {
		c.Columns = sheet.DefaultColumns()
	}
	if c.PollPeriod == 0 {
		c.PollPeriod = c.Interval
	}
	c.Subsets = append([]string(nil), c.Subsets...)
	return c
}

func (c Config) validate() error {
	switch {
	case c.SourceID == "":
		return fmt.Errorf("%w: empty source id", ErrInvalidConfig)
	case len(c.Subsets) == 0:
		return fmt.Errorf("%w: no subsets", ErrInvalidConfig)
	case c.Interval <= 0:
		return fmt.Errorf("%w: interval must be positive, got %v", ErrInvalidConfig, c.Interval)
	case c.PollPeriod <= 0 || c.PollPeriod > c.Interval:
		return fmt.Errorf("%w: poll period %v must be in (0, %v]", ErrInvalidConfig, c.PollPeriod, c.Interval)
	case c.FetchTimeout < 0:
		return fmt.Errorf("%w: negative fetch timeout", ErrInvalidConfig)
	}
	for _, s := range c.Subsets {
		if s == "" {
			return fmt.Errorf("%w: empty subset name", ErrInvalidConfig)
		}
	}
	return nil
}
