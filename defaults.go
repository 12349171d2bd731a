package gorawrsheets

import "time"

// Defaults of the allowlist spreadsheet.
const (
	DefaultSpreadsheetID = "1UVnxr47WAtMNaACW63SfuGCFXnUnc-5kIahzkN9-h9g"
	DefaultInterval      = 24 * time.Hour
	DefaultPollPeriod    = time.Hour
	DefaultFetchTimeout  = 2 * time.Minute
)

// DefaultSubsets are the tabs of the allowlist spreadsheet, in merge order.
var DefaultSubsets = []string{
	"Select individuals",
	"Select Groups",
	"Select Academics",
}

// DefaultOptions returns the recommended set of options for production use:
// the allowlist spreadsheet and its tabs, a 24h refresh interval checked every
// hour, a cycle timeout and panic recovery. A fetcher still has to be added.
func DefaultOptions() []Option {
	return []Option{
		WithSource(DefaultSpreadsheetID),
		WithSubsets(DefaultSubsets...),
		WithInterval(DefaultInterval),
		WithPollPeriod(DefaultPollPeriod),
		WithFetchTimeout(DefaultFetchTimeout),
		WithRecovery(),
	}
}
