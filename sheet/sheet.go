// Package sheet turns raw spreadsheet rows into allowlist entries. The first
// row of a subset is its header; every following row is keyed by it.
package sheet

import "github.com/Keksclan/goRawrSheets/allowlist"

// Default column names of the allowlist spreadsheet.
const (
	DefaultHandleColumn     = "Twitter Handle"
	DefaultURLColumn        = "Landing Page URL"
	DefaultDisclaimerColumn = "Final Blurb"
)

// Parse maps every data row to header name -> cell. Rows shorter than the
// header leave the trailing columns absent; cells past the header are dropped.
func Parse(rows [][]string) []map[string]string {
	if len(rows) == 0 {
		return nil
	}
	header := rows[0]
	out := make([]map[string]string, 0, len(rows)-1)
	for _, row := range rows[1:] {
		rec := make(map[string]string, len(row))
		for i, cell := range row {
			if i >= len(header) {
				break
			}
			rec[header[i]] = cell
		}
		out = append(out, rec)
	}
	return out
}

// Entry is one projected allowlist row.
type Entry struct {
	Handle string
	Record allowlist.Record
}

// Columns names the header cells that hold each record field.
type Columns struct {
	Handle     string
	URL        string
	Disclaimer string
}

// DefaultColumns returns the column layout of the allowlist spreadsheet.
func DefaultColumns() Columns {
	return Columns{
		Handle:     DefaultHandleColumn,
		URL:        DefaultURLColumn,
		Disclaimer: DefaultDisclaimerColumn,
	}
}

// Project converts a parsed row into an Entry with a normalized handle. ok is
// false when the row has no handle.
func (c Columns) Project(row map[string]string) (e Entry, ok bool) {
	handle := allowlist.Normalize(row[c.Handle])
	if handle == "" {
		return Entry{}, false
	}
	return Entry{
		Handle: handle,
		Record: allowlist.Record{
			URL:        row[c.URL],
			Disclaimer: row[c.Disclaimer],
		},
	}, true
}

// Entries parses rows and projects every row that carries a handle, keeping
// the row order.
func (c Columns) Entries(rows [][]string) []Entry {
	parsed := Parse(rows)
	out := make([]Entry, 0, len(parsed))
	for _, row := range parsed {
		if e, ok := c.Project(row); ok {
			out = append(out, e)
		}
	}
	return out
}
