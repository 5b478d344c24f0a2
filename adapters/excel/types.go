package excel

// RawRowData represents one row as header -> cell text.
type RawRowData map[string]string

// Table is one sheet read back as text.
type Table struct {
	Headers []string
	Rows    []RawRowData
}

// Sheet names written by the summary export.
const (
	SheetSummary     = "summary"
	SheetAdjustments = "adjustments"
	SheetFit         = "fit"
	SheetPulls       = "pulls"
)
