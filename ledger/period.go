/*
period.go - Fiscal period boundary helpers

PURPOSE:
  Reporting and verification windows are usually fiscal years, and fiscal
  years do not have to start in January. The configuration layer supplies
  the start month (and the reporting currency, which is opaque here); these
  helpers turn a date into the period that contains it.

  Periods are half-open [Start, End), matching the valid-time convention:
  the first instant of the next fiscal year is not part of this one.
*/
package ledger

import "time"

// Period is a half-open [Start, End) time window.
type Period struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the period.
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && t.Before(p.End)
}

// FiscalConfig is the opaque reporting configuration supplied by the
// configuration layer.
type FiscalConfig struct {
	// StartMonth is the month the fiscal year begins (1 = calendar year).
	StartMonth time.Month

	// Currency is the reporting currency code. Carried through to reports,
	// never interpreted by the ledger core.
	Currency string
}

// FiscalYear returns the fiscal year containing the given date.
// An unset or out-of-range start month means calendar years.
func (c FiscalConfig) FiscalYear(date time.Time) Period {
	month := c.StartMonth
	if month < time.January || month > time.December {
		month = time.January
	}
	start := time.Date(date.Year(), month, 1, 0, 0, 0, 0, time.UTC)
	if date.Before(start) {
		start = start.AddDate(-1, 0, 0)
	}
	return Period{Start: start, End: start.AddDate(1, 0, 0)}
}

// CurrentFiscalYear returns the fiscal year containing now.
func (c FiscalConfig) CurrentFiscalYear() Period {
	return c.FiscalYear(time.Now().UTC())
}
