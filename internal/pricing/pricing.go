// Package pricing holds the quick buy-back price estimates shown before a
// customer submits their unit.
package pricing

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/locales/currency"
	"github.com/go-playground/locales/en_IN"
)

// AgeRange selects an estimate.
type AgeRange string

const (
	Range2to3 AgeRange = "2-3"
	Range3to5 AgeRange = "3-5"
	RangeDead AgeRange = "dead"
)

// ErrUnknownRange is returned for a range not in the table.
var ErrUnknownRange = errors.New("unknown age range")

// Disclaimer accompanies every estimate.
const Disclaimer = "This is a base estimate. Final price may vary based on brand, model, and detailed condition assessment."

// Estimate is a price band in whole rupees. Fixed prices have Min == Max.
type Estimate struct {
	Range   AgeRange `json:"range"`
	Label   string   `json:"label"`
	Min     int      `json:"min"`
	Max     int      `json:"max"`
	Display string   `json:"display"`
	Note    string   `json:"note"`
}

// Fixed reports whether the estimate is a single price.
func (e Estimate) Fixed() bool {
	return e.Min == e.Max
}

var table = []Estimate{
	{Range: Range2to3, Label: "2-3 Years Old", Min: 3000, Max: 4000},
	{Range: Range3to5, Label: "3-5 Years Old", Min: 2500, Max: 2500},
	{Range: RangeDead, Label: "Dead/Non-Functional", Min: 2000, Max: 2000},
}

var inr = en_IN.New()

// FormatINR renders whole rupees the Indian way, e.g. ₹1,00,000.
func FormatINR(amount int) string {
	return strings.TrimSuffix(inr.FmtCurrency(float64(amount), 0, currency.INR), ".00")
}

func (e Estimate) withDisplay() Estimate {
	if e.Fixed() {
		e.Display = FormatINR(e.Min)
	} else {
		e.Display = FormatINR(e.Min) + " - " + FormatINR(e.Max)
	}
	e.Note = Disclaimer
	return e
}

// Lookup returns the estimate for r.
func Lookup(r AgeRange) (Estimate, error) {
	for _, e := range table {
		if e.Range == r {
			return e.withDisplay(), nil
		}
	}
	return Estimate{}, fmt.Errorf("%w: %q", ErrUnknownRange, r)
}

// All returns every estimate in display order.
func All() []Estimate {
	out := make([]Estimate, len(table))
	for i, e := range table {
		out[i] = e.withDisplay()
	}
	return out
}
