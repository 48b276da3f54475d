package trade

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// AmountPlaces is the precision of every converted amount.
const AmountPlaces = 2

// Provenance tells who minted a record.
type Provenance string

const (
	// ProvenanceExecutor marks records confirmed by the trade executor.
	ProvenanceExecutor Provenance = "executor"
	// ProvenanceFallback marks records synthesised locally while the executor was unreachable.
	ProvenanceFallback Provenance = "fallback"
)

// Pair is an ordered (base, quote) currency pair.
type Pair struct {
	Base  string `json:"base"`
	Quote string `json:"quote"`
}

// NewPair normalises both codes to upper case.
func NewPair(base, quote string) Pair {
	return Pair{Base: normaliseCode(base), Quote: normaliseCode(quote)}
}

func (p Pair) String() string {
	return p.Base + "/" + p.Quote
}

// Validate reports empty codes. Code legitimacy is left to the rate source.
func (p Pair) Validate() error {
	if p.Base == "" {
		return &ValidationError{Field: "fromCurrency", Reason: "is required"}
	}
	if p.Quote == "" {
		return &ValidationError{Field: "toCurrency", Reason: "is required"}
	}
	return nil
}

// Quote is a rate offer observed at FetchedAt.
type Quote struct {
	Pair      Pair            `json:"pair"`
	Rate      decimal.Decimal `json:"rate"`
	FetchedAt time.Time       `json:"fetchedAt"`
	Source    string          `json:"source,omitempty"`
}

// Age returns how old the quote is at now.
func (q Quote) Age(now time.Time) time.Duration {
	return now.Sub(q.FetchedAt)
}

// Stale reports whether the quote has outlived window. A non-positive window never expires.
func (q Quote) Stale(now time.Time, window time.Duration) bool {
	if window <= 0 {
		return false
	}
	return q.Age(now) > window
}

// Convert returns amount × rate rounded half away from zero to two places.
func Convert(amount, rate decimal.Decimal) decimal.Decimal {
	return amount.Mul(rate).Round(AmountPlaces)
}

// Request is a conversion request as accepted by the executor.
type Request struct {
	Base   string          `json:"fromCurrency" validate:"required,max=16"`
	Quote  string          `json:"toCurrency" validate:"required,max=16"`
	Amount decimal.Decimal `json:"amount"`
}

// Pair returns the normalised currency pair of the request.
func (r Request) Pair() Pair {
	return NewPair(r.Base, r.Quote)
}

// Normalise returns a copy with trimmed upper-case codes.
func (r Request) Normalise() Request {
	p := r.Pair()
	r.Base, r.Quote = p.Base, p.Quote
	return r
}

// Validate checks required fields and a positive amount without touching the network.
func (r Request) Validate() error {
	n := r.Normalise()
	if err := validate.Struct(n); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			fe := verrs[0]
			return &ValidationError{Field: fe.Field(), Reason: describeTag(fe)}
		}
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if !n.Amount.IsPositive() {
		return &ValidationError{Field: "amount", Reason: "must be greater than zero"}
	}
	return nil
}

// Record is an immutable trade record.
type Record struct {
	ID              string
	Base            string
	Quote           string
	OriginalAmount  decimal.Decimal
	ConvertedAmount decimal.Decimal
	Rate            decimal.Decimal
	CreatedAt       time.Time
	Provenance      Provenance
}

// Fallback reports whether the record was synthesised without the executor.
func (r Record) Fallback() bool {
	return r.Provenance == ProvenanceFallback
}

// NewRecord mints a record for req at q.Rate.
func NewRecord(id string, req Request, q Quote, at time.Time, prov Provenance) Record {
	n := req.Normalise()
	return Record{
		ID:              id,
		Base:            n.Base,
		Quote:           n.Quote,
		OriginalAmount:  n.Amount,
		ConvertedAmount: Convert(n.Amount, q.Rate),
		Rate:            q.Rate,
		CreatedAt:       at.UTC(),
		Provenance:      prov,
	}
}

type recordJSON struct {
	ID              string      `json:"tradeId"`
	Base            string      `json:"fromCurrency"`
	Quote           string      `json:"toCurrency"`
	OriginalAmount  json.Number `json:"originalAmount"`
	ConvertedAmount string      `json:"convertedAmount"`
	Rate            json.Number `json:"rate"`
	Timestamp       time.Time   `json:"timestamp"`
	Provenance      Provenance  `json:"provenance"`
}

// MarshalJSON renders the execution endpoint shape with a fixed two-place convertedAmount.
func (r Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(recordJSON{
		ID:              r.ID,
		Base:            r.Base,
		Quote:           r.Quote,
		OriginalAmount:  json.Number(r.OriginalAmount.String()),
		ConvertedAmount: r.ConvertedAmount.StringFixed(AmountPlaces),
		Rate:            json.Number(r.Rate.String()),
		Timestamp:       r.CreatedAt,
		Provenance:      r.Provenance,
	})
}

// UnmarshalJSON accepts the execution endpoint shape.
func (r *Record) UnmarshalJSON(data []byte) error {
	var raw recordJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	original, err := decimalOf("originalAmount", string(raw.OriginalAmount))
	if err != nil {
		return err
	}
	converted, err := decimalOf("convertedAmount", raw.ConvertedAmount)
	if err != nil {
		return err
	}
	rate, err := decimalOf("rate", string(raw.Rate))
	if err != nil {
		return err
	}
	prov := raw.Provenance
	if prov == "" {
		prov = ProvenanceExecutor
	}
	*r = Record{
		ID:              raw.ID,
		Base:            raw.Base,
		Quote:           raw.Quote,
		OriginalAmount:  original,
		ConvertedAmount: converted,
		Rate:            rate,
		CreatedAt:       raw.Timestamp,
		Provenance:      prov,
	}
	return nil
}

func decimalOf(field, v string) (decimal.Decimal, error) {
	if v == "" {
		return decimal.Decimal{}, fmt.Errorf("missing %s", field)
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse %s: %w", field, err)
	}
	return d, nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	default:
		return "failed " + fe.Tag() + " check"
	}
}

func normaliseCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
