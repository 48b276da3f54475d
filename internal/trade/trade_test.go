package trade

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvertRoundsToTwoPlaces(t *testing.T) {
	cases := []struct {
		amount, rate, want string
	}{
		{"100", "0.92", "92.00"},
		{"10", "1.23456", "12.35"},
		{"1", "0.125", "0.13"},
		{"3", "1", "3.00"},
		{"0.01", "0.5", "0.01"},
	}
	for _, tc := range cases {
		got := Convert(decimal.RequireFromString(tc.amount), decimal.RequireFromString(tc.rate))
		assert.Equal(t, tc.want, got.StringFixed(AmountPlaces), "%s x %s", tc.amount, tc.rate)
	}
}

func TestRequestValidate(t *testing.T) {
	valid := Request{Base: "usd", Quote: " eur ", Amount: decimal.NewFromInt(100)}
	require.NoError(t, valid.Validate())

	cases := []struct {
		name  string
		req   Request
		field string
	}{
		{"missing base", Request{Quote: "EUR", Amount: decimal.NewFromInt(1)}, "fromCurrency"},
		{"missing quote", Request{Base: "USD", Amount: decimal.NewFromInt(1)}, "toCurrency"},
		{"blank quote", Request{Base: "USD", Quote: "   ", Amount: decimal.NewFromInt(1)}, "toCurrency"},
		{"zero amount", Request{Base: "USD", Quote: "EUR"}, "amount"},
		{"negative amount", Request{Base: "USD", Quote: "EUR", Amount: decimal.NewFromInt(-5)}, "amount"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.req.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidRequest))
			field, ok := FieldOf(err)
			require.True(t, ok)
			assert.Equal(t, tc.field, field)
		})
	}
}

func TestSameCurrencyIsValid(t *testing.T) {
	req := Request{Base: "USD", Quote: "USD", Amount: decimal.NewFromInt(5)}
	require.NoError(t, req.Validate())
}

func TestQuoteStale(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	q := Quote{Pair: NewPair("USD", "EUR"), Rate: decimal.RequireFromString("0.92"), FetchedAt: now.Add(-90 * time.Second)}

	assert.True(t, q.Stale(now, time.Minute))
	assert.False(t, q.Stale(now, 2*time.Minute))
	assert.False(t, q.Stale(now, 0))
}

func TestRecordJSONShape(t *testing.T) {
	at := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	req := Request{Base: "USD", Quote: "EUR", Amount: decimal.NewFromInt(100)}
	q := Quote{Pair: req.Pair(), Rate: decimal.RequireFromString("0.92"), FetchedAt: at}
	rec := NewRecord("abc", req, q, at, ProvenanceExecutor)

	data, err := json.Marshal(rec)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "abc", raw["tradeId"])
	assert.Equal(t, "USD", raw["fromCurrency"])
	assert.Equal(t, "EUR", raw["toCurrency"])
	assert.Equal(t, "92.00", raw["convertedAmount"])
	assert.Equal(t, 0.92, raw["rate"])
	assert.Equal(t, float64(100), raw["originalAmount"])
	assert.Equal(t, "2026-03-04T05:06:07Z", raw["timestamp"])
	assert.Equal(t, "executor", raw["provenance"])

	var back Record
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, rec.ID, back.ID)
	assert.True(t, rec.ConvertedAmount.Equal(back.ConvertedAmount))
	assert.True(t, rec.Rate.Equal(back.Rate))
	assert.False(t, back.Fallback())
}

func TestRecordWithoutProvenanceDefaultsToExecutor(t *testing.T) {
	var rec Record
	payload := `{"tradeId":"x","fromCurrency":"USD","toCurrency":"EUR","originalAmount":1,"convertedAmount":"0.92","rate":0.92,"timestamp":"2026-01-01T00:00:00Z"}`
	require.NoError(t, json.Unmarshal([]byte(payload), &rec))
	assert.Equal(t, ProvenanceExecutor, rec.Provenance)
}

func TestRecordRejectsMissingAmounts(t *testing.T) {
	cases := map[string]string{
		"rate":            `{"tradeId":"x","originalAmount":1,"convertedAmount":"0.92","timestamp":"2026-01-01T00:00:00Z"}`,
		"convertedAmount": `{"tradeId":"x","originalAmount":1,"rate":0.92,"timestamp":"2026-01-01T00:00:00Z"}`,
		"originalAmount":  `{"tradeId":"x","convertedAmount":"","rate":0.92,"timestamp":"2026-01-01T00:00:00Z"}`,
	}
	for field, payload := range cases {
		var rec Record
		err := json.Unmarshal([]byte(payload), &rec)
		require.Error(t, err, field)
		assert.Contains(t, err.Error(), "missing "+field)
	}
}

func TestRequestDecodesNumericAndStringAmounts(t *testing.T) {
	var a, b Request
	require.NoError(t, json.Unmarshal([]byte(`{"fromCurrency":"USD","toCurrency":"EUR","amount":12.5}`), &a))
	require.NoError(t, json.Unmarshal([]byte(`{"fromCurrency":"USD","toCurrency":"EUR","amount":"12.5"}`), &b))
	assert.True(t, a.Amount.Equal(b.Amount))
}
