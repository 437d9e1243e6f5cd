package chain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gexcompass/internal/gex"
)

// Vendors disagree on where rows live and what fields are called. splitKeys
// are side-partitioned row lists collected together; listKeys are generic
// containers tried in order when no split list is present.
var (
	splitKeys = []string{"calls", "puts", "options"}
	listKeys  = []string{"items", "data", "results", "contracts", "chain", "instrument", "quotes"}
	spotKeys  = []string{"spot", "spot_price", "spotPrice", "underlying_price", "underlyingPrice", "last", "lastPrice", "price", "mark"}
)

// Decode maps one upstream chain document onto the fixed contract-row
// shape. Rows whose strike cannot be resolved are dropped; a document with
// no usable rows or no resolvable spot price is ErrNoData.
func Decode(symbol string, doc []byte) (*Snapshot, error) {
	var root any
	if err := json.Unmarshal(doc, &root); err != nil {
		return nil, fmt.Errorf("decoding chain document: %w", err)
	}

	raws := extractRows(root)
	if len(raws) == 0 {
		return nil, fmt.Errorf("%w: %s document has no option rows", ErrNoData, symbol)
	}

	snap := &Snapshot{Symbol: symbol, Spot: extractSpot(root, raws)}
	if snap.Spot <= 0 {
		return nil, fmt.Errorf("%w: no spot price for %s", ErrNoData, symbol)
	}

	for _, raw := range raws {
		if row, ok := decodeRow(raw); ok {
			snap.Rows = append(snap.Rows, row)
		}
	}
	if len(snap.Rows) == 0 {
		return nil, fmt.Errorf("%w: no usable rows for %s", ErrNoData, symbol)
	}
	return snap, nil
}

// extractRows finds the option row list. A root-level array is taken as-is;
// otherwise split call/put lists are concatenated, then generic container
// keys are tried in order.
func extractRows(root any) []any {
	obj, ok := root.(map[string]any)
	if !ok {
		rows, _ := root.([]any)
		return rows
	}

	var rows []any
	for _, key := range splitKeys {
		if list, ok := obj[key].([]any); ok {
			rows = append(rows, list...)
		}
	}
	if rows != nil {
		return rows
	}

	for _, key := range listKeys {
		if list, ok := obj[key].([]any); ok {
			return list
		}
	}
	return nil
}

// extractSpot resolves the underlying price from the document root, a
// nested underlying/quote object, or failing those, the first row that
// carries one.
func extractSpot(root any, raws []any) float64 {
	if obj, ok := root.(map[string]any); ok {
		if v := newScope(obj).num(spotKeys...); v > 0 {
			return v
		}
		for _, key := range []string{"underlying", "quote"} {
			if nested, ok := obj[key].(map[string]any); ok {
				if v := newScope(nested).num(spotKeys...); v > 0 {
					return v
				}
			}
		}
	}

	for _, raw := range raws {
		if m, ok := raw.(map[string]any); ok {
			if v := newScope(m).num("underlying_price", "underlyingPrice"); v > 0 {
				return v
			}
		}
	}
	return 0
}

// decodeRow maps one raw row onto a ContractRow. Static contract fields
// prefer a nested instrument wrapper when present; quote fields prefer the
// row itself. Numeric fields arrive as numbers or strings interchangeably.
func decodeRow(raw any) (gex.ContractRow, bool) {
	m, ok := raw.(map[string]any)
	if !ok {
		return gex.ContractRow{}, false
	}

	inst, _ := m["instrument"].(map[string]any)
	statics := newScope(inst, m)
	quotes := newScope(m, inst)

	row := gex.ContractRow{
		OSISymbol:    statics.str("symbol", "ticker", "osi_symbol"),
		Strike:       statics.num("strike_price", "strikePrice", "strike"),
		Type:         gex.OptionType(statics.str("option_type", "optionType", "put_call", "putCall", "side", "type")),
		OpenInterest: int64(quotes.num("open_interest", "openInterest", "oi")),
		Expiration:   parseDate(statics.str("expiration_date", "expirationDate", "expiration", "date")),
	}

	greeks := quotes
	if nested, ok := quotes.object("greeks"); ok {
		greeks = newScope(nested, m, inst)
	}
	row.Delta = greeks.num("delta")
	row.Gamma = greeks.num("gamma")
	row.Theta = greeks.num("theta")

	if row.Strike == 0 {
		if osi, ok := gex.ParseOSI(row.OSISymbol); ok {
			row.Strike = osi.Strike
		}
	}
	if row.Strike <= 0 {
		return gex.ContractRow{}, false
	}
	return row, true
}

// scope is an ordered list of maps searched front to back.
type scope []map[string]any

func newScope(maps ...map[string]any) scope {
	s := make(scope, 0, len(maps))
	for _, m := range maps {
		if m != nil {
			s = append(s, m)
		}
	}
	return s
}

func (s scope) value(keys ...string) (any, bool) {
	for _, m := range s {
		for _, key := range keys {
			if v, ok := m[key]; ok && v != nil {
				return v, true
			}
		}
	}
	return nil, false
}

func (s scope) str(keys ...string) string {
	v, ok := s.value(keys...)
	if !ok {
		return ""
	}
	sv, _ := v.(string)
	return sv
}

func (s scope) num(keys ...string) float64 {
	v, ok := s.value(keys...)
	if !ok {
		return 0
	}
	switch t := v.(type) {
	case float64:
		return t
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0
		}
		return f
	}
	return 0
}

func (s scope) object(key string) (map[string]any, bool) {
	v, ok := s.value(key)
	if !ok {
		return nil, false
	}
	m, ok := v.(map[string]any)
	return m, ok
}

func parseDate(v string) time.Time {
	if v == "" {
		return time.Time{}
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, v); err == nil {
			return t
		}
	}
	return time.Time{}
}
