package gex

import (
	"regexp"
	"strconv"
	"time"
)

// osiPattern matches the tail of an OCC option symbol: 6-digit yymmdd
// expiration, C or P, then the strike price times 1000 zero-padded to 8
// digits, e.g. SPY241018C00585000.
var osiPattern = regexp.MustCompile(`(\d{6})([CP])(\d{8})$`)

// OSI holds the fields encoded in a standardized option symbol.
type OSI struct {
	Expiration time.Time
	Type       OptionType
	Strike     float64
}

// ParseOSI extracts expiration, type and strike from an OCC-style option
// symbol. It reports false when the symbol does not end in a valid encoding.
// An unparseable date leaves Expiration zero but still yields type and
// strike.
func ParseOSI(symbol string) (OSI, bool) {
	m := osiPattern.FindStringSubmatch(symbol)
	if m == nil {
		return OSI{}, false
	}

	exp, _ := time.Parse("060102", m[1])
	milli, _ := strconv.ParseInt(m[3], 10, 64)

	typ := Call
	if m[2] == "P" {
		typ = Put
	}
	return OSI{
		Expiration: exp,
		Type:       typ,
		Strike:     float64(milli) / 1000,
	}, true
}
