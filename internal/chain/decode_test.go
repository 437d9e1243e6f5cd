package chain

import (
	"errors"
	"testing"

	"gexcompass/internal/gex"
)

func TestDecodeRootArray(t *testing.T) {
	doc := `[
		{"strike": 500, "open_interest": 10, "gamma": 0.02, "underlying_price": 501.5},
		{"strike": 505, "open_interest": 5, "gamma": 0.01}
	]`

	snap, err := Decode("SPY", []byte(doc))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if snap.Spot != 501.5 {
		t.Errorf("Spot = %v, want 501.5 from row underlying", snap.Spot)
	}
	if len(snap.Rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(snap.Rows))
	}
	if snap.Rows[0].Strike != 500 || snap.Rows[0].OpenInterest != 10 || snap.Rows[0].Gamma != 0.02 {
		t.Errorf("row 0 = %+v", snap.Rows[0])
	}
}

func TestDecodeSplitLists(t *testing.T) {
	doc := `{
		"spot": 500,
		"calls": [{"strike": 500, "option_type": "CALL", "open_interest": 1}],
		"puts":  [{"strike": 495, "option_type": "PUT", "open_interest": 2}]
	}`

	snap, err := Decode("SPY", []byte(doc))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if snap.Spot != 500 {
		t.Errorf("Spot = %v, want 500", snap.Spot)
	}
	if len(snap.Rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(snap.Rows))
	}
	if snap.Rows[0].Type != "CALL" || snap.Rows[1].Type != "PUT" {
		t.Errorf("types = %s, %s", snap.Rows[0].Type, snap.Rows[1].Type)
	}
}

func TestDecodeGenericContainerAndStringNumbers(t *testing.T) {
	doc := `{
		"underlying": {"last": "500.5"},
		"items": [
			{"strikePrice": "498", "openInterest": "12", "greeks": {"gamma": "0.021", "delta": "0.5", "theta": "-0.3"}}
		]
	}`

	snap, err := Decode("SPY", []byte(doc))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if snap.Spot != 500.5 {
		t.Errorf("Spot = %v, want 500.5 from nested underlying", snap.Spot)
	}
	row := snap.Rows[0]
	if row.Strike != 498 || row.OpenInterest != 12 {
		t.Errorf("strike/oi = %v/%v, want 498/12", row.Strike, row.OpenInterest)
	}
	if row.Gamma != 0.021 || row.Delta != 0.5 || row.Theta != -0.3 {
		t.Errorf("greeks = %v/%v/%v", row.Gamma, row.Delta, row.Theta)
	}
}

func TestDecodeInstrumentWrapper(t *testing.T) {
	doc := `{
		"last": 500,
		"data": [
			{
				"instrument": {"symbol": "SPY250314C00500000", "strike_price": 500, "option_type": "CALL", "expiration_date": "2025-03-14"},
				"open_interest": 42,
				"gamma": 0.015
			}
		]
	}`

	snap, err := Decode("SPY", []byte(doc))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	row := snap.Rows[0]
	if row.OSISymbol != "SPY250314C00500000" {
		t.Errorf("OSISymbol = %q", row.OSISymbol)
	}
	if row.Strike != 500 || row.OpenInterest != 42 || row.Gamma != 0.015 {
		t.Errorf("row = %+v", row)
	}
	if row.Expiration.Year() != 2025 || row.Expiration.Month() != 3 || row.Expiration.Day() != 14 {
		t.Errorf("Expiration = %v", row.Expiration)
	}
}

func TestDecodeOSIStrikeFallback(t *testing.T) {
	doc := `{
		"spot": 500,
		"items": [
			{"symbol": "SPY250314P00495000", "open_interest": 3},
			{"symbol": "not-an-osi", "open_interest": 4}
		]
	}`

	snap, err := Decode("SPY", []byte(doc))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(snap.Rows) != 1 {
		t.Fatalf("got %d rows, want 1 (strikeless row dropped)", len(snap.Rows))
	}
	if snap.Rows[0].Strike != 495 {
		t.Errorf("Strike = %v, want 495 from OSI", snap.Rows[0].Strike)
	}
}

func TestDecodeErrors(t *testing.T) {
	if _, err := Decode("SPY", []byte(`{"nothing": true}`)); !errors.Is(err, ErrNoData) {
		t.Errorf("no rows: err = %v, want ErrNoData", err)
	}
	if _, err := Decode("SPY", []byte(`{"items": [{"strike": 500, "open_interest": 1}]}`)); !errors.Is(err, ErrNoData) {
		t.Errorf("no spot: err = %v, want ErrNoData", err)
	}
	if _, err := Decode("SPY", []byte(`{`)); err == nil {
		t.Error("malformed document decoded without error")
	}
}

func TestBandFilter(t *testing.T) {
	rows := []gex.ContractRow{
		{Strike: 485},
		{Strike: 500},
		{Strike: 515},
		{Strike: 484.9},
		{Strike: 515.1},
	}

	kept := BandFilter(rows, 500, 0.03)

	if len(kept) != 3 {
		t.Fatalf("kept %d rows, want 3", len(kept))
	}
	for _, r := range kept {
		if r.Strike < 485 || r.Strike > 515 {
			t.Errorf("strike %v escaped the band", r.Strike)
		}
	}
}
