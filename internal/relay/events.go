package relay

// DataRefresh announces that a symbol's snapshot was just persisted.
type DataRefresh struct {
	Symbol    string `json:"symbol"`
	Timestamp string `json:"timestamp"`
}

// MagnetChange announces that a symbol's strongest-GEX strike moved
// between consecutive snapshots. Strength carries the new magnet's net
// GEX.
type MagnetChange struct {
	Symbol    string  `json:"symbol"`
	OldMagnet float64 `json:"old_magnet"`
	NewMagnet float64 `json:"new_magnet"`
	Strength  float64 `json:"strength"`
	Timestamp string  `json:"timestamp"`
}
