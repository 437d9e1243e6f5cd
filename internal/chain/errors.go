package chain

import "errors"

var (
	ErrNoData    = errors.New("no chain data")
	ErrExhausted = errors.New("replay data exhausted")
)
