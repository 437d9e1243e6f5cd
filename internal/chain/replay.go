package chain

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"gexcompass/internal/gex"
)

// ReplaySource replays recorded chain documents from JSONL files named
// {dir}/{SYMBOL}.jsonl, one raw upstream document per line. Each Snapshot
// call decodes the symbol's next line; with looping enabled the cursor
// wraps at end of file, otherwise the source reports ErrExhausted.
//
// Files are indexed by line byte offset on first use and the handles stay
// open for seeking.
type ReplaySource struct {
	dir    string
	band   float64
	loop   bool
	logger *zap.Logger

	mu      sync.Mutex
	files   map[string]*os.File
	offsets map[string][]int64
	cursors map[string]int
}

var _ Source = (*ReplaySource)(nil)

func NewReplaySource(dir string, band float64, loop bool, logger *zap.Logger) *ReplaySource {
	if band <= 0 {
		band = gex.StrikeBand
	}
	return &ReplaySource{
		dir:     dir,
		band:    band,
		loop:    loop,
		logger:  logger,
		files:   make(map[string]*os.File),
		offsets: make(map[string][]int64),
		cursors: make(map[string]int),
	}
}

func (r *ReplaySource) Snapshot(ctx context.Context, symbol string) (*Snapshot, error) {
	doc, err := r.next(symbol)
	if err != nil {
		return nil, err
	}

	snap, err := Decode(symbol, doc)
	if err != nil {
		return nil, err
	}
	snap.Rows = BandFilter(snap.Rows, snap.Spot, r.band)
	return snap, nil
}

func (r *ReplaySource) next(symbol string) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.offsets[symbol]; !ok {
		if err := r.index(symbol); err != nil {
			return nil, err
		}
	}

	offsets := r.offsets[symbol]
	cursor := r.cursors[symbol]
	if cursor >= len(offsets) {
		if !r.loop {
			return nil, fmt.Errorf("%w: %s", ErrExhausted, symbol)
		}
		cursor = 0
	}

	file := r.files[symbol]
	if _, err := file.Seek(offsets[cursor], io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek error: %w", err)
	}
	line, err := bufio.NewReader(file).ReadBytes('\n')
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("read error: %w", err)
	}

	r.cursors[symbol] = cursor + 1
	return line, nil
}

// index scans the symbol's file once, recording the byte offset of every
// non-empty line, and keeps the handle open for later seeks.
func (r *ReplaySource) index(symbol string) error {
	path := filepath.Join(r.dir, symbol+".jsonl")
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening replay file: %w", err)
	}

	var offsets []int64
	var offset int64

	reader := bufio.NewReader(file)
	for {
		line, err := reader.ReadBytes('\n')
		if len(bytes.TrimSpace(line)) > 0 {
			offsets = append(offsets, offset)
		}
		offset += int64(len(line))

		if err == io.EOF {
			break
		}
		if err != nil {
			_ = file.Close()
			return fmt.Errorf("indexing replay file: %w", err)
		}
	}

	if len(offsets) == 0 {
		_ = file.Close()
		return fmt.Errorf("%w: replay file for %s is empty", ErrNoData, symbol)
	}

	r.files[symbol] = file
	r.offsets[symbol] = offsets
	r.logger.Info("indexed replay data",
		zap.String("symbol", symbol),
		zap.Int("documents", len(offsets)))
	return nil
}

func (r *ReplaySource) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for symbol, file := range r.files {
		if err := file.Close(); err != nil {
			r.logger.Warn("failed to close replay file", zap.String("symbol", symbol), zap.Error(err))
		}
	}
	r.files = nil
	r.offsets = nil
	r.cursors = nil
	return nil
}
