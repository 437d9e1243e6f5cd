package chain

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
)

func writeReplayFile(t *testing.T, dir, symbol, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, symbol+".jsonl"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

const replayDocs = `{"spot": 500, "items": [{"strike": 500, "open_interest": 10, "gamma": 0.01}]}

{"spot": 501, "items": [{"strike": 501, "open_interest": 10, "gamma": 0.01}]}
`

func TestReplaySourceAdvancesAndExhausts(t *testing.T) {
	dir := t.TempDir()
	writeReplayFile(t, dir, "SPY", replayDocs)

	src := NewReplaySource(dir, 0.03, false, zap.NewNop())
	defer src.Close()

	ctx := context.Background()
	first, err := src.Snapshot(ctx, "SPY")
	if err != nil {
		t.Fatalf("first Snapshot: %v", err)
	}
	if first.Spot != 500 {
		t.Errorf("first spot = %v, want 500", first.Spot)
	}

	second, err := src.Snapshot(ctx, "SPY")
	if err != nil {
		t.Fatalf("second Snapshot: %v", err)
	}
	if second.Spot != 501 {
		t.Errorf("second spot = %v, want 501 (empty line skipped)", second.Spot)
	}

	if _, err := src.Snapshot(ctx, "SPY"); !errors.Is(err, ErrExhausted) {
		t.Errorf("third Snapshot err = %v, want ErrExhausted", err)
	}
}

func TestReplaySourceLoops(t *testing.T) {
	dir := t.TempDir()
	writeReplayFile(t, dir, "SPY", replayDocs)

	src := NewReplaySource(dir, 0.03, true, zap.NewNop())
	defer src.Close()

	ctx := context.Background()
	spots := make([]float64, 0, 3)
	for i := 0; i < 3; i++ {
		snap, err := src.Snapshot(ctx, "SPY")
		if err != nil {
			t.Fatalf("Snapshot %d: %v", i, err)
		}
		spots = append(spots, snap.Spot)
	}

	want := []float64{500, 501, 500}
	for i := range want {
		if spots[i] != want[i] {
			t.Errorf("spot %d = %v, want %v", i, spots[i], want[i])
		}
	}
}

func TestReplaySourceMissingFile(t *testing.T) {
	src := NewReplaySource(t.TempDir(), 0.03, false, zap.NewNop())
	defer src.Close()

	if _, err := src.Snapshot(context.Background(), "SPY"); err == nil {
		t.Error("missing replay file produced no error")
	}
}

func TestReplaySourceEmptyFile(t *testing.T) {
	dir := t.TempDir()
	writeReplayFile(t, dir, "SPY", "\n\n")

	src := NewReplaySource(dir, 0.03, false, zap.NewNop())
	defer src.Close()

	if _, err := src.Snapshot(context.Background(), "SPY"); !errors.Is(err, ErrNoData) {
		t.Errorf("err = %v, want ErrNoData", err)
	}
}
