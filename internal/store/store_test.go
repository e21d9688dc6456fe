package store

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/shopspring/decimal"
)

// newTestStore opens a Store against an in-process Redis. The miniredis
// handle is returned so tests can fast-forward time for TTL behavior.
func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)

	s, err := Open(context.Background(), mr.Addr(), "", 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func TestScaledConversionRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []string{"0", "0.02", "-0.02", "1", "-12.34567891", "0.00000001", "123456.789"}
	for _, tt := range tests {
		d, err := decimal.NewFromString(tt)
		if err != nil {
			t.Fatalf("parse %q: %v", tt, err)
		}
		got := fromScaled(toScaled(d))
		if !got.Equal(d.Truncate(deltaScale)) {
			t.Errorf("round trip %q = %s", tt, got)
		}
	}
}

func TestScaledTruncatesBeyondScale(t *testing.T) {
	t.Parallel()

	d := decimal.RequireFromString("0.123456789") // 9 dp, scale is 8
	if got := fromScaled(toScaled(d)); !got.Equal(decimal.RequireFromString("0.12345678")) {
		t.Errorf("toScaled kept sub-scale digits: %s", got)
	}
}

func TestOpenRejectsUnreachableAddr(t *testing.T) {
	t.Parallel()

	if _, err := Open(context.Background(), "127.0.0.1:1", "", 0); err == nil {
		t.Error("Open succeeded against a dead address")
	}
}
