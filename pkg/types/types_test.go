package types

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestParseMasterSide(t *testing.T) {
	t.Parallel()

	tests := []struct {
		wire string
		want Side
		ok   bool
	}{
		{"B", BUY, true},
		{"A", SELL, true},
		{"X", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		got, ok := ParseMasterSide(tt.wire)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseMasterSide(%q) = (%q, %v), want (%q, %v)", tt.wire, got, ok, tt.want, tt.ok)
		}
	}
}

func TestSideSignAndOpposite(t *testing.T) {
	t.Parallel()

	if !BUY.Sign().Equal(decimal.NewFromInt(1)) {
		t.Errorf("BUY.Sign() = %s, want 1", BUY.Sign())
	}
	if !SELL.Sign().Equal(decimal.NewFromInt(-1)) {
		t.Errorf("SELL.Sign() = %s, want -1", SELL.Sign())
	}
	if BUY.Opposite() != SELL || SELL.Opposite() != BUY {
		t.Error("Opposite() did not swap sides")
	}
}

func TestParseOrderStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		wire string
		want OrderStatus
		ok   bool
	}{
		{"open", StatusOpen, true},
		{"filled", StatusFilled, true},
		{"triggered", StatusTriggered, true},
		{"canceled", StatusCanceled, true},
		{"rejected", StatusCanceled, true},
		{"marginCanceled", StatusCanceled, true},
		{"liquidatedCanceled", StatusCanceled, true},
		{"queued", "", false},
	}

	for _, tt := range tests {
		got, ok := ParseOrderStatus(tt.wire)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseOrderStatus(%q) = (%q, %v), want (%q, %v)", tt.wire, got, ok, tt.want, tt.ok)
		}
	}
}

func TestExecStatusTerminal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status ExecStatus
		want   bool
	}{
		{ExecNew, false},
		{ExecPartiallyFilled, false},
		{ExecFilled, true},
		{ExecCanceled, true},
		{ExecExpired, true},
		{ExecRejected, true},
	}

	for _, tt := range tests {
		if got := tt.status.Terminal(); got != tt.want {
			t.Errorf("ExecStatus(%q).Terminal() = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func testInstrument() Instrument {
	return Instrument{
		Coin:         "BTC",
		Symbol:       "BTCUSDT",
		SizeDecimals: 3,
		PriceTick:    decimal.NewFromFloat(0.1),
		MinOpenSize:  decimal.NewFromFloat(0.002),
		MinCloseSize: decimal.NewFromFloat(0.002),
	}
}

func TestInstrumentSnapPrice(t *testing.T) {
	t.Parallel()

	inst := testInstrument()

	tests := []struct {
		px   float64
		want string
	}{
		{30000.0, "30000.0"},
		{30000.04, "30000.0"}, // rounds down to tick
		{30000.05, "30000.1"}, // rounds half away from zero
		{30000.16, "30000.2"}, // rounds up to tick
		{29999.99, "30000.0"},
		{0.05, "0.1"},
	}

	for _, tt := range tests {
		if got := inst.FormatPrice(decimal.NewFromFloat(tt.px)); got != tt.want {
			t.Errorf("FormatPrice(%v) = %q, want %q", tt.px, got, tt.want)
		}
	}
}

func TestInstrumentTickDecimals(t *testing.T) {
	t.Parallel()

	tests := []struct {
		tick float64
		want int32
	}{
		{0.1, 1},
		{0.01, 2},
		{0.0001, 4},
		{1, 0},
	}

	for _, tt := range tests {
		inst := Instrument{PriceTick: decimal.NewFromFloat(tt.tick)}
		if got := inst.TickDecimals(); got != tt.want {
			t.Errorf("TickDecimals() with tick %v = %d, want %d", tt.tick, got, tt.want)
		}
	}
}

func TestInstrumentFormatSize(t *testing.T) {
	t.Parallel()

	inst := testInstrument()

	tests := []struct {
		q    float64
		want string
	}{
		{0.002, "0.002"},
		{0.0015, "0.002"}, // half away from zero
		{0.0014, "0.001"},
		{1.23456, "1.235"},
	}

	for _, tt := range tests {
		if got := inst.FormatSize(decimal.NewFromFloat(tt.q)); got != tt.want {
			t.Errorf("FormatSize(%v) = %q, want %q", tt.q, got, tt.want)
		}
	}
}

func TestInstrumentMinSize(t *testing.T) {
	t.Parallel()

	inst := testInstrument()
	inst.MinCloseSize = decimal.NewFromFloat(0.001)

	if got := inst.MinSize(ActionOpen); !got.Equal(decimal.NewFromFloat(0.002)) {
		t.Errorf("MinSize(open) = %s, want 0.002", got)
	}
	if got := inst.MinSize(ActionClose); !got.Equal(decimal.NewFromFloat(0.001)) {
		t.Errorf("MinSize(close) = %s, want 0.001", got)
	}
}

func TestMasterOrderEventSignedSize(t *testing.T) {
	t.Parallel()

	buy := MasterOrderEvent{Side: BUY, Size: decimal.NewFromFloat(0.02)}
	sell := MasterOrderEvent{Side: SELL, Size: decimal.NewFromFloat(0.02)}

	if !buy.SignedSize().Equal(decimal.NewFromFloat(0.02)) {
		t.Errorf("BUY signed size = %s, want 0.02", buy.SignedSize())
	}
	if !sell.SignedSize().Equal(decimal.NewFromFloat(-0.02)) {
		t.Errorf("SELL signed size = %s, want -0.02", sell.SignedSize())
	}
}

func TestMasterFillEventID(t *testing.T) {
	t.Parallel()

	ts := time.UnixMilli(1700000000123)
	ev := MasterFillEvent{Coin: "BTC", Size: decimal.NewFromFloat(0.02), Time: ts}

	want := "fill:BTC:1700000000123:0.02"
	if got := ev.EventID(); got != want {
		t.Errorf("EventID() = %q, want %q", got, want)
	}

	// Identical parameters must produce the identical id: that is what makes
	// redelivered fills deduplicable.
	dup := MasterFillEvent{Coin: "BTC", Size: decimal.NewFromFloat(0.02), Time: ts}
	if dup.EventID() != ev.EventID() {
		t.Error("identical fills produced different event ids")
	}
}
