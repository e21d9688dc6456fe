package binance

import (
	"fmt"
	"sync"
	"time"
)

// clientIDPrefix marks orders placed by this engine. The full id must fit
// the venue's 36-char client order id limit.
const clientIDPrefix = "pm-"

// IDGenerator produces unique client order ids: prefix, unix seconds, and a
// rolling per-second sequence so bursts within one second stay unique.
type IDGenerator struct {
	mu      sync.Mutex
	lastSec int64
	seq     int
}

// NewIDGenerator creates a generator.
func NewIDGenerator() *IDGenerator {
	return &IDGenerator{}
}

// Next returns a fresh client order id.
func (g *IDGenerator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now().Unix()
	if now == g.lastSec {
		g.seq++
	} else {
		g.lastSec = now
		g.seq = 0
	}
	return fmt.Sprintf("%s%d%03d", clientIDPrefix, now, g.seq%1000)
}
