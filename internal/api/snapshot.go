package api

import "context"

// StatusProvider supplies the current engine state. The engine implements
// it; handlers call it per request, so snapshots are never cached here.
type StatusProvider interface {
	Snapshot(ctx context.Context) StatusSnapshot
}

// StopController flips the global kill switch at runtime. Implemented by
// the risk gate.
type StopController interface {
	SetEmergencyStop(active bool)
	EmergencyStopActive() bool
}
