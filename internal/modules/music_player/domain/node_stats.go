package domain

import "time"

// NodeStats is a point-in-time report of a node's load.
type NodeStats struct {
	Players        int
	PlayingPlayers int
	Uptime         time.Duration
	Memory         MemoryStats
	CPU            CPUStats
	FrameStats     *FrameStats // nil when the node has no players
}

// MemoryStats reports node memory in bytes.
type MemoryStats struct {
	Free       int64
	Used       int64
	Allocated  int64
	Reservable int64
}

// CPUStats reports node CPU usage.
type CPUStats struct {
	Cores        int
	SystemLoad   float64
	LavalinkLoad float64
}

// FrameStats reports audio frames over the last minute.
type FrameStats struct {
	Sent    int
	Nulled  int
	Deficit int
}

// Penalty returns a load score for the node; lower is better.
func (s NodeStats) Penalty() float64 {
	penalty := float64(s.PlayingPlayers) + s.CPU.SystemLoad*100
	if s.FrameStats != nil {
		penalty += float64(s.FrameStats.Deficit+s.FrameStats.Nulled*2) / 100
	}
	return penalty
}
