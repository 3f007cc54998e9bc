package usecases

import (
	"sync/atomic"

	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/sgrlink/internal/modules/music_player/domain"
)

// NodeCandidate is what a NodeSelector knows about one configured node.
type NodeCandidate struct {
	Name      string
	Available bool
	Guilds    int               // sessions pinned to the node
	Stats     *domain.NodeStats // nil until the node reported stats
}

// Load scores the node for balancing; lower is better. A node that has not
// reported stats yet is scored as idle, plus its pinned sessions.
func (c NodeCandidate) Load() float64 {
	var stats domain.NodeStats
	if c.Stats != nil {
		stats = *c.Stats
	}
	return stats.Penalty() + float64(c.Guilds)
}

// FreeMemory returns the node's free memory in bytes, or 0 without stats.
func (c NodeCandidate) FreeMemory() int64 {
	if c.Stats == nil {
		return 0
	}
	return c.Stats.Memory.Free
}

// NodeSelector picks the node a new session is pinned to.
type NodeSelector interface {
	// SelectNode returns an index into nodes, or -1 if none fits.
	SelectNode(guildID snowflake.ID, nodes []NodeCandidate) int
}

// ShardedSelector spreads guilds over nodes by guild ID modulo node count.
// The pick ignores availability, so a guild always lands on the same node.
type ShardedSelector struct{}

// SelectNode implements NodeSelector.
func (ShardedSelector) SelectNode(guildID snowflake.ID, nodes []NodeCandidate) int {
	if len(nodes) == 0 {
		return -1
	}
	return int(uint64(guildID) % uint64(len(nodes)))
}

// RoundRobinSelector hands out available nodes in turn.
type RoundRobinSelector struct {
	next atomic.Uint64
}

// SelectNode implements NodeSelector.
func (s *RoundRobinSelector) SelectNode(_ snowflake.ID, nodes []NodeCandidate) int {
	count := uint64(len(nodes))
	for range nodes {
		idx := int((s.next.Add(1) - 1) % count)
		if nodes[idx].Available {
			return idx
		}
	}
	return -1
}

// MainFallbackSelector picks the first available node in configuration order.
type MainFallbackSelector struct{}

// SelectNode implements NodeSelector.
func (MainFallbackSelector) SelectNode(_ snowflake.ID, nodes []NodeCandidate) int {
	for i, n := range nodes {
		if n.Available {
			return i
		}
	}
	return -1
}

// LowestLoadSelector picks the available node with the lowest Load.
type LowestLoadSelector struct{}

// SelectNode implements NodeSelector.
func (LowestLoadSelector) SelectNode(_ snowflake.ID, nodes []NodeCandidate) int {
	best := -1
	for i, n := range nodes {
		if !n.Available {
			continue
		}
		if best < 0 || n.Load() < nodes[best].Load() {
			best = i
		}
	}
	return best
}

// HighestFreeMemorySelector picks the available node with the most free memory.
type HighestFreeMemorySelector struct{}

// SelectNode implements NodeSelector.
func (HighestFreeMemorySelector) SelectNode(_ snowflake.ID, nodes []NodeCandidate) int {
	best := -1
	for i, n := range nodes {
		if !n.Available {
			continue
		}
		if best < 0 || n.FreeMemory() > nodes[best].FreeMemory() {
			best = i
		}
	}
	return best
}

// CustomSelector adapts a function to NodeSelector.
type CustomSelector func(guildID snowflake.ID, nodes []NodeCandidate) int

// SelectNode implements NodeSelector.
func (f CustomSelector) SelectNode(guildID snowflake.ID, nodes []NodeCandidate) int {
	return f(guildID, nodes)
}

// ParseSelector returns the selector registered under name.
// Unknown names fall back to ShardedSelector.
func ParseSelector(name string) NodeSelector {
	switch name {
	case "round_robin":
		return &RoundRobinSelector{}
	case "main_fallback", "first":
		return MainFallbackSelector{}
	case "lowest_load":
		return LowestLoadSelector{}
	case "highest_free_memory":
		return HighestFreeMemorySelector{}
	default:
		return ShardedSelector{}
	}
}
