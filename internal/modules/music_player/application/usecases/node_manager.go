package usecases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/sgrlink/internal/modules/music_player/application/ports"
	"github.com/sglre6355/sgrlink/internal/modules/music_player/domain"
)

// NodeStatus is a snapshot of one node for monitoring.
type NodeStatus struct {
	Name      string
	Available bool
	SessionID string
	Guilds    int
	Stats     *domain.NodeStats
	LastError error
	// PendingReleases counts players left on the node while it was down.
	PendingReleases int
}

type managedNode struct {
	transport ports.NodeTransport
	available atomic.Bool

	// releaseMu orders player releases against new bindings of the same guild.
	releaseMu sync.Mutex

	mu        sync.Mutex
	sessionID string
	guilds    map[snowflake.ID]struct{}
	releases  map[snowflake.ID]struct{}
	stats     *domain.NodeStats
	lastErr   error
}

func (n *managedNode) candidate() NodeCandidate {
	n.mu.Lock()
	defer n.mu.Unlock()
	return NodeCandidate{
		Name:      n.transport.Name(),
		Available: n.available.Load(),
		Guilds:    len(n.guilds),
		Stats:     n.stats,
	}
}

func (n *managedNode) deferRelease(guildID snowflake.ID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.releases[guildID] = struct{}{}
}

// takeReleases empties the pending releases, skipping guilds that were bound
// to the node again since.
func (n *managedNode) takeReleases() []snowflake.ID {
	n.mu.Lock()
	defer n.mu.Unlock()

	ids := make([]snowflake.ID, 0, len(n.releases))
	for id := range n.releases {
		if _, bound := n.guilds[id]; !bound {
			ids = append(ids, id)
		}
		delete(n.releases, id)
	}
	return ids
}

func (n *managedNode) boundGuilds() []snowflake.ID {
	n.mu.Lock()
	defer n.mu.Unlock()

	ids := make([]snowflake.ID, 0, len(n.guilds))
	for id := range n.guilds {
		ids = append(ids, id)
	}
	return ids
}

// NodeManager keeps one supervised connection per node and pins guilds to nodes.
type NodeManager struct {
	nodes    []*managedNode
	byName   map[string]*managedNode
	selector NodeSelector
	publish  ports.EventSink
	backoff  Backoff

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewNodeManager creates a new NodeManager. Events from every node, plus the
// NodeUnavailableEvents the manager emits, are passed to publish.
func NewNodeManager(
	transports []ports.NodeTransport,
	selector NodeSelector,
	publish ports.EventSink,
	backoff Backoff,
) *NodeManager {
	if selector == nil {
		selector = ShardedSelector{}
	}

	m := &NodeManager{
		nodes:    make([]*managedNode, 0, len(transports)),
		byName:   make(map[string]*managedNode, len(transports)),
		selector: selector,
		publish:  publish,
		backoff:  backoff,
	}
	for _, t := range transports {
		n := &managedNode{
			transport: t,
			guilds:    make(map[snowflake.ID]struct{}),
			releases:  make(map[snowflake.ID]struct{}),
		}
		m.nodes = append(m.nodes, n)
		m.byName[t.Name()] = n
	}
	return m
}

// Start launches one supervisor per node. It does not wait for connections.
func (m *NodeManager) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)

	for _, n := range m.nodes {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			m.supervise(ctx, n)
		}()
	}
}

// Close stops every supervisor and closes the transports.
func (m *NodeManager) Close() error {
	if m.cancel != nil {
		m.cancel()
	}

	var errs []error
	for _, n := range m.nodes {
		n.available.Store(false)
		if err := n.transport.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close node %s: %w", n.transport.Name(), err))
		}
	}
	m.wg.Wait()

	return errors.Join(errs...)
}

func (m *NodeManager) supervise(ctx context.Context, n *managedNode) {
	name := n.transport.Name()
	attempt := 0

	for {
		var ready atomic.Bool
		err := n.transport.Connect(ctx)
		if err == nil {
			slog.Debug("connected to node", "node", name)
			err = n.transport.Listen(ctx, func(e domain.Event) {
				if _, ok := e.(domain.ReadyEvent); ok {
					ready.Store(true)
				}
				m.handleNodeEvent(ctx, n, e)
			})
		}
		if ctx.Err() != nil {
			return
		}
		if ready.Load() {
			attempt = 0
		}

		m.markUnavailable(n, err)

		delay := m.backoff.Delay(attempt)
		attempt++
		slog.Warn("lost node connection, reconnecting",
			"node", name,
			"attempt", attempt,
			"delay", delay,
			"error", err,
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (m *NodeManager) handleNodeEvent(ctx context.Context, n *managedNode, e domain.Event) {
	switch ev := e.(type) {
	case domain.ReadyEvent:
		n.mu.Lock()
		n.sessionID = ev.SessionID
		n.lastErr = nil
		n.mu.Unlock()
		n.available.Store(true)
		slog.Info("node ready", "node", ev.NodeName, "session", ev.SessionID, "resumed", ev.Resumed)

		// A fresh session has no players left; a resumed one still runs
		// the players released while the node was down.
		pending := n.takeReleases()
		if ev.Resumed {
			m.releaseAll(ctx, n, pending)
		}
	case domain.StatsEvent:
		stats := ev.Stats
		n.mu.Lock()
		n.stats = &stats
		n.mu.Unlock()
	}

	if m.publish != nil {
		m.publish(e)
	}
}

func (m *NodeManager) markUnavailable(n *managedNode, cause error) {
	n.mu.Lock()
	n.lastErr = cause
	n.mu.Unlock()

	if !n.available.Swap(false) {
		return
	}

	guilds := n.boundGuilds()
	slog.Error("node unavailable", "node", n.transport.Name(), "guilds", len(guilds), "error", cause)

	if m.publish == nil {
		return
	}
	for _, guildID := range guilds {
		m.publish(domain.NodeUnavailableEvent{
			EventHeader: domain.EventHeader{GuildID: guildID, NodeName: n.transport.Name()},
			Err:         cause,
		})
	}
}

// Release destroys guildID's player on the node called name. While the node
// is down the release is kept and sent once the node resumes its session.
func (m *NodeManager) Release(ctx context.Context, guildID snowflake.ID, name string) error {
	n, ok := m.byName[name]
	if !ok {
		return nil
	}

	if !n.available.Load() {
		n.deferRelease(guildID)
		slog.Debug("deferred player release", "guild", guildID, "node", name)
		// The node may have come back while the release was recorded.
		if n.available.Load() {
			m.releaseAll(ctx, n, n.takeReleases())
		}
		return nil
	}

	n.releaseMu.Lock()
	defer n.releaseMu.Unlock()

	err := n.transport.DestroyPlayer(ctx, guildID)
	if err != nil && !n.available.Load() {
		n.deferRelease(guildID)
		slog.Debug("deferred player release", "guild", guildID, "node", name, "error", err)
		return nil
	}
	return err
}

func (m *NodeManager) releaseAll(ctx context.Context, n *managedNode, guilds []snowflake.ID) {
	for _, guildID := range guilds {
		if err := m.releaseOne(ctx, n, guildID); err != nil {
			slog.Warn("failed to release player", "guild", guildID, "node", n.transport.Name(), "error", err)
			continue
		}
		slog.Info("released player left during outage", "guild", guildID, "node", n.transport.Name())
	}
}

func (m *NodeManager) releaseOne(ctx context.Context, n *managedNode, guildID snowflake.ID) error {
	n.releaseMu.Lock()
	defer n.releaseMu.Unlock()

	n.mu.Lock()
	_, bound := n.guilds[guildID]
	n.mu.Unlock()
	if bound {
		return nil
	}
	return n.transport.DestroyPlayer(ctx, guildID)
}

func (m *NodeManager) candidates() []NodeCandidate {
	candidates := make([]NodeCandidate, len(m.nodes))
	for i, n := range m.nodes {
		candidates[i] = n.candidate()
	}
	return candidates
}

// Select picks the node for a new session of guildID.
func (m *NodeManager) Select(guildID snowflake.ID) (ports.NodeTransport, error) {
	count := len(m.nodes)
	if count == 0 {
		return nil, fmt.Errorf("%w: no nodes configured", domain.ErrNodeUnavailable)
	}

	idx := m.selector.SelectNode(guildID, m.candidates())
	if idx < 0 || idx >= count {
		return nil, fmt.Errorf("%w: selector returned %d for %d nodes", domain.ErrNodeUnavailable, idx, count)
	}

	n := m.nodes[idx]
	if !n.available.Load() {
		return nil, fmt.Errorf("%w: %s", domain.ErrNodeUnavailable, n.transport.Name())
	}
	return n.transport, nil
}

// BestNode returns the available node with the lowest load.
func (m *NodeManager) BestNode() (ports.NodeTransport, error) {
	idx := LowestLoadSelector{}.SelectNode(0, m.candidates())
	if idx < 0 {
		return nil, fmt.Errorf("%w: no node is connected", domain.ErrNodeUnavailable)
	}
	return m.nodes[idx].transport, nil
}

// Node returns the node called name.
func (m *NodeManager) Node(name string) (ports.NodeTransport, bool) {
	n, ok := m.byName[name]
	if !ok {
		return nil, false
	}
	return n.transport, true
}

// IsAvailable reports whether the node called name is connected and ready.
func (m *NodeManager) IsAvailable(name string) bool {
	n, ok := m.byName[name]
	return ok && n.available.Load()
}

// Stats returns the last stats the node called name reported.
func (m *NodeManager) Stats(name string) (domain.NodeStats, bool) {
	n, ok := m.byName[name]
	if !ok {
		return domain.NodeStats{}, false
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.stats == nil {
		return domain.NodeStats{}, false
	}
	return *n.stats, true
}

// Bind records that guildID's session lives on the node called name.
// A release of the guild's previous player on that node is dropped, since
// the new session takes the player over.
func (m *NodeManager) Bind(guildID snowflake.ID, name string) {
	n, ok := m.byName[name]
	if !ok {
		return
	}
	n.releaseMu.Lock()
	defer n.releaseMu.Unlock()

	n.mu.Lock()
	defer n.mu.Unlock()
	n.guilds[guildID] = struct{}{}
	delete(n.releases, guildID)
}

// Unbind removes guildID from the node called name.
func (m *NodeManager) Unbind(guildID snowflake.ID, name string) {
	n, ok := m.byName[name]
	if !ok {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.guilds, guildID)
}

// Status returns a snapshot of every node in configuration order.
func (m *NodeManager) Status() []NodeStatus {
	statuses := make([]NodeStatus, len(m.nodes))
	for i, n := range m.nodes {
		n.mu.Lock()
		statuses[i] = NodeStatus{
			Name:      n.transport.Name(),
			Available: n.available.Load(),
			SessionID: n.sessionID,
			Guilds:    len(n.guilds),
			Stats:     n.stats,
			LastError: n.lastErr,

			PendingReleases: len(n.releases),
		}
		n.mu.Unlock()
	}
	return statuses
}
