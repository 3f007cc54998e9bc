package usecases

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/sgrlink/internal/modules/music_player/application/events"
	"github.com/sglre6355/sgrlink/internal/modules/music_player/application/ports"
	"github.com/sglre6355/sgrlink/internal/modules/music_player/domain"
)

func mockEntry(id string) domain.QueueEntry {
	return domain.NewQueueEntry(domain.NewTrack("encoded-"+id, domain.TrackInfo{
		Identifier: id,
		Title:      "Track " + id,
		Author:     "Artist",
		Duration:   3 * time.Minute,
	}))
}

// callLog records calls across mocks so tests can assert their order.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(call string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, call)
}

func (l *callLog) get() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

type mockTransport struct {
	name string
	log  *callLog

	mu         sync.Mutex
	updates    []ports.PlayerUpdate
	destroyed  []snowflake.ID
	updateErr  error
	destroyErr error
	loadResult domain.TrackList
	loadErr    error
	playerInfo *ports.PlayerInfo

	version    string
	infoErr    error
	infoCalls  int
	gate       *updateGate

	connectErr error
	streams    chan chan domain.Event
}

// updateGate holds UpdatePlayer calls until release is closed.
type updateGate struct {
	entered chan ports.PlayerUpdate
	release chan struct{}
}

func newMockTransport(name string, log *callLog) *mockTransport {
	return &mockTransport{
		name:    name,
		log:     log,
		version: "4.0.0",
		streams: make(chan chan domain.Event, 8),
	}
}

func (m *mockTransport) Name() string {
	return m.name
}

func (m *mockTransport) Connect(_ context.Context) error {
	return m.connectErr
}

// Listen serves events pushed through the channel handed out by nextStream.
// Closing that channel simulates a dropped connection.
func (m *mockTransport) Listen(ctx context.Context, sink ports.EventSink) error {
	var stream chan domain.Event
	select {
	case stream = <-m.streams:
	case <-ctx.Done():
		return ctx.Err()
	}
	for {
		select {
		case e, ok := <-stream:
			if !ok {
				return errors.New("connection closed")
			}
			sink(e)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (m *mockTransport) nextStream() chan domain.Event {
	stream := make(chan domain.Event, 8)
	m.streams <- stream
	return stream
}

func (m *mockTransport) UpdatePlayer(
	_ context.Context,
	guildID snowflake.ID,
	update ports.PlayerUpdate,
) (*ports.PlayerInfo, error) {
	m.mu.Lock()
	gate := m.gate
	m.mu.Unlock()
	if gate != nil {
		gate.entered <- update
		<-gate.release
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.log.add(m.name + ":update")
	if m.updateErr != nil {
		return nil, m.updateErr
	}
	m.updates = append(m.updates, update)
	return &ports.PlayerInfo{GuildID: guildID}, nil
}

func (m *mockTransport) DestroyPlayer(_ context.Context, guildID snowflake.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.log.add(m.name + ":destroy")
	if m.destroyErr != nil {
		return m.destroyErr
	}
	m.destroyed = append(m.destroyed, guildID)
	return nil
}

func (m *mockTransport) GetPlayer(_ context.Context, guildID snowflake.ID) (*ports.PlayerInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.playerInfo != nil {
		return m.playerInfo, nil
	}
	return &ports.PlayerInfo{GuildID: guildID}, nil
}

func (m *mockTransport) LoadTracks(_ context.Context, _ string) (domain.TrackList, error) {
	return m.loadResult, m.loadErr
}

func (m *mockTransport) DecodeTrack(_ context.Context, encoded string) (domain.Track, error) {
	return domain.NewTrack(encoded, domain.TrackInfo{Identifier: encoded}), nil
}

func (m *mockTransport) Info(_ context.Context) (*ports.NodeInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.infoCalls++
	if m.infoErr != nil {
		return nil, m.infoErr
	}
	return &ports.NodeInfo{Version: m.version}, nil
}

func (m *mockTransport) Close() error {
	return nil
}

func (m *mockTransport) setUpdateErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateErr = err
}

// blockUpdates holds every following UpdatePlayer call until release is called.
// Held calls are announced on the returned channel.
func (m *mockTransport) blockUpdates() (<-chan ports.PlayerUpdate, func()) {
	gate := &updateGate{
		entered: make(chan ports.PlayerUpdate, 16),
		release: make(chan struct{}),
	}
	m.mu.Lock()
	m.gate = gate
	m.mu.Unlock()

	var once sync.Once
	return gate.entered, func() {
		once.Do(func() {
			m.mu.Lock()
			m.gate = nil
			m.mu.Unlock()
			close(gate.release)
		})
	}
}

func (m *mockTransport) getUpdates() []ports.PlayerUpdate {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ports.PlayerUpdate(nil), m.updates...)
}

func (m *mockTransport) lastUpdate() (ports.PlayerUpdate, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.updates) == 0 {
		return ports.PlayerUpdate{}, false
	}
	return m.updates[len(m.updates)-1], true
}

func (m *mockTransport) getInfoCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.infoCalls
}

func (m *mockTransport) getDestroyed() []snowflake.ID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]snowflake.ID(nil), m.destroyed...)
}

type mockVoiceGateway struct {
	log *callLog

	mu       sync.Mutex
	joins    []snowflake.ID
	leaves   []snowflake.ID
	joinErr  error
	leaveErr error
	listener ports.VoiceListener
}

func (m *mockVoiceGateway) Join(_ context.Context, _, channelID snowflake.ID) (ports.VoiceInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.log.add("voice:join")
	if m.joinErr != nil {
		return ports.VoiceInfo{}, m.joinErr
	}
	m.joins = append(m.joins, channelID)
	return ports.VoiceInfo{
		ChannelID: channelID,
		SessionID: "voice-session",
		Token:     "token",
		Endpoint:  "voice.example.com",
	}, nil
}

func (m *mockVoiceGateway) Leave(_ context.Context, guildID snowflake.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.log.add("voice:leave")
	if m.leaveErr != nil {
		return m.leaveErr
	}
	m.leaves = append(m.leaves, guildID)
	return nil
}

func (m *mockVoiceGateway) SetListener(listener ports.VoiceListener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listener = listener
}

func (m *mockVoiceGateway) joinCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.joins)
}

func (m *mockVoiceGateway) leaveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.leaves)
}

type mockRepository struct {
	mu       sync.Mutex
	sessions map[snowflake.ID]*Session
}

func newMockRepository() *mockRepository {
	return &mockRepository{sessions: make(map[snowflake.ID]*Session)}
}

func (m *mockRepository) Get(_ context.Context, guildID snowflake.ID) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[guildID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

func (m *mockRepository) LoadOrStore(_ context.Context, s *Session) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.sessions[s.GuildID()]; ok && existing.Alive() {
		return existing, true
	}
	m.sessions[s.GuildID()] = s
	return s, false
}

func (m *mockRepository) Delete(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sessions[s.GuildID()] != s {
		return ErrSessionNotFound
	}
	delete(m.sessions, s.GuildID())
	return nil
}

func (m *mockRepository) List(_ context.Context) []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	return sessions
}

// testEnv is a client over mock nodes that are marked ready without running supervisors.
type testEnv struct {
	log        *callLog
	nodes      []*mockTransport
	manager    *NodeManager
	voice      *mockVoiceGateway
	repo       *mockRepository
	dispatcher *events.Dispatcher
	client     *Client
}

func newTestEnv(cfg ClientConfig, nodeNames ...string) *testEnv {
	if len(nodeNames) == 0 {
		nodeNames = []string{"main"}
	}

	env := &testEnv{
		log:        &callLog{},
		voice:      &mockVoiceGateway{},
		repo:       newMockRepository(),
		dispatcher: events.NewDispatcher(0),
	}
	env.voice.log = env.log

	transports := make([]ports.NodeTransport, len(nodeNames))
	for i, name := range nodeNames {
		node := newMockTransport(name, env.log)
		env.nodes = append(env.nodes, node)
		transports[i] = node
	}

	env.manager = NewNodeManager(transports, CustomSelector(func(snowflake.ID, []NodeCandidate) int { return 0 }), env.dispatcher.Publish, Backoff{})
	env.client = NewClient(env.manager, env.voice, env.repo, env.dispatcher, cfg)

	for _, name := range nodeNames {
		env.setAvailable(name, true)
	}
	env.dispatcher.Flush()
	return env
}

func (e *testEnv) setAvailable(name string, available bool) {
	n := e.manager.byName[name]
	if available {
		e.manager.handleNodeEvent(context.Background(), n, domain.ReadyEvent{
			EventHeader: domain.EventHeader{NodeName: name},
			SessionID:   "session-" + name,
		})
		return
	}
	e.manager.markUnavailable(n, errors.New("connection lost"))
}

// publish runs an event through the dispatcher and waits until it was handled.
func (e *testEnv) publish(event domain.Event) {
	e.dispatcher.Publish(event)
	e.dispatcher.Flush()
}

func (e *testEnv) close() {
	_ = e.client.Close(context.Background())
	e.dispatcher.Close()
}

func (e *testEnv) connect(t *testing.T, guildID snowflake.ID) *PlayerContext {
	t.Helper()
	p, err := e.client.Connect(context.Background(), ConnectInput{GuildID: guildID, ChannelID: 100})
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	return p
}

func trackEnd(guildID snowflake.ID, node string, entry domain.QueueEntry, reason domain.TrackEndReason) domain.TrackEndEvent {
	return domain.TrackEndEvent{
		EventHeader: domain.EventHeader{GuildID: guildID, NodeName: node},
		Track:       domain.NewTrack(entry.Track.Encoded, entry.Track.Info),
		Reason:      reason,
	}
}

func encodedOf(update ports.PlayerUpdate) string {
	if update.Track == nil || update.Track.Encoded == nil {
		return ""
	}
	return *update.Track.Encoded
}
