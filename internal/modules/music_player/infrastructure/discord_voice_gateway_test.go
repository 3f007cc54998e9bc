package infrastructure

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/sgrlink/internal/modules/music_player/application/ports"
)

const (
	testBotID     snowflake.ID = 999
	testGuildID   snowflake.ID = 1
	testChannelID snowflake.ID = 100
)

type voiceStateCall struct {
	guildID   string
	channelID string
	deaf      bool
}

// mockVoiceStateSender is a test double for VoiceStateSender.
type mockVoiceStateSender struct {
	mu    sync.Mutex
	calls []voiceStateCall
	err   error

	// onSend runs after a successful send, outside the lock.
	onSend func(call voiceStateCall)
}

func (m *mockVoiceStateSender) ChannelVoiceJoinManual(gID, cID string, _, deaf bool) error {
	m.mu.Lock()
	if m.err != nil {
		m.mu.Unlock()
		return m.err
	}
	call := voiceStateCall{guildID: gID, channelID: cID, deaf: deaf}
	m.calls = append(m.calls, call)
	onSend := m.onSend
	m.mu.Unlock()

	if onSend != nil {
		onSend(call)
	}
	return nil
}

func (m *mockVoiceStateSender) sent() []voiceStateCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]voiceStateCall(nil), m.calls...)
}

// mockVoiceListener is a test double for ports.VoiceListener.
type mockVoiceListener struct {
	mu           sync.Mutex
	updates      []ports.VoiceInfo
	disconnected []snowflake.ID
}

func (m *mockVoiceListener) VoiceServerUpdated(_ snowflake.ID, info ports.VoiceInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates = append(m.updates, info)
}

func (m *mockVoiceListener) VoiceDisconnected(guildID snowflake.ID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disconnected = append(m.disconnected, guildID)
}

func (m *mockVoiceListener) counts() (int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.updates), len(m.disconnected)
}

func voiceStateEvent(userID snowflake.ID, channelID, sessionID string) *discordgo.VoiceStateUpdate {
	return &discordgo.VoiceStateUpdate{
		VoiceState: &discordgo.VoiceState{
			GuildID:   testGuildID.String(),
			ChannelID: channelID,
			UserID:    userID.String(),
			SessionID: sessionID,
		},
	}
}

func voiceServerEvent(token, endpoint string) *discordgo.VoiceServerUpdate {
	return &discordgo.VoiceServerUpdate{
		GuildID:  testGuildID.String(),
		Token:    token,
		Endpoint: endpoint,
	}
}

func TestDiscordVoiceGateway_Join(t *testing.T) {
	tests := []struct {
		name        string
		serverFirst bool
	}{
		{name: "state then server", serverFirst: false},
		{name: "server then state", serverFirst: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := &mockVoiceStateSender{}
			gateway := NewDiscordVoiceGateway(sender, testBotID)

			sender.onSend = func(voiceStateCall) {
				go func() {
					if tt.serverFirst {
						gateway.OnVoiceServerUpdate(voiceServerEvent("token", "voice.example.com"))
						gateway.OnVoiceStateUpdate(voiceStateEvent(testBotID, testChannelID.String(), "sess"))
						return
					}
					gateway.OnVoiceStateUpdate(voiceStateEvent(testBotID, testChannelID.String(), "sess"))
					gateway.OnVoiceServerUpdate(voiceServerEvent("token", "voice.example.com"))
				}()
			}

			info, err := gateway.Join(context.Background(), testGuildID, testChannelID)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			expected := ports.VoiceInfo{
				ChannelID: testChannelID,
				SessionID: "sess",
				Token:     "token",
				Endpoint:  "voice.example.com",
			}
			if info != expected {
				t.Errorf("expected %+v, got %+v", expected, info)
			}

			calls := sender.sent()
			if len(calls) != 1 {
				t.Fatalf("expected 1 voice state update, got %d", len(calls))
			}
			if calls[0].channelID != testChannelID.String() {
				t.Errorf("expected channel %s, got %s", testChannelID, calls[0].channelID)
			}
			if !calls[0].deaf {
				t.Error("expected self deaf join")
			}
		})
	}
}

func TestDiscordVoiceGateway_JoinIgnoresOtherUsers(t *testing.T) {
	sender := &mockVoiceStateSender{}
	gateway := NewDiscordVoiceGateway(sender, testBotID)
	gateway.timeout = 50 * time.Millisecond

	sender.onSend = func(voiceStateCall) {
		go func() {
			gateway.OnVoiceStateUpdate(voiceStateEvent(12345, testChannelID.String(), "other"))
			gateway.OnVoiceServerUpdate(voiceServerEvent("token", "voice.example.com"))
		}()
	}

	_, err := gateway.Join(context.Background(), testGuildID, testChannelID)
	if !errors.Is(err, ErrVoiceTimeout) {
		t.Errorf("expected ErrVoiceTimeout, got %v", err)
	}
}

func TestDiscordVoiceGateway_JoinIncompleteServer(t *testing.T) {
	sender := &mockVoiceStateSender{}
	gateway := NewDiscordVoiceGateway(sender, testBotID)
	gateway.timeout = 50 * time.Millisecond

	// A null endpoint means Discord is still allocating a voice server.
	sender.onSend = func(voiceStateCall) {
		go func() {
			gateway.OnVoiceStateUpdate(voiceStateEvent(testBotID, testChannelID.String(), "sess"))
			gateway.OnVoiceServerUpdate(voiceServerEvent("token", ""))
		}()
	}

	_, err := gateway.Join(context.Background(), testGuildID, testChannelID)
	if !errors.Is(err, ErrVoiceTimeout) {
		t.Errorf("expected ErrVoiceTimeout, got %v", err)
	}
}

func TestDiscordVoiceGateway_JoinSendError(t *testing.T) {
	sender := &mockVoiceStateSender{err: errors.New("gateway closed")}
	gateway := NewDiscordVoiceGateway(sender, testBotID)

	_, err := gateway.Join(context.Background(), testGuildID, testChannelID)
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	gateway.mu.Lock()
	_, pending := gateway.pending[testGuildID]
	gateway.mu.Unlock()
	if pending {
		t.Error("expected pending join to be removed")
	}
}

func TestDiscordVoiceGateway_JoinContextCancelled(t *testing.T) {
	sender := &mockVoiceStateSender{}
	gateway := NewDiscordVoiceGateway(sender, testBotID)

	ctx, cancel := context.WithCancel(context.Background())
	sender.onSend = func(voiceStateCall) { cancel() }

	_, err := gateway.Join(ctx, testGuildID, testChannelID)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestDiscordVoiceGateway_ForwardsUpdatesAfterJoin(t *testing.T) {
	sender := &mockVoiceStateSender{}
	gateway := NewDiscordVoiceGateway(sender, testBotID)
	listener := &mockVoiceListener{}
	gateway.SetListener(listener)

	sender.onSend = func(voiceStateCall) {
		go func() {
			gateway.OnVoiceStateUpdate(voiceStateEvent(testBotID, testChannelID.String(), "sess"))
			gateway.OnVoiceServerUpdate(voiceServerEvent("token", "voice.example.com"))
		}()
	}
	if _, err := gateway.Join(context.Background(), testGuildID, testChannelID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	updates, _ := listener.counts()
	if updates != 0 {
		t.Fatalf("expected join events not to be forwarded, got %d", updates)
	}

	// Unchanged voice state is not forwarded.
	gateway.OnVoiceStateUpdate(voiceStateEvent(testBotID, testChannelID.String(), "sess"))
	updates, _ = listener.counts()
	if updates != 0 {
		t.Errorf("expected 0 updates, got %d", updates)
	}

	// Voice server moved.
	gateway.OnVoiceServerUpdate(voiceServerEvent("token2", "voice2.example.com"))
	// Bot dragged to another channel.
	gateway.OnVoiceStateUpdate(voiceStateEvent(testBotID, "200", "sess"))

	listener.mu.Lock()
	defer listener.mu.Unlock()
	if len(listener.updates) != 2 {
		t.Fatalf("expected 2 updates, got %d", len(listener.updates))
	}
	if listener.updates[0].Endpoint != "voice2.example.com" {
		t.Errorf("expected endpoint voice2.example.com, got %s", listener.updates[0].Endpoint)
	}
	if listener.updates[1].ChannelID != 200 {
		t.Errorf("expected channel 200, got %d", listener.updates[1].ChannelID)
	}
}

func TestDiscordVoiceGateway_Disconnect(t *testing.T) {
	tests := []struct {
		name                 string
		leave                bool
		expectedDisconnected int
	}{
		{name: "removed by another user", leave: false, expectedDisconnected: 1},
		{name: "requested leave", leave: true, expectedDisconnected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := &mockVoiceStateSender{}
			gateway := NewDiscordVoiceGateway(sender, testBotID)
			listener := &mockVoiceListener{}
			gateway.SetListener(listener)

			gateway.OnVoiceStateUpdate(voiceStateEvent(testBotID, testChannelID.String(), "sess"))

			if tt.leave {
				if err := gateway.Leave(context.Background(), testGuildID); err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				calls := sender.sent()
				if len(calls) != 1 || calls[0].channelID != "" {
					t.Fatalf("expected a single leave update, got %+v", calls)
				}
			}

			gateway.OnVoiceStateUpdate(voiceStateEvent(testBotID, "", ""))

			_, disconnected := listener.counts()
			if disconnected != tt.expectedDisconnected {
				t.Errorf("expected %d disconnects, got %d", tt.expectedDisconnected, disconnected)
			}

			gateway.mu.Lock()
			_, buffered := gateway.buffers[testGuildID]
			_, leaving := gateway.leaving[testGuildID]
			gateway.mu.Unlock()
			if buffered {
				t.Error("expected buffer to be cleared")
			}
			if leaving {
				t.Error("expected leaving flag to be consumed")
			}
		})
	}
}

func TestDiscordVoiceGateway_LeaveError(t *testing.T) {
	sender := &mockVoiceStateSender{err: errors.New("gateway closed")}
	gateway := NewDiscordVoiceGateway(sender, testBotID)

	if err := gateway.Leave(context.Background(), testGuildID); err == nil {
		t.Fatal("expected error, got nil")
	}

	gateway.mu.Lock()
	_, leaving := gateway.leaving[testGuildID]
	gateway.mu.Unlock()
	if leaving {
		t.Error("expected leaving flag to be reset")
	}
}
