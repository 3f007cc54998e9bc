package music_player

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Config holds the music player module configuration.
type Config struct {
	// LavalinkNodes lists nodes as "name=host:port" or "host:port".
	LavalinkNodes    []string `env:"LAVALINK_NODES,notEmpty" envSeparator:","`
	LavalinkPassword string   `env:"LAVALINK_PASSWORD,notEmpty"`
	LavalinkSecure   bool     `env:"LAVALINK_SECURE" envDefault:"false"`

	// NodeSelection is one of "sharded", "round_robin", "main_fallback" ("first"),
	// "lowest_load" or "highest_free_memory".
	NodeSelection string        `env:"LAVALINK_SELECTION" envDefault:"sharded"`
	ReconnectMin  time.Duration `env:"LAVALINK_RECONNECT_MIN" envDefault:"1s"`
	ReconnectMax  time.Duration `env:"LAVALINK_RECONNECT_MAX" envDefault:"30s"`
	ResumeTimeout time.Duration `env:"LAVALINK_RESUME_TIMEOUT" envDefault:"60s"`

	RequestTimeout    time.Duration `env:"LAVALINK_REQUEST_TIMEOUT" envDefault:"10s"`
	RequestsPerSecond float64       `env:"LAVALINK_REQUESTS_PER_SECOND" envDefault:"20"`
	RequestBurst      int           `env:"LAVALINK_REQUEST_BURST" envDefault:"10"`

	GracePeriod time.Duration `env:"PLAYER_GRACE_PERIOD" envDefault:"30s"`
	Failover    bool          `env:"PLAYER_FAILOVER" envDefault:"true"`
}

// NodeAddress is one parsed entry of LavalinkNodes.
type NodeAddress struct {
	Name    string
	Address string
}

// NodeAddresses parses LavalinkNodes. Unnamed entries are called "node-<index>".
func (c *Config) NodeAddresses() ([]NodeAddress, error) {
	addresses := make([]NodeAddress, 0, len(c.LavalinkNodes))
	seen := make(map[string]bool, len(c.LavalinkNodes))

	for i, entry := range c.LavalinkNodes {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		name, address, named := strings.Cut(entry, "=")
		if !named {
			name, address = "node-"+strconv.Itoa(i), entry
		}
		name = strings.TrimSpace(name)
		address = strings.TrimSpace(address)

		if name == "" || address == "" {
			return nil, fmt.Errorf("invalid lavalink node %q", entry)
		}
		if seen[name] {
			return nil, fmt.Errorf("duplicate lavalink node name %q", name)
		}
		seen[name] = true

		addresses = append(addresses, NodeAddress{Name: name, Address: address})
	}

	if len(addresses) == 0 {
		return nil, fmt.Errorf("no lavalink nodes configured")
	}
	return addresses, nil
}
