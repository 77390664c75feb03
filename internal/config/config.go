// Package config loads rtcore's runtime configuration from a YAML file, with
// defaults matching a typical LAN deployment. It deliberately stays outside
// the Non-goals boundary around "signaling message encoding": this is
// process configuration, not a wire format.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ICEServer is a STUN or TURN server entry, mirroring the subset of RFC 8445
// ice-server fields rtcore actually consumes.
type ICEServer struct {
	URLs       []string `yaml:"urls"`
	Username   string   `yaml:"username,omitempty"`
	Credential string   `yaml:"credential,omitempty"`
}

// Media holds the encoder/capture parameters named in spec.md's media
// components. codec_bitrate's auto-calculation mirrors the original
// implementation's resolution/fps-based heuristic.
type Media struct {
	FrameWidth  int     `yaml:"frame_width"`
	FrameHeight int     `yaml:"frame_height"`
	FPS         float64 `yaml:"fps"`
	BitrateBps  int     `yaml:"bitrate_bps"`
}

// Config is the top-level configuration for an rtcored process.
type Config struct {
	// SignalingAddr is the ws:// or wss:// URL of the WebSocket signaling
	// server.
	SignalingAddr string `yaml:"signaling_addr"`

	// ICEServers lists the STUN/TURN servers offered to the ICE agent.
	ICEServers []ICEServer `yaml:"ice_servers"`

	// PortMin/PortMax bound the local UDP port range used for host candidates.
	PortMin uint16 `yaml:"port_min"`
	PortMax uint16 `yaml:"port_max"`

	Media Media `yaml:"media"`

	// LogLevel is one of trace/debug/info/warn/error, passed to rtclog.SetLevel.
	LogLevel string `yaml:"log_level"`

	// DataDir is where received files are written by the file-transfer
	// component.
	DataDir string `yaml:"data_dir"`

	// MDNSPrivacy enables the mdns-ice-candidates privacy extension: host
	// candidates are advertised under an ephemeral "<uuid>.local" name
	// instead of a literal IP. Off by default since it requires a
	// multicast-capable interface and a peer/browser that resolves mDNS
	// names; host candidates fall back to literal IPs if it fails.
	MDNSPrivacy bool `yaml:"mdns_privacy"`
}

// Default returns the configuration used when no file is found, tuned for a
// single machine talking to a local signaling server.
func Default() Config {
	return Config{
		SignalingAddr: "ws://127.0.0.1:8080",
		ICEServers: []ICEServer{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
		},
		PortMin: 10000,
		PortMax: 20000,
		Media: Media{
			FrameWidth:  1280,
			FrameHeight: 720,
			FPS:         30,
			BitrateBps:  5_000_000,
		},
		LogLevel: "info",
		DataDir:  ".",
	}
}

// Load reads YAML configuration from path, overlaying it onto Default(). A
// missing file is not an error; Load returns Default() so rtcored runs
// out-of-the-box.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks the invariants the rest of rtcore assumes hold.
func (c Config) Validate() error {
	if c.SignalingAddr == "" {
		return fmt.Errorf("config: signaling_addr must not be empty")
	}
	if c.PortMin == 0 || c.PortMax == 0 || c.PortMin > c.PortMax {
		return fmt.Errorf("config: invalid port range [%d, %d]", c.PortMin, c.PortMax)
	}
	if len(c.ICEServers) == 0 {
		return fmt.Errorf("config: at least one ice server is required")
	}
	return nil
}

// CalculateBitrate derives a codec bitrate from resolution and frame rate
// when one hasn't been configured explicitly, clamped to a sane encoder
// range. Grounded in the original session config's bitrate heuristic.
func (m Media) CalculateBitrate() int {
	if m.BitrateBps > 0 {
		return m.BitrateBps
	}
	pixels := float64(m.FrameWidth * m.FrameHeight)
	fpsFactor := m.FPS / 30.0
	bitrate := int(pixels * 0.15 * fpsFactor)
	switch {
	case bitrate < 1_000_000:
		return 1_000_000
	case bitrate > 10_000_000:
		return 10_000_000
	default:
		return bitrate
	}
}
