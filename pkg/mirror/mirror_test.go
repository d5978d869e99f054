package mirror

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/stratushpc/stratus/pkg/config"
)

func TestNewWithoutPeersIsDisabled(t *testing.T) {
	if m := New(&config.MirrorConfig{}, nil, zerolog.Nop()); m != nil {
		t.Error("mirror without peers should be nil")
	}
	if m := New(nil, nil, zerolog.Nop()); m != nil {
		t.Error("mirror without config should be nil")
	}
}

func TestBuildClientConfigMissingKey(t *testing.T) {
	m := New(&config.MirrorConfig{
		Peers:   []config.PeerConfig{{Host: "peer1", User: "root"}},
		KeyFile: filepath.Join(t.TempDir(), "absent"),
	}, nil, zerolog.Nop())

	if _, err := m.buildClientConfig(); err == nil {
		t.Error("expected error for missing key file")
	}
}

func TestBuildClientConfigRejectsGarbageKey(t *testing.T) {
	keyPath := filepath.Join(t.TempDir(), "key")
	if err := os.WriteFile(keyPath, []byte("not a key"), 0o600); err != nil {
		t.Fatalf("failed to write key: %v", err)
	}

	m := New(&config.MirrorConfig{
		Peers:   []config.PeerConfig{{Host: "peer1", User: "root"}},
		KeyFile: keyPath,
	}, nil, zerolog.Nop())

	if _, err := m.buildClientConfig(); err == nil {
		t.Error("expected error for unparseable key")
	}
}

func TestTimeoutDefaultsAndOverrides(t *testing.T) {
	cfg := &config.MirrorConfig{Peers: []config.PeerConfig{{Host: "peer1", User: "root"}}}

	if m := New(cfg, nil, zerolog.Nop()); m.timeout != defaultTimeout {
		t.Errorf("timeout = %v, want default", m.timeout)
	}

	cfg.Timeout = 5
	if m := New(cfg, nil, zerolog.Nop()); m.timeout.Seconds() != 5 {
		t.Errorf("timeout = %v, want 5s", m.timeout)
	}
}
