// Package mirror replicates the generated resolution artifacts to peer
// login nodes over SSH, so every submit host resolves burst nodes the
// same way. Files land atomically on the peer: uploaded to a temp name
// next to the destination, then renamed over it.
package mirror

import (
	"context"
	"fmt"
	"net"
	"os"
	"path"
	"time"

	"github.com/pkg/sftp"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/stratushpc/stratus/pkg/config"
)

const defaultTimeout = 30 * time.Second

// Mirror pushes a fixed set of local files to every configured peer.
type Mirror struct {
	cfg     *config.MirrorConfig
	files   []string
	logger  zerolog.Logger
	timeout time.Duration
}

// New creates a mirror for the given artifact paths. It returns nil when
// no peers are configured, which callers treat as mirroring disabled.
func New(cfg *config.MirrorConfig, files []string, logger zerolog.Logger) *Mirror {
	if cfg == nil || len(cfg.Peers) == 0 {
		return nil
	}

	timeout := defaultTimeout
	if cfg.Timeout > 0 {
		timeout = time.Duration(cfg.Timeout) * time.Second
	}

	return &Mirror{
		cfg:     cfg,
		files:   files,
		logger:  logger.With().Str("component", "mirror").Logger(),
		timeout: timeout,
	}
}

// Push copies all artifact files to every peer. Peers are pushed in
// order; the first failure aborts and is returned, so a partial push is
// repaired by the next regeneration.
func (m *Mirror) Push(ctx context.Context) error {
	clientConfig, err := m.buildClientConfig()
	if err != nil {
		return fmt.Errorf("failed to build SSH config: %w", err)
	}

	for i := range m.cfg.Peers {
		peer := &m.cfg.Peers[i]
		if err := m.pushPeer(ctx, peer, clientConfig); err != nil {
			return fmt.Errorf("failed to push artifacts to %s: %w", peer.Host, err)
		}
		m.logger.Info().
			Str("peer", peer.Host).
			Int("files", len(m.files)).
			Msg("Artifacts mirrored")
	}
	return nil
}

// buildClientConfig assembles key auth and host key verification.
func (m *Mirror) buildClientConfig() (*ssh.ClientConfig, error) {
	keyBytes, err := os.ReadFile(m.cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if m.cfg.KnownHosts != "" {
		hostKeyCallback, err = knownhosts.New(m.cfg.KnownHosts)
		if err != nil {
			return nil, fmt.Errorf("failed to load known_hosts: %w", err)
		}
	}

	return &ssh.ClientConfig{
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: hostKeyCallback,
		Timeout:         m.timeout,
	}, nil
}

// pushPeer copies every artifact file to one peer.
func (m *Mirror) pushPeer(ctx context.Context, peer *config.PeerConfig, base *ssh.ClientConfig) error {
	port := peer.Port
	if port == 0 {
		port = 22
	}
	address := net.JoinHostPort(peer.Host, fmt.Sprintf("%d", port))

	clientConfig := *base
	clientConfig.User = peer.User

	dialer := net.Dialer{Timeout: m.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return fmt.Errorf("failed to dial: %w", err)
	}

	ncc, chans, reqs, err := ssh.NewClientConn(conn, address, &clientConfig)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to establish SSH connection: %w", err)
	}
	sshClient := ssh.NewClient(ncc, chans, reqs)
	defer sshClient.Close()

	sftpClient, err := sftp.NewClient(sshClient)
	if err != nil {
		return fmt.Errorf("failed to open SFTP session: %w", err)
	}
	defer sftpClient.Close()

	for _, file := range m.files {
		if err := m.pushFile(sftpClient, file); err != nil {
			return err
		}
	}
	return nil
}

// pushFile uploads one file to its own path on the peer, atomically.
func (m *Mirror) pushFile(client *sftp.Client, localPath string) error {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", localPath, err)
	}

	remoteDir := path.Dir(localPath)
	tempPath := path.Join(remoteDir, "."+path.Base(localPath)+".tmp")

	remote, err := client.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", tempPath, err)
	}
	if _, err := remote.Write(data); err != nil {
		_ = remote.Close()
		_ = client.Remove(tempPath)
		return fmt.Errorf("failed to write %s: %w", tempPath, err)
	}
	if err := remote.Close(); err != nil {
		_ = client.Remove(tempPath)
		return fmt.Errorf("failed to close %s: %w", tempPath, err)
	}
	if err := client.Chmod(tempPath, 0o644); err != nil {
		_ = client.Remove(tempPath)
		return fmt.Errorf("failed to chmod %s: %w", tempPath, err)
	}

	// PosixRename replaces the destination in one step
	if err := client.PosixRename(tempPath, localPath); err != nil {
		_ = client.Remove(tempPath)
		return fmt.Errorf("failed to rename %s: %w", tempPath, err)
	}
	return nil
}
