package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// DefaultEtcDir is the configuration directory used when neither the
// --etc flag nor STRATUS_ETC is set.
const DefaultEtcDir = "/etc/stratus"

// EtcEnvVar overrides the configuration directory.
const EtcEnvVar = "STRATUS_ETC"

// ResolveEtcDir picks the configuration directory: explicit flag value,
// then the STRATUS_ETC environment variable, then the default.
func ResolveEtcDir(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := os.Getenv(EtcEnvVar); env != "" {
		return env
	}
	return DefaultEtcDir
}

// Loader reads and validates the statically-shaped configuration files
// under one etc directory. Unknown keys are a hard error: configuration is
// never attached dynamically.
type Loader struct {
	etcDir   string
	validate *validator.Validate
}

// NewLoader creates a loader rooted at etcDir.
func NewLoader(etcDir string) *Loader {
	return &Loader{
		etcDir:   etcDir,
		validate: validator.New(),
	}
}

// EtcDir returns the configuration directory.
func (l *Loader) EtcDir() string {
	return l.etcDir
}

// ClusterPath returns the cluster.yaml path.
func (l *Loader) ClusterPath() string {
	return filepath.Join(l.etcDir, "cluster.yaml")
}

// LoadCluster loads and validates cluster.yaml. Relative paths inside it
// are resolved against the etc directory.
func (l *Loader) LoadCluster() (*ClusterConfig, error) {
	cfg := &ClusterConfig{}
	if err := l.decodeStrict(l.ClusterPath(), cfg); err != nil {
		return nil, err
	}

	cfg.Paths.Database = l.resolve(cfg.Paths.Database)
	cfg.Paths.Lock = l.resolve(cfg.Paths.Lock)
	cfg.Paths.HostsBase = l.resolve(cfg.Paths.HostsBase)
	cfg.Paths.Hosts = l.resolve(cfg.Paths.Hosts)
	cfg.Paths.Netgroup = l.resolve(cfg.Paths.Netgroup)
	cfg.Fleet = l.resolve(cfg.Fleet)
	if cfg.Policy.Dir != "" {
		cfg.Policy.Dir = l.resolve(cfg.Policy.Dir)
	}
	if cfg.Policy.Mode == "" {
		cfg.Policy.Mode = "enforcing"
	}

	if err := l.validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid cluster config: %w", err)
	}
	return cfg, nil
}

// LoadCloud loads and validates cloud.yaml.
func (l *Loader) LoadCloud() (*CloudConfig, error) {
	cfg := &CloudConfig{}
	if err := l.decodeStrict(filepath.Join(l.etcDir, "cloud.yaml"), cfg); err != nil {
		return nil, err
	}
	if err := l.validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid cloud config: %w", err)
	}
	return cfg, nil
}

// LoadAccount loads and validates accounts/<name>.yaml. The account name
// comes from the file name, keeping the tag and the file in lockstep.
func (l *Loader) LoadAccount(name string) (*AccountConfig, error) {
	cfg := &AccountConfig{}
	path := filepath.Join(l.etcDir, "accounts", name+".yaml")
	if err := l.decodeStrict(path, cfg); err != nil {
		return nil, err
	}
	cfg.Name = name

	if err := l.validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid account config %s: %w", name, err)
	}
	return cfg, nil
}

// ListAccounts returns the account names with a file under accounts/.
func (l *Loader) ListAccounts() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(l.etcDir, "accounts"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read accounts directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		names = append(names, strings.TrimSuffix(entry.Name(), ".yaml"))
	}
	return names, nil
}

// decodeStrict decodes one YAML file into out, rejecting unknown keys.
func (l *Loader) decodeStrict(path string, out interface{}) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open config %s: %w", path, err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return nil
}

// resolve makes a path absolute relative to the etc directory.
func (l *Loader) resolve(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(l.etcDir, path)
}
