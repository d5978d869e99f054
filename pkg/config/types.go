package config

// ClusterConfig is the statically-shaped cluster configuration loaded from
// cluster.yaml. Unknown keys are rejected by the loader; nothing is ever
// attached to this structure dynamically.
type ClusterConfig struct {
	// Cluster is the cluster name, used as the netgroup group name.
	Cluster string `yaml:"cluster" validate:"required,hostname_rfc1123"`

	// Paths locates the persistent state and the resolution artifacts.
	Paths PathsConfig `yaml:"paths" validate:"required"`

	// Fleet is the path to the fleet file consumed by rebuild.
	Fleet string `yaml:"fleet" validate:"required"`

	// Policy configures admission policy evaluation.
	Policy PolicyConfig `yaml:"policy"`

	// Metrics configures the node-exporter textfile snapshot.
	Metrics MetricsConfig `yaml:"metrics"`

	// Mirror configures artifact replication to peer login nodes.
	Mirror MirrorConfig `yaml:"mirror"`

	// Notify configures e-mail notification.
	Notify NotifyConfig `yaml:"notify"`

	// Tracing configures the OpenTelemetry exporter.
	Tracing TracingConfig `yaml:"tracing"`
}

// PathsConfig locates the files stratus owns.
type PathsConfig struct {
	// Database is the SQLite registry/journal database path.
	Database string `yaml:"database" validate:"required"`

	// Lock is the cross-process lock file path.
	Lock string `yaml:"lock" validate:"required"`

	// HostsBase is the static prefix file for the hosts artifact.
	HostsBase string `yaml:"hosts_base" validate:"required"`

	// Hosts is the hosts artifact destination (e.g. /etc/hosts).
	Hosts string `yaml:"hosts" validate:"required"`

	// Netgroup is the netgroup artifact destination (e.g. /etc/netgroup).
	Netgroup string `yaml:"netgroup" validate:"required"`
}

// PolicyConfig configures the admission policy gate.
type PolicyConfig struct {
	// Mode selects between logging violations and aborting on them.
	Mode string `yaml:"mode" validate:"omitempty,oneof=advisory enforcing"`

	// Dir is an optional directory of operator .rego policies, loaded in
	// addition to the builtins.
	Dir string `yaml:"dir"`

	// MaxFleetSize caps the desired host set accepted by rebuild;
	// 0 disables the ceiling.
	MaxFleetSize int `yaml:"max_fleet_size" validate:"gte=0"`
}

// MetricsConfig configures the metrics textfile snapshot.
type MetricsConfig struct {
	// Textfile is the .prom destination; empty disables the snapshot.
	Textfile string `yaml:"textfile"`
}

// MirrorConfig configures pushing regenerated artifacts to peers.
type MirrorConfig struct {
	// Peers lists the machines that receive artifact copies.
	Peers []PeerConfig `yaml:"peers" validate:"dive"`

	// KeyFile is the SSH private key used for all peers.
	KeyFile string `yaml:"key_file" validate:"required_with=Peers"`

	// KnownHosts is an optional known_hosts file; when set, host keys
	// are verified strictly.
	KnownHosts string `yaml:"known_hosts"`

	// Timeout is the per-peer push timeout in seconds.
	Timeout int `yaml:"timeout" validate:"gte=0"`
}

// PeerConfig identifies one mirror peer.
type PeerConfig struct {
	Host string `yaml:"host" validate:"required"`
	Port int    `yaml:"port" validate:"omitempty,min=1,max=65535"`
	User string `yaml:"user" validate:"required"`
}

// NotifyConfig configures e-mail notification.
type NotifyConfig struct {
	// Sendmail is the sendmail binary path; empty disables notification.
	Sendmail string `yaml:"sendmail"`

	// From is the sender address.
	From string `yaml:"from" validate:"required_with=Sendmail,omitempty,email"`
}

// TracingConfig configures the trace exporter.
type TracingConfig struct {
	// Exporter selects otlp, stdout, or none.
	Exporter string `yaml:"exporter" validate:"omitempty,oneof=otlp stdout none"`

	// Endpoint is the OTLP endpoint.
	Endpoint string `yaml:"endpoint"`

	// Insecure disables TLS for the OTLP connection.
	Insecure bool `yaml:"insecure"`
}

// CloudConfig is the per-vendor catalog loaded from cloud.yaml: the node
// types a cluster offers on each provider, with the vendor instance name
// behind each type tag. Prices are informational; the core computes no
// costs.
type CloudConfig struct {
	Vendors map[string]VendorConfig `yaml:"vendors" validate:"required,dive"`
}

// VendorConfig describes one cloud provider.
type VendorConfig struct {
	// Region is the default region for accounts on this vendor.
	Region string `yaml:"region"`

	// NodeTypes maps the vendor-agnostic type tag to vendor specifics.
	NodeTypes map[string]NodeTypeConfig `yaml:"node_types" validate:"required,dive"`
}

// NodeTypeConfig describes one launchable node type.
type NodeTypeConfig struct {
	// Instance is the vendor instance type (e.g. c5.xlarge).
	Instance string `yaml:"instance" validate:"required"`

	// Cores is the virtual core count.
	Cores int `yaml:"cores" validate:"gt=0"`

	// MemoryGB is the memory size in gigabytes.
	MemoryGB float64 `yaml:"memory_gb" validate:"gt=0"`

	// Price is the advertised hourly unit price in USD.
	Price float64 `yaml:"price" validate:"gte=0"`
}

// AccountConfig is one owning account, loaded from accounts/<name>.yaml.
type AccountConfig struct {
	// Name is the account tag; set from the file name by the loader.
	// Hyphen-free per the host naming grammar.
	Name string `yaml:"-" validate:"required,excludes=-"`

	// Cloud is the provider tag this account launches on.
	Cloud string `yaml:"cloud" validate:"required,excludes=-"`

	// Region overrides the vendor default region.
	Region string `yaml:"region"`

	// Profile is the vendor credentials profile name.
	Profile string `yaml:"profile"`

	// ImageID is the machine image launched for this account's nodes.
	ImageID string `yaml:"image_id"`

	// KeyName is the vendor key-pair name attached at launch.
	KeyName string `yaml:"key_name"`

	// SecurityGroups are attached to launched instances.
	SecurityGroups []string `yaml:"security_groups"`

	// Users are the cluster users allowed to operate this account.
	Users []UserConfig `yaml:"users" validate:"dive"`

	// Protected lists hosts that admission policy refuses to power off
	// or remove.
	Protected []string `yaml:"protected"`

	// Email lists notification recipients.
	Email []string `yaml:"email" validate:"dive,email"`
}

// UserConfig is one cluster user entry in an account.
type UserConfig struct {
	Name  string `yaml:"name" validate:"required"`
	Email string `yaml:"email" validate:"omitempty,email"`
}
