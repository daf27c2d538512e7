// Package config loads, validates, and defaults the oracle node's
// configuration. Structure and Defaults()/Load()/Validate() flow adapted
// directly from the teacher's internal/config/config.go; field names
// reassigned to the oracle domain's recognized configuration keys.
//
// Configuration file: /etc/oraclenode/config.yaml (default).
// Schema version: 1.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Version, GitCommit, BuildTime are injected by the build via -ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// DefaultDBPath mirrors the storage package constant for use in defaults.
const DefaultDBPath = "/var/lib/oraclenode/oraclenode.db"

// Config is the root configuration structure for the oracle gateway node.
type Config struct {
	SchemaVersion string `yaml:"schema_version"`

	Node       NodeConfig              `yaml:"node"`
	Sensors    map[string]SensorConfig `yaml:"sensors"`
	Consensus  ConsensusConfig         `yaml:"consensus"`
	Peer       PeerConfig              `yaml:"peer"`
	Ledger     LedgerConfig            `yaml:"ledger"`
	Reputation ReputationConfig        `yaml:"reputation"`
	Budget     BudgetConfig            `yaml:"budget"`
	Storage    StorageConfig           `yaml:"storage"`
	Metrics    MetricsConfig           `yaml:"metrics"`
	Operator   OperatorConfig          `yaml:"operator"`
	Logging    LoggingConfig           `yaml:"logging"`
}

// NodeConfig identifies this node and its stake commitment.
type NodeConfig struct {
	ID        string `yaml:"id"`
	MinStake  int64  `yaml:"min_stake"`
	PeerNodes []Peer `yaml:"peer_nodes"`
	// SigningKeyHex is this node's hex-encoded HMAC signing secret for
	// locally produced readings. If empty, a random key is generated at
	// startup — fine for the opaque shape check the consensus pipeline
	// runs, but it means signatures won't verify across a process restart
	// against anything that cached them.
	SigningKeyHex string `yaml:"signing_key_hex"`
}

// Peer names one sibling node's identity and address.
type Peer struct {
	ID   string `yaml:"id"`
	Addr string `yaml:"addr"`
}

// SensorConfig configures one sensor adapter instance.
type SensorConfig struct {
	Adapter         string        `yaml:"adapter"` // temperature | humidity | gps
	PollingInterval time.Duration `yaml:"polling_interval"`
	Topic           string        `yaml:"topic"`
}

// ConsensusConfig tunes the aggregator.
type ConsensusConfig struct {
	MinNodes         int     `yaml:"min_nodes"`
	Threshold        float64 `yaml:"threshold"`
	OutlierTolerance float64 `yaml:"outlier_tolerance"`
	TimeoutSeconds   int     `yaml:"timeout_seconds"`
	ScorerName       string  `yaml:"scorer"`
}

// PeerConfig tunes the Peer Collector's transport and fan-out.
type PeerConfig struct {
	ListenAddr         string        `yaml:"listen_addr"`
	MaxConcurrent      int64         `yaml:"max_concurrent"`
	CallTimeout        time.Duration `yaml:"call_timeout"`
	HeartbeatInterval  time.Duration `yaml:"heartbeat_interval"`
	PartitionThreshold float64       `yaml:"partition_threshold"`
	QuorumFraction     float64       `yaml:"quorum_fraction"`
	TLSCertFile        string        `yaml:"tls_cert_file"`
	TLSKeyFile         string        `yaml:"tls_key_file"`
	TLSCAFile          string        `yaml:"tls_ca_file"`
}

// LedgerConfig configures the external ledger RPC client.
type LedgerConfig struct {
	RPC            string        `yaml:"rpc"`
	ChainID        string        `yaml:"chain_id"`
	Contract       string        `yaml:"contract"`
	Scale          int64         `yaml:"scale"`
	GasDefaults    int64         `yaml:"gas_defaults"`
	MaxAttempts    int           `yaml:"max_attempts"`
	ConfirmTimeout time.Duration `yaml:"confirm_timeout"`
	CacheTTL       time.Duration `yaml:"cache_ttl"`
	CacheSize      int           `yaml:"cache_size"`
	TLSCertFile    string        `yaml:"tls_cert_file"`
	TLSKeyFile     string        `yaml:"tls_key_file"`
	TLSCAFile      string        `yaml:"tls_ca_file"`
}

// ReputationConfig tunes the reputation and stake-gate subsystem.
type ReputationConfig struct {
	Default            float64 `yaml:"default"`
	DecayRatePerDay     float64 `yaml:"decay_rate"`
	EventRetentionDays  int     `yaml:"event_retention_days"`
	SlashVoteThreshold  float64 `yaml:"slash_vote_threshold"`
}

// BudgetConfig holds token bucket parameters for ledger operations.
type BudgetConfig struct {
	Capacity     int           `yaml:"capacity"`
	RefillPeriod time.Duration `yaml:"refill_period"`
}

// StorageConfig holds BoltDB parameters.
type StorageConfig struct {
	DBPath        string `yaml:"db_path"`
	RetentionDays int    `yaml:"retention_days"`
}

// MetricsConfig configures the Metrics Bus exposition endpoint.
type MetricsConfig struct {
	ListenAddr     string        `yaml:"listen_addr"`
	GaugeRetention time.Duration `yaml:"gauge_retention"`
}

// OperatorConfig configures the operator override Unix socket.
type OperatorConfig struct {
	SocketPath string `yaml:"socket_path"`
	Enabled    bool   `yaml:"enabled"`
}

// LoggingConfig controls zap's level and encoding.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json | console
}

// Defaults returns a Config populated with all default values.
func Defaults() Config {
	hostname, _ := os.Hostname()
	return Config{
		SchemaVersion: "1",
		Node: NodeConfig{
			ID:       hostname,
			MinStake: 1000,
		},
		Consensus: ConsensusConfig{
			MinNodes:         3,
			Threshold:        0.8,
			OutlierTolerance: 0.05,
			TimeoutSeconds:   30,
			ScorerName:       "iqr_median",
		},
		Peer: PeerConfig{
			ListenAddr:         "0.0.0.0:9443",
			MaxConcurrent:      8,
			CallTimeout:        5 * time.Second,
			HeartbeatInterval:  60 * time.Second,
			PartitionThreshold: 0.5,
			QuorumFraction:     0.5,
		},
		Ledger: LedgerConfig{
			Scale:          100,
			GasDefaults:    21000,
			MaxAttempts:    5,
			ConfirmTimeout: 60 * time.Second,
			CacheTTL:       60 * time.Second,
			CacheSize:      1024,
		},
		Reputation: ReputationConfig{
			Default:            0.8,
			DecayRatePerDay:    0.001,
			EventRetentionDays: 30,
			SlashVoteThreshold: 0.75,
		},
		Budget: BudgetConfig{
			Capacity:     100,
			RefillPeriod: 60 * time.Second,
		},
		Storage: StorageConfig{
			DBPath:        DefaultDBPath,
			RetentionDays: 30,
		},
		Metrics: MetricsConfig{
			ListenAddr:     "127.0.0.1:9091",
			GaugeRetention: 24 * time.Hour,
		},
		Operator: OperatorConfig{
			Enabled:    true,
			SocketPath: "/run/oraclenode/operator.sock",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads and validates a config file from the given path, then applies
// any ORACLENODE_* environment overrides for secret-bearing fields (TLS key
// paths) so operators never need to put key material in a world-readable
// file on disk.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse %q: %w", path, err)
	}

	applyEnvOverrides(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config.Load: validation failed: %w", err)
	}
	return &cfg, nil
}

// applyEnvOverrides lets key material be supplied out-of-band instead of
// committed to the YAML file.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ORACLENODE_PEER_TLS_KEY_FILE"); v != "" {
		cfg.Peer.TLSKeyFile = v
	}
	if v := os.Getenv("ORACLENODE_LEDGER_TLS_KEY_FILE"); v != "" {
		cfg.Ledger.TLSKeyFile = v
	}
}

// Validate checks all config fields for correctness, collecting every
// violation rather than failing on the first.
func Validate(cfg *Config) error {
	var errs []string

	if cfg.SchemaVersion != "1" {
		errs = append(errs, fmt.Sprintf("schema_version must be \"1\", got %q", cfg.SchemaVersion))
	}
	if cfg.Node.ID == "" {
		errs = append(errs, "node.id must not be empty")
	}
	if cfg.Node.MinStake < 0 {
		errs = append(errs, "node.min_stake must be >= 0")
	}
	if cfg.Consensus.MinNodes < 1 {
		errs = append(errs, fmt.Sprintf("consensus.min_nodes must be >= 1, got %d", cfg.Consensus.MinNodes))
	}
	if cfg.Consensus.Threshold <= 0 || cfg.Consensus.Threshold > 1 {
		errs = append(errs, fmt.Sprintf("consensus.threshold must be in (0, 1], got %f", cfg.Consensus.Threshold))
	}
	if cfg.Consensus.OutlierTolerance < 0 {
		errs = append(errs, "consensus.outlier_tolerance must be >= 0")
	}
	if cfg.Consensus.TimeoutSeconds < 1 {
		errs = append(errs, fmt.Sprintf("consensus.timeout_seconds must be >= 1, got %d", cfg.Consensus.TimeoutSeconds))
	}
	for name, s := range cfg.Sensors {
		switch s.Adapter {
		case "temperature", "humidity", "gps":
		default:
			errs = append(errs, fmt.Sprintf("sensors.%s.adapter must be one of temperature|humidity|gps, got %q", name, s.Adapter))
		}
		if s.PollingInterval <= 0 {
			errs = append(errs, fmt.Sprintf("sensors.%s.polling_interval must be > 0", name))
		}
	}
	if cfg.Peer.MaxConcurrent < 1 {
		errs = append(errs, "peer.max_concurrent must be >= 1")
	}
	if cfg.Peer.PartitionThreshold <= 0 || cfg.Peer.PartitionThreshold > 1 {
		errs = append(errs, "peer.partition_threshold must be in (0, 1]")
	}
	if len(cfg.Node.PeerNodes) > 0 {
		if cfg.Peer.TLSCertFile == "" || cfg.Peer.TLSKeyFile == "" || cfg.Peer.TLSCAFile == "" {
			errs = append(errs, "peer.tls_cert_file, tls_key_file, and tls_ca_file are required when peer_nodes is non-empty")
		}
	}
	if cfg.Ledger.Scale < 1 {
		errs = append(errs, "ledger.scale must be >= 1")
	}
	if cfg.Ledger.MaxAttempts < 1 {
		errs = append(errs, "ledger.max_attempts must be >= 1")
	}
	if cfg.Reputation.Default < 0 || cfg.Reputation.Default > 1 {
		errs = append(errs, "reputation.default must be in [0, 1]")
	}
	if cfg.Reputation.SlashVoteThreshold <= 0 || cfg.Reputation.SlashVoteThreshold > 1 {
		errs = append(errs, "reputation.slash_vote_threshold must be in (0, 1]")
	}
	if cfg.Budget.Capacity < 1 {
		errs = append(errs, "budget.capacity must be >= 1")
	}
	if cfg.Budget.RefillPeriod < time.Second {
		errs = append(errs, "budget.refill_period must be >= 1s")
	}
	if cfg.Storage.DBPath == "" {
		errs = append(errs, "storage.db_path must not be empty")
	}
	if cfg.Storage.RetentionDays < 1 {
		errs = append(errs, "storage.retention_days must be >= 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
