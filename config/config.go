// Package config loads the ERS daemon's INI configuration file: sections
// "node", "couchdb" and "log". It uses an explicit Require*/IsValid
// validator idiom (accumulating every problem rather than failing on the
// first one), reading the INI file via spf13/viper (SetConfigType("ini"))
// and gopkg.in/ini.v1 directly for the fixed_peers list shape viper's
// flat key/value view does not represent well.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
	ini "gopkg.in/ini.v1"
)

// NodeConfig is the [node] section.
type NodeConfig struct {
	Host       string // overrides the hostname-derived host URN fallback
	Prefix     string // database name / service name prefix, default "ers"
	Port       int    // port this node's DocDB is reachable on
	Kind       string // "contributor" or "bridge"
	PIDFile    string
	FixedPeers []FixedPeer
}

// FixedPeer is one statically configured peer (the [node] section's
// fixed_peers list), unioned with whatever Discovery finds at runtime.
type FixedPeer struct {
	Host string
	Port int
	Kind string
}

// CouchDBConfig is the [couchdb] section.
type CouchDBConfig struct {
	URL      string
	Username string
	Password string
	Tries    int // connect-retry attempts before the daemon treats StoreUnavailable as fatal
}

// LogConfig is the [log] section.
type LogConfig struct {
	Level string
	JSON  bool
}

// Config is the fully parsed configuration file.
type Config struct {
	Node    NodeConfig
	CouchDB CouchDBConfig
	Log     LogConfig
}

// Validator accumulates configuration errors so Load can report every
// problem at once instead of failing on the first one.
type Validator struct {
	errs []string
}

func (v *Validator) RequireString(name, value string) {
	if strings.TrimSpace(value) == "" {
		v.errs = append(v.errs, fmt.Sprintf("%s is required", name))
	}
}

func (v *Validator) RequirePositiveInt(name string, value int) {
	if value <= 0 {
		v.errs = append(v.errs, fmt.Sprintf("%s must be a positive integer", name))
	}
}

func (v *Validator) RequireOneOf(name, value string, allowed ...string) {
	for _, a := range allowed {
		if value == a {
			return
		}
	}
	v.errs = append(v.errs, fmt.Sprintf("%s must be one of %v, got %q", name, allowed, value))
}

func (v *Validator) IsValid() bool { return len(v.errs) == 0 }
func (v *Validator) ErrorString() string {
	return strings.Join(v.errs, "; ")
}

// Load reads and validates the INI file at path.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("ini")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	v.SetDefault("node.prefix", "ers")
	v.SetDefault("node.kind", "contributor")
	v.SetDefault("node.port", 5984)
	v.SetDefault("couchdb.tries", 5)
	v.SetDefault("log.level", "info")

	cfg := &Config{
		Node: NodeConfig{
			Host:    v.GetString("node.host"),
			Prefix:  v.GetString("node.prefix"),
			Port:    v.GetInt("node.port"),
			Kind:    v.GetString("node.kind"),
			PIDFile: normalizePIDFile(v.GetString("node.pid_file")),
		},
		CouchDB: CouchDBConfig{
			URL:      v.GetString("couchdb.url"),
			Username: v.GetString("couchdb.username"),
			Password: v.GetString("couchdb.password"),
			Tries:    v.GetInt("couchdb.tries"),
		},
		Log: LogConfig{
			Level: v.GetString("log.level"),
			JSON:  v.GetBool("log.json"),
		},
	}

	peers, err := loadFixedPeers(path)
	if err != nil {
		return nil, err
	}
	cfg.Node.FixedPeers = peers

	validator := &Validator{}
	validator.RequireString("couchdb.url", cfg.CouchDB.URL)
	validator.RequirePositiveInt("node.port", cfg.Node.Port)
	validator.RequireOneOf("node.kind", cfg.Node.Kind, "contributor", "bridge")
	if !validator.IsValid() {
		return nil, fmt.Errorf("config: invalid configuration: %s", validator.ErrorString())
	}

	return cfg, nil
}

// normalizePIDFile maps the documented "none" literal to an empty path,
// ERS's internal representation of "no PID file, skip the running check".
func normalizePIDFile(raw string) string {
	if strings.TrimSpace(raw) == "none" {
		return ""
	}
	return raw
}

// loadFixedPeers reads the [node] section's fixed_peers key directly via
// ini.v1 as a comma-separated "host:port:kind" list -- a shape viper's
// flat string keys don't parse on their own.
func loadFixedPeers(path string) ([]FixedPeer, error) {
	f, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	raw := f.Section("node").Key("fixed_peers").String()
	if raw == "" {
		return nil, nil
	}

	var peers []FixedPeer
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("config: malformed fixed_peers entry %q", entry)
		}
		var port int
		if _, err := fmt.Sscanf(parts[1], "%d", &port); err != nil {
			return nil, fmt.Errorf("config: malformed fixed_peers port in %q", entry)
		}
		peers = append(peers, FixedPeer{Host: parts[0], Port: port, Kind: parts[2]})
	}
	return peers, nil
}
