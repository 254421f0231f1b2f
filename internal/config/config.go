// Package config loads the manager's YAML configuration file, covering
// the tunables that sit outside the registration protocol itself: table
// capacities, persistence, the UI nonce, and the WebSocket/AJP knobs
// CONFIG consults when admitting a node.
package config

import (
	"fmt"
	"io/ioutil"
	"os"

	"gopkg.in/yaml.v2"
)

// HTTP holds the listener and UI surface settings.
type HTTP struct {
	Addr           string `yaml:"addr"`
	ManagerPath    string `yaml:"manager_path"`
	EnableCommands bool   `yaml:"enable_command_links"`
	RequireNonce   bool   `yaml:"require_nonce"`
}

// Limits mirrors registry.Limits so the YAML file is the single source
// of truth for table capacities; cmd/mcmgr converts it at startup.
type Limits struct {
	MaxNode      int `yaml:"max_node"`
	MaxHost      int `yaml:"max_host"`
	MaxContext   int `yaml:"max_context"`
	MaxBalancer  int `yaml:"max_balancer"`
	MaxSessionID int `yaml:"max_session_id"`
	MaxDomain    int `yaml:"max_domain"`
}

// Persistence controls the optional on-disk table snapshot.
type Persistence struct {
	Enabled  bool   `yaml:"enabled"`
	BasePath string `yaml:"base_path"`
}

// Tunables is the CONFIG-facing directive surface: default balancer
// name, WebSocket tunnelling, AJP secret and response field size.
type Tunables struct {
	DefaultBalancer   string `yaml:"default_balancer"`
	EnableWSTunnel    bool   `yaml:"enable_ws_tunnel"`
	WSUpgradeHeader   string `yaml:"ws_upgrade_header"`
	AJPSecret         string `yaml:"ajp_secret"`
	ResponseFieldSize int    `yaml:"response_field_size"`
	MaxMessageSize    int    `yaml:"max_message_size"`
}

// Logging configures the rolling log file and optional syslog output.
type Logging struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Syslog     bool   `yaml:"syslog"`
}

type Config struct {
	HTTP        HTTP        `yaml:"http"`
	Limits      Limits      `yaml:"limits"`
	Persistence Persistence `yaml:"persistence"`
	Tunables    Tunables    `yaml:"tunables"`
	Logging     Logging     `yaml:"logging"`
}

func Default() Config {
	return Config{
		HTTP: HTTP{
			Addr:           ":6666",
			ManagerPath:    "/mod_cluster-manager",
			EnableCommands: true,
			RequireNonce:   true,
		},
		Limits: Limits{
			MaxNode: 20, MaxHost: 20, MaxContext: 100,
			MaxBalancer: 20, MaxSessionID: 0, MaxDomain: 20,
		},
		Persistence: Persistence{Enabled: false, BasePath: "logs/manager"},
		Tunables: Tunables{
			DefaultBalancer: "mycluster",
			WSUpgradeHeader: "websocket",
			MaxMessageSize:  8192,
		},
		Logging: Logging{Level: "info", File: "logs/mcmgr.log", MaxSizeMB: 100, MaxBackups: 5, MaxAgeDays: 28},
	}
}

// Setup reads and validates the manager config file, falling back to
// Default() values for anything the file omits.
func Setup(path string) (*Config, error) {
	cfg := Default()

	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = file.Close()
	}()

	data, err := ioutil.ReadAll(file)
	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (l Limits) String() string {
	return fmt.Sprintf("node=%d host=%d context=%d balancer=%d sessionid=%d domain=%d",
		l.MaxNode, l.MaxHost, l.MaxContext, l.MaxBalancer, l.MaxSessionID, l.MaxDomain)
}
