package config

import "fmt"

// Validate checks the directive surface's mutual constraints.
func Validate(c *Config) error {
	if c.Limits.MaxNode <= 0 {
		return fmt.Errorf("option 'limits.max_node' must be positive")
	}
	if c.Limits.MaxBalancer <= 0 {
		return fmt.Errorf("option 'limits.max_balancer' must be positive")
	}
	if c.Tunables.DefaultBalancer == "" {
		return fmt.Errorf("option 'tunables.default_balancer' must not be empty")
	}
	if c.Persistence.Enabled && c.Persistence.BasePath == "" {
		return fmt.Errorf("option 'persistence.base_path' must be set when persistence is enabled")
	}
	if c.Tunables.EnableWSTunnel && c.Tunables.WSUpgradeHeader == "" {
		return fmt.Errorf("option 'tunables.ws_upgrade_header' must not be empty when ws tunnelling is enabled")
	}
	return nil
}
