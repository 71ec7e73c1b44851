package main

import (
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/agentcore/config"
)

// resolveString returns the CLI flag value if explicitly set, else the
// config value if non-empty, else the urfave default.
func resolveString(c *cli.Context, flag string, configVal string) string {
	if c.IsSet(flag) {
		return c.String(flag)
	}
	if configVal != "" {
		return configVal
	}
	return c.String(flag)
}

// resolveInt returns the CLI flag value if explicitly set, else the config
// value if non-zero, else the urfave default.
func resolveInt(c *cli.Context, flag string, configVal int) int {
	if c.IsSet(flag) {
		return c.Int(flag)
	}
	if configVal != 0 {
		return configVal
	}
	return c.Int(flag)
}

// resolveBool returns the CLI flag value if explicitly set, else the config
// value if true, else the urfave default.
func resolveBool(c *cli.Context, flag string, configVal bool) bool {
	if c.IsSet(flag) {
		return c.Bool(flag)
	}
	if configVal {
		return configVal
	}
	return c.Bool(flag)
}

// resolveDuration returns the CLI flag value if explicitly set, else the
// config value if non-zero, else the urfave default.
func resolveDuration(c *cli.Context, flag string, configVal time.Duration) time.Duration {
	if c.IsSet(flag) {
		return c.Duration(flag)
	}
	if configVal != 0 {
		return configVal
	}
	return c.Duration(flag)
}

// loadConfig reads the --config file if given, else returns config.Default().
func loadConfig(c *cli.Context) (config.Config, error) {
	path := c.String("config")
	if path == "" {
		return config.Default(), nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}
	return *cfg, nil
}

// resolveSupervisorConfig applies CLI > config-file > urfave-default
// precedence to build the supervisor.New config for one invocation.
func resolveSupervisorConfig(c *cli.Context, cfg config.Config) config.SupervisorConfig {
	sc := cfg.Supervisor
	sc.ConcurrencyLimit = resolveInt(c, "concurrency", sc.ConcurrencyLimit)
	sc.PendingQueueCapacity = resolveInt(c, "queue-capacity", sc.PendingQueueCapacity)
	if c.IsSet("queue-strategy") {
		sc.PendingQueueStrategy = config.QueueStrategy(c.String("queue-strategy"))
	}
	sc.MaxPendingTime = config.Duration{Duration: resolveDuration(c, "max-pending-time", sc.MaxPendingTime.Duration)}
	sc.MetricsEnabled = resolveBool(c, "metrics", sc.MetricsEnabled)
	sc.EmitEvents = resolveBool(c, "emit-events", sc.EmitEvents)
	return sc
}
