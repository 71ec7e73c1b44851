package main

import (
	"flag"
	"testing"
	"time"

	"github.com/urfave/cli/v2"
)

// newTestCLIContext builds a *cli.Context with the given explicitly-set
// flag values and any additional urfave-default-only flags, so
// c.IsSet reflects only flagValues.
func newTestCLIContext(t *testing.T, flagValues map[string]string, defaultFlags map[string]string) *cli.Context {
	t.Helper()
	app := cli.NewApp()

	allFlags := make(map[string]string)
	for k, v := range defaultFlags {
		allFlags[k] = v
	}
	for k, v := range flagValues {
		allFlags[k] = v
	}

	var cliFlags []cli.Flag
	for name, val := range allFlags {
		cliFlags = append(cliFlags, &cli.StringFlag{Name: name, Value: val})
	}
	app.Flags = cliFlags

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	for name, val := range allFlags {
		fs.String(name, val, "")
	}
	for name, val := range flagValues {
		if err := fs.Set(name, val); err != nil {
			t.Fatalf("failed to set flag %s: %v", name, err)
		}
	}

	return cli.NewContext(app, fs, nil)
}

func TestResolveString_CLIWins(t *testing.T) {
	c := newTestCLIContext(t, map[string]string{"queue-strategy": "dropping"}, nil)
	got := resolveString(c, "queue-strategy", "suspend")
	if got != "dropping" {
		t.Errorf("expected CLI to win, got %q", got)
	}
}

func TestResolveString_ConfigFallback(t *testing.T) {
	c := newTestCLIContext(t, nil, map[string]string{"queue-strategy": ""})
	got := resolveString(c, "queue-strategy", "sliding")
	if got != "sliding" {
		t.Errorf("expected config fallback, got %q", got)
	}
}

func TestResolveString_UrfaveDefault(t *testing.T) {
	c := newTestCLIContext(t, nil, map[string]string{"queue-strategy": "suspend"})
	got := resolveString(c, "queue-strategy", "")
	if got != "suspend" {
		t.Errorf("expected urfave default, got %q", got)
	}
}

func TestResolveDuration_CLIWins(t *testing.T) {
	app := cli.NewApp()
	flagSet := flag.NewFlagSet("test", flag.ContinueOnError)
	flagSet.Duration("max-pending-time", 0, "")
	if err := flagSet.Set("max-pending-time", "5s"); err != nil {
		t.Fatal(err)
	}
	c := cli.NewContext(app, flagSet, nil)

	got := resolveDuration(c, "max-pending-time", 30*time.Second)
	if got != 5*time.Second {
		t.Errorf("expected CLI value 5s, got %v", got)
	}
}

func TestResolveDuration_ConfigFallback(t *testing.T) {
	app := cli.NewApp()
	flagSet := flag.NewFlagSet("test", flag.ContinueOnError)
	flagSet.Duration("max-pending-time", 0, "")
	c := cli.NewContext(app, flagSet, nil)

	got := resolveDuration(c, "max-pending-time", 30*time.Second)
	if got != 30*time.Second {
		t.Errorf("expected config fallback 30s, got %v", got)
	}
}

func TestLoadConfig_NoPathReturnsDefault(t *testing.T) {
	app := cli.NewApp()
	flagSet := flag.NewFlagSet("test", flag.ContinueOnError)
	flagSet.String("config", "", "")
	c := cli.NewContext(app, flagSet, nil)

	cfg, err := loadConfig(c)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Supervisor.ConcurrencyLimit == 0 {
		t.Error("expected config.Default()'s non-zero concurrency limit")
	}
}
