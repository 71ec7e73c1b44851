package main

import (
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/agentcore/cmd/agentcorectl/render"
	tuipkg "github.com/pithecene-io/agentcore/cmd/agentcorectl/tui"
)

// StatusCommand reports supervisor occupancy and sync remote status, with
// an optional live-refreshing --tui dashboard.
func StatusCommand() *cli.Command {
	return &cli.Command{
		Name:   "status",
		Usage:  "Show supervisor and sync status",
		Flags:  ReadOnlyFlags(),
		Action: statusAction,
	}
}

func statusAction(c *cli.Context) error {
	rt, err := newAppRuntime(c, "agentcorectl-status")
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	defer rt.Close()

	snapshot := func() tuipkg.Snapshot {
		return tuipkg.Snapshot{
			Supervisor: rt.supervisor.Stats(),
			Metrics:    rt.metrics.Snapshot(),
			Remotes:    rt.sync.Status(),
		}
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	if c.Bool("tui") {
		return r.RenderTUI("dashboard", snapshot)
	}
	return r.Render(snapshot())
}
