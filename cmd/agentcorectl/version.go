package main

import (
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/agentcore/cmd/agentcorectl/render"
	"github.com/pithecene-io/agentcore/types"
)

// VersionResponse is the response for the version command.
type VersionResponse struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
}

// VersionCommand returns the version command. It must not touch the
// supervisor, sync, or store.
func VersionCommand(commit string) *cli.Command {
	return &cli.Command{
		Name:   "version",
		Usage:  "Show version information",
		Flags:  ReadOnlyFlags(),
		Action: versionAction(commit),
	}
}

func versionAction(commit string) cli.ActionFunc {
	return func(c *cli.Context) error {
		r, err := render.NewRenderer(c)
		if err != nil {
			return err
		}

		if c.Bool("tui") {
			return cli.Exit("--tui is not supported for the version command", 1)
		}

		return r.Render(VersionResponse{Version: types.Version, Commit: commit})
	}
}
