package main

import (
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/agentcore/cmd/agentcorectl/render"
	"github.com/pithecene-io/agentcore/core"
)

// ArtifactCommand groups artifact store operations: put, get, list, delete.
func ArtifactCommand() *cli.Command {
	return &cli.Command{
		Name:  "artifact",
		Usage: "Put, get, list, and delete session artifacts",
		Subcommands: []*cli.Command{
			artifactPutCommand(),
			artifactGetCommand(),
			artifactListCommand(),
			artifactDeleteCommand(),
		},
	}
}

func artifactPutCommand() *cli.Command {
	return &cli.Command{
		Name:  "put",
		Usage: "Store an artifact",
		Flags: append(ReadOnlyFlags(),
			&cli.StringFlag{Name: "session", Required: true},
			&cli.StringFlag{Name: "id", Required: true},
			&cli.StringFlag{Name: "kind", Value: "text"},
			&cli.StringFlag{Name: "content", Required: true},
		),
		Action: func(c *cli.Context) error {
			rt, err := newAppRuntime(c, "agentcorectl-artifact")
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			defer rt.Close()

			record := core.ArtifactRecord{
				ID:          c.String("id"),
				SessionID:   c.String("session"),
				Kind:        c.String("kind"),
				Content:     []byte(c.String("content")),
				CreatedAtMs: time.Now().UnixMilli(),
			}
			if err := rt.artifacts.Put(c.Context, record); err != nil {
				return cli.Exit(err.Error(), 1)
			}

			r, err := render.NewRenderer(c)
			if err != nil {
				return err
			}
			return r.Render(record)
		},
	}
}

func artifactGetCommand() *cli.Command {
	return &cli.Command{
		Name:  "get",
		Usage: "Fetch an artifact by id",
		Flags: append(ReadOnlyFlags(), &cli.StringFlag{Name: "id", Required: true}),
		Action: func(c *cli.Context) error {
			rt, err := newAppRuntime(c, "agentcorectl-artifact")
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			defer rt.Close()

			record, ok, err := rt.artifacts.Get(c.Context, c.String("id"))
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			if !ok {
				return cli.Exit("artifact not found", 1)
			}

			r, err := render.NewRenderer(c)
			if err != nil {
				return err
			}
			return r.Render(record)
		},
	}
}

func artifactListCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List a session's artifacts",
		Flags: append(ReadOnlyFlags(),
			&cli.StringFlag{Name: "session", Required: true},
			&cli.IntFlag{Name: "offset"},
			&cli.IntFlag{Name: "limit", Value: 100},
		),
		Action: func(c *cli.Context) error {
			rt, err := newAppRuntime(c, "agentcorectl-artifact")
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			defer rt.Close()

			records, err := rt.artifacts.List(c.Context, c.String("session"), c.Int("offset"), c.Int("limit"))
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}

			r, err := render.NewRenderer(c)
			if err != nil {
				return err
			}
			return r.Render(records)
		},
	}
}

func artifactDeleteCommand() *cli.Command {
	return &cli.Command{
		Name:  "delete",
		Usage: "Delete an artifact by id",
		Flags: append(ReadOnlyFlags(), &cli.StringFlag{Name: "id", Required: true}),
		Action: func(c *cli.Context) error {
			rt, err := newAppRuntime(c, "agentcorectl-artifact")
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			defer rt.Close()

			if err := rt.artifacts.Delete(c.Context, c.String("id"), time.Now().UnixMilli()); err != nil {
				return cli.Exit(err.Error(), 1)
			}

			r, err := render.NewRenderer(c)
			if err != nil {
				return err
			}
			return r.Render(map[string]string{"deleted": c.String("id")})
		},
	}
}
