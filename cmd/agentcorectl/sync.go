package main

import (
	"context"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/agentcore/cmd/agentcorectl/render"
	"github.com/pithecene-io/agentcore/sync"
)

// SyncCommand groups the Remote Sync Engine operations: connect, disconnect,
// sync-now, and status, one subcommand each.
func SyncCommand() *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Manage Remote Sync Engine connections",
		Subcommands: []*cli.Command{
			syncConnectCommand(),
			syncDisconnectCommand(),
			syncNowCommand(),
			syncStatusCommand(),
		},
	}
}

func syncConnectCommand() *cli.Command {
	return &cli.Command{
		Name:  "connect",
		Usage: "Register a WebSocket remote and start its connector",
		Flags: append(ReadOnlyFlags(),
			&cli.StringFlag{Name: "url", Required: true, Usage: "ws:// or wss:// remote address"},
			&cli.StringSliceFlag{Name: "protocol", Usage: "Subprotocol(s) to offer during the handshake"},
			&cli.BoolFlag{Name: "disable-ping", Usage: "Skip the liveness ping/pong nonce exchange"},
		),
		Action: func(c *cli.Context) error {
			rt, err := newAppRuntime(c, "agentcorectl-sync")
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			defer rt.Close()

			rt.sync.ConnectWebSocket(&sync.WebSocketDialer{Protocols: c.StringSlice("protocol")}, c.String("url"), sync.WebSocketOptions{
				Protocols:   c.StringSlice("protocol"),
				DisablePing: c.Bool("disable-ping"),
			})

			r, err := render.NewRenderer(c)
			if err != nil {
				return err
			}
			return r.Render(rt.sync.Status())
		},
	}
}

func syncDisconnectCommand() *cli.Command {
	return &cli.Command{
		Name:  "disconnect",
		Usage: "Disconnect a registered remote by its key",
		Flags: append(ReadOnlyFlags(), &cli.StringFlag{Name: "key", Required: true}),
		Action: func(c *cli.Context) error {
			rt, err := newAppRuntime(c, "agentcorectl-sync")
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			defer rt.Close()

			rt.sync.Disconnect(c.String("key"))

			r, err := render.NewRenderer(c)
			if err != nil {
				return err
			}
			return r.Render(rt.sync.Status())
		},
	}
}

func syncNowCommand() *cli.Command {
	return &cli.Command{
		Name:  "sync-now",
		Usage: "Force every connector to restart its push/pull cycle immediately",
		Flags: append(ReadOnlyFlags(), &cli.DurationFlag{Name: "timeout", Value: 10 * time.Second}),
		Action: func(c *cli.Context) error {
			rt, err := newAppRuntime(c, "agentcorectl-sync")
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			defer rt.Close()

			ctx, cancel := context.WithTimeout(context.Background(), c.Duration("timeout"))
			defer cancel()
			if err := rt.sync.SyncNow(ctx); err != nil {
				return cli.Exit(err.Error(), 1)
			}

			r, err := render.NewRenderer(c)
			if err != nil {
				return err
			}
			return r.Render(rt.sync.Status())
		},
	}
}

func syncStatusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show every registered remote's sync status",
		Flags: ReadOnlyFlags(),
		Action: func(c *cli.Context) error {
			rt, err := newAppRuntime(c, "agentcorectl-sync")
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			defer rt.Close()

			if c.Bool("tui") {
				return cli.Exit("--tui is not supported for sync status; use the top-level status command", 1)
			}

			r, err := render.NewRenderer(c)
			if err != nil {
				return err
			}
			return r.Render(rt.sync.Status())
		},
	}
}
