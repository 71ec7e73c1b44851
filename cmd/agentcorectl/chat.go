package main

import (
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/agentcore/cmd/agentcorectl/render"
	"github.com/pithecene-io/agentcore/core"
	"github.com/pithecene-io/agentcore/store"
)

// ChatCommand groups chat-history store operations: append and list.
func ChatCommand() *cli.Command {
	return &cli.Command{
		Name:  "chat",
		Usage: "Append to and list a session's chat history",
		Subcommands: []*cli.Command{
			chatAppendCommand(),
			chatListCommand(),
		},
	}
}

func chatAppendCommand() *cli.Command {
	return &cli.Command{
		Name:  "append",
		Usage: "Append one message to a session's chat history",
		Flags: append(ReadOnlyFlags(),
			&cli.StringFlag{Name: "session", Required: true},
			&cli.StringFlag{Name: "text", Required: true},
			&cli.StringFlag{Name: "source", Value: string(core.ChatSourceUser), Usage: "sdk, user, or system"},
		),
		Action: func(c *cli.Context) error {
			rt, err := newAppRuntime(c, "agentcorectl-chat")
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			defer rt.Close()

			event, err := rt.chat.AppendMessage(c.Context, c.String("session"),
				map[string]any{"text": c.String("text")},
				store.AppendOptions{Source: core.ChatSource(c.String("source"))})
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}

			r, err := render.NewRenderer(c)
			if err != nil {
				return err
			}
			return r.Render(event)
		},
	}
}

func chatListCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List a session's chat history",
		Flags: append(ReadOnlyFlags(),
			&cli.StringFlag{Name: "session", Required: true},
			&cli.IntFlag{Name: "limit"},
			&cli.BoolFlag{Name: "reverse"},
		),
		Action: func(c *cli.Context) error {
			rt, err := newAppRuntime(c, "agentcorectl-chat")
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			defer rt.Close()

			events, err := rt.chat.List(c.Context, c.String("session"), store.ListOptions{
				Limit:   c.Int("limit"),
				Reverse: c.Bool("reverse"),
			})
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}

			r, err := render.NewRenderer(c)
			if err != nil {
				return err
			}
			return r.Render(events)
		},
	}
}
