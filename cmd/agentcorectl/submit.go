package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/agentcore/agent"
	"github.com/pithecene-io/agentcore/cmd/agentcorectl/render"
	"github.com/pithecene-io/agentcore/core"
)

// SubmitResult is the response for the submit command.
type SubmitResult struct {
	QueryID  string   `json:"query_id"`
	Messages []string `json:"messages"`
	Status   string   `json:"status"`
}

// SubmitCommand exercises supervisor.Submit end to end against the demo
// Backend: admit, drain the message stream to completion, and report the
// terminal status.
func SubmitCommand() *cli.Command {
	return &cli.Command{
		Name:  "submit",
		Usage: "Submit a query to the supervisor and print its result",
		Flags: append(ReadOnlyFlags(),
			&cli.StringFlag{Name: "prompt", Usage: "Prompt text", Value: "hello"},
			&cli.IntFlag{Name: "concurrency", Usage: "Supervisor concurrency limit"},
			&cli.IntFlag{Name: "queue-capacity", Usage: "Pending queue capacity"},
			&cli.StringFlag{Name: "queue-strategy", Usage: "Pending queue overflow strategy: suspend, dropping, sliding"},
			&cli.DurationFlag{Name: "max-pending-time", Usage: "Max time a submission waits in the pending queue"},
			&cli.BoolFlag{Name: "metrics", Usage: "Enable metrics collection"},
			&cli.BoolFlag{Name: "emit-events", Usage: "Enable the supervisor lifecycle event bus"},
		),
		Action: submitAction,
	}
}

func submitAction(c *cli.Context) error {
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for the submit command", 1)
	}

	rt, err := newAppRuntime(c, "agentcorectl-submit")
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	defer rt.Close()

	ctx := context.Background()
	handle, err := rt.supervisor.Submit(ctx, c.String("prompt"), agent.Options{})
	if err != nil {
		return cli.Exit(fmt.Sprintf("submit: %v", err), 1)
	}

	var texts []string
	for msg := range handle.Messages() {
		if t, ok := msg["text"].(string); ok {
			texts = append(texts, t)
		}
	}
	if sh, ok := handle.(interface{ Finish(core.CompletionStatus) }); ok {
		sh.Finish(core.CompletionSuccess)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	return r.Render(SubmitResult{Messages: texts, Status: string(core.CompletionSuccess)})
}
