package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/agentcore/agent"
	"github.com/pithecene-io/agentcore/config"
	"github.com/pithecene-io/agentcore/journal"
	"github.com/pithecene-io/agentcore/kvstore"
	"github.com/pithecene-io/agentcore/log"
	"github.com/pithecene-io/agentcore/metrics"
	"github.com/pithecene-io/agentcore/store"
	"github.com/pithecene-io/agentcore/supervisor"
	"github.com/pithecene-io/agentcore/sync"
)

// appRuntime is the set of long-lived dependencies a single agentcorectl
// invocation wires up: one journal-backed kvstore, a Supervisor over a
// demo Backend, the store projections, and a Sync Service. A demo CLI
// process builds and tears these down once per invocation; there is no
// persistent daemon behind it (spec.md's KeyValueStore is an injected
// external collaborator, not something this binary implements).
type appRuntime struct {
	cfg     config.Config
	logger  *log.Logger
	metrics *metrics.Collector

	kv      kvstore.Store
	journal *journal.Journal

	supervisor *supervisor.Supervisor
	chat       *store.ChatHistory
	artifacts  *store.Artifacts
	sync       *sync.Service
}

func newAppRuntime(c *cli.Context, identity string) (*appRuntime, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := log.NewLogger(log.Context{Component: "agentcorectl"})
	coll := metrics.NewCollector("agentcorectl", identity)

	kv := kvstore.NewMemory()
	j, err := journal.Open(context.Background(), kv, "agentcorectl")
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	sup := supervisor.New(resolveSupervisorConfig(c, cfg), agent.NewStubBackend(demoMessages()...),
		supervisor.WithLogger(logger), supervisor.WithMetrics(coll))

	chat := store.NewChatHistory(j, kv, cfg.Storage.Chat, cfg.Storage.Enabled.ChatHistory, logger)
	artifacts := store.NewArtifacts(j, kv, cfg.Storage.Artifacts, cfg.Storage.Enabled.Artifacts, logger)

	syncSvc := sync.New(j, identity, []string{"chat_event", "artifact"}, cfg.Sync,
		sync.WithLogger(logger), sync.WithMetrics(coll))

	return &appRuntime{
		cfg:        cfg,
		logger:     logger,
		metrics:    coll,
		kv:         kv,
		journal:    j,
		supervisor: sup,
		chat:       chat,
		artifacts:  artifacts,
		sync:       syncSvc,
	}, nil
}

func (rt *appRuntime) Close() {
	rt.sync.Shutdown()
	rt.supervisor.Shutdown(context.Background())
}

// demoMessages is the scripted reply a submitted query streams back,
// standing in for a real agent backend in this terminal wrapper.
func demoMessages() []agent.Message {
	return []agent.Message{
		{"type": "assistant_text", "text": "working on it"},
		{"type": "assistant_text", "text": "done"},
	}
}
