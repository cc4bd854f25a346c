package main

import (
	"context"
	"fmt"
	"path/filepath"

	"evoforge/internal/agent"
	"evoforge/internal/artifact"
	"evoforge/internal/blueprint"
	"evoforge/internal/engine"
	"evoforge/internal/residue"
)

// buildEngine wires the orchestrator and its session from the loaded config.
// The returned cleanup closes the residue store.
func buildEngine() (*engine.Orchestrator, *engine.Session, func(), error) {
	registry, err := blueprint.NewRegistry(cfg.BlueprintDir)
	if err != nil {
		return nil, nil, nil, err
	}
	// Hot-reload blueprint YAML edits while a task runs.
	watcher, err := blueprint.NewWatcher(registry)
	if err == nil {
		_ = watcher.Start(context.Background())
	} else {
		watcher = nil
	}

	caps, err := agent.BuildAll(cfg.LLM)
	if err != nil {
		return nil, nil, nil, err
	}
	if len(caps) == 0 {
		return nil, nil, nil, fmt.Errorf("no model backends configured; add llm.backends to %s", cfgPath)
	}

	artifacts, err := artifact.NewStore(filepath.Join(dataDir, "artifacts"))
	if err != nil {
		return nil, nil, nil, err
	}
	store, err := residue.Open(residuePath())
	if err != nil {
		return nil, nil, nil, err
	}

	orch := engine.New(cfg, registry, agent.NewSelector(caps), artifacts, store)
	sess := engine.NewSession(orch, taskRoot())
	cleanup := func() {
		if watcher != nil {
			watcher.Stop()
		}
		_ = store.Close()
	}
	return orch, sess, cleanup, nil
}

func residuePath() string {
	if filepath.IsAbs(cfg.Residue.DatabasePath) {
		return cfg.Residue.DatabasePath
	}
	return filepath.Join(dataDir, cfg.Residue.DatabasePath)
}
