// Command skilllite-mcp runs SkillLite's MCP server: JSON-RPC 2.0 over
// newline-delimited stdin/stdout, exposing the skill registry and
// security scanner to an external MCP client (spec.md §6). Flag parsing
// and startup sequencing follow the teacher's cmd/buckley entrypoint
// (config load, dependency checks, signal-driven shutdown), scoped down
// to what a stdio server process needs.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/skilllite/skilllite/internal/config"
	"github.com/skilllite/skilllite/internal/mcpserver"
	"github.com/skilllite/skilllite/internal/policy"
	"github.com/skilllite/skilllite/internal/sandbox"
	"github.com/skilllite/skilllite/internal/skill"
	"github.com/skilllite/skilllite/internal/slogx"
)

func main() {
	var (
		chatRoot   string
		configPath string
	)
	flag.StringVar(&chatRoot, "chat-root", defaultChatRoot(), "SkillLite chat root directory")
	flag.StringVar(&configPath, "config", "", "path to skilllite.yaml (defaults to <chat-root>/skilllite.yaml)")
	flag.Parse()

	if configPath == "" {
		configPath = filepath.Join(chatRoot, "skilllite.yaml")
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(2)
	}
	if !cfg.MCP.Enabled {
		fmt.Fprintln(os.Stderr, "MCP server is disabled in config (mcp.enabled: false)")
		os.Exit(2)
	}

	log := slogx.For(slogx.CategoryMCP)

	skillsDir := filepath.Join(chatRoot, "skills")
	registry, loadErrs := skill.NewRegistry(skillsDir, slogx.For(slogx.CategorySkill))
	for _, e := range loadErrs {
		log.Warn("skill failed to load", "error", e)
	}
	if err := registry.Watch(); err != nil {
		log.Warn("skill hot-reload watcher failed to start", "error", err)
	}
	defer registry.Close()

	pol := policy.Default()
	sb := sandbox.New(pol)
	workDir := filepath.Join(chatRoot, "output")
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating work directory: %v\n", err)
		os.Exit(1)
	}

	srv := mcpserver.NewServer(registry, sb, pol, workDir, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("skilllite-mcp starting", "chat_root", chatRoot, "skills_dir", skillsDir)
	if err := srv.Serve(ctx, os.Stdin, os.Stdout); err != nil {
		log.Error("mcp server exited", "error", err)
		os.Exit(1)
	}
}

func defaultChatRoot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".skilllite/chat"
	}
	return filepath.Join(home, ".skilllite", "chat")
}
