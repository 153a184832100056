// Command skilllite runs one agent turn: load the skill registry and
// config, wire the control loop's tool registry, execute a single
// prompt to completion, and optionally trigger the evolution engine
// afterward (spec.md §4.E.1's per-session trigger point). Flag parsing
// and startup sequencing follow the teacher's cmd/buckley entrypoint,
// scoped down from its ACP/TUI/orchestrator surface to the single-shot
// CLI agent spec.md §4 actually describes.
package main

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/oklog/ulid/v2"

	"github.com/skilllite/skilllite/internal/agent"
	"github.com/skilllite/skilllite/internal/config"
	"github.com/skilllite/skilllite/internal/evolution"
	"github.com/skilllite/skilllite/internal/llm"
	"github.com/skilllite/skilllite/internal/policy"
	"github.com/skilllite/skilllite/internal/sandbox"
	"github.com/skilllite/skilllite/internal/skill"
	"github.com/skilllite/skilllite/internal/slogx"
	"github.com/skilllite/skilllite/internal/tracing"
)

// sessionEntropy mints ulid entropy for default session keys; package-level
// so a run that mints several ids (none currently do, but future callers
// might) shares one monotonic counter.
var sessionEntropy = ulid.Monotonic(rand.Reader, 0)

func main() {
	var (
		chatRoot   string
		configPath string
		prompt     string
		sessionKey string
	)
	flag.StringVar(&chatRoot, "chat-root", defaultChatRoot(), "SkillLite chat root directory")
	flag.StringVar(&configPath, "config", "", "path to skilllite.yaml (defaults to <chat-root>/skilllite.yaml)")
	flag.StringVar(&prompt, "prompt", "", "prompt to run; reads stdin if empty")
	flag.StringVar(&sessionKey, "session", "", "session key threading this turn into an existing conversation (defaults to a fresh id)")
	flag.Parse()
	if sessionKey == "" {
		sessionKey = ulid.MustNew(ulid.Timestamp(time.Now()), sessionEntropy).String()
	}

	if configPath == "" {
		configPath = filepath.Join(chatRoot, "skilllite.yaml")
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(2)
	}

	if prompt == "" {
		prompt = readStdinPrompt()
	}
	if strings.TrimSpace(prompt) == "" {
		fmt.Fprintln(os.Stderr, "Error: no prompt given (--prompt or stdin)")
		os.Exit(2)
	}

	log := slogx.For(slogx.CategoryAgent)

	// Tracing is a dev-mode diagnostic, not a default-on concern: spans go
	// to traces/<session>.jsonl under the chat root, mirroring slogx's
	// per-session JSONL sink convention.
	var traceFile *os.File
	if cfg.Dev {
		tracesDir := filepath.Join(chatRoot, "traces")
		if err := os.MkdirAll(tracesDir, 0o755); err != nil {
			log.Warn("creating traces directory failed, tracing disabled", "error", err)
		} else if f, err := os.OpenFile(filepath.Join(tracesDir, sessionKey+".jsonl"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err != nil {
			log.Warn("opening trace file failed, tracing disabled", "error", err)
		} else {
			traceFile = f
		}
	}
	shutdownTracing, err := tracing.Configure(traceFile, traceFile != nil)
	if err != nil {
		log.Warn("configuring tracing failed", "error", err)
		shutdownTracing = func(context.Context) error { return nil }
	}
	defer func() {
		_ = shutdownTracing(context.Background())
		if traceFile != nil {
			_ = traceFile.Close()
		}
	}()

	apiKey := os.Getenv(cfg.Models.APIKeyEnv)
	transport := llm.NewTransport(
		llm.ProviderConfig{APIKey: os.Getenv("OPENAI_API_KEY"), APIBase: cfg.Models.BaseURL},
		llm.ProviderConfig{APIKey: apiKey, APIBase: cfg.Models.BaseURL},
	)

	pol := policy.Default()
	if cfg.Sandbox.Mode == "relaxed" {
		pol = pol.Relaxed()
	}
	sb := sandbox.New(pol)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	skillsDir := filepath.Join(chatRoot, "skills")
	skillRegistry, loadErrs := skill.NewRegistry(skillsDir, slogx.For(slogx.CategorySkill))
	for _, e := range loadErrs {
		log.Warn("skill failed to load", "error", e)
	}
	if err := skillRegistry.Watch(); err != nil {
		log.Warn("skill hot-reload watcher failed to start", "error", err)
	}
	defer skillRegistry.Close()

	history := agent.NewHistory(systemPrompt(chatRoot))
	workDir := chatRoot
	outputDir := filepath.Join(chatRoot, "output")
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating output directory: %v\n", err)
		os.Exit(1)
	}

	// Task-planning loop (spec.md §4.D.2): ask the LLM to decompose the
	// request before entering the main loop, and emit the resulting plan
	// to the user. A planning failure degrades to the simple loop rather
	// than aborting the turn.
	var plan *agent.TaskList
	if cfg.Agent.Mode == config.AgentModeTaskPlanning {
		generated, err := agent.GeneratePlan(ctx, transport, cfg.Models.Planning, prompt)
		if err != nil {
			log.Warn("task planning failed, falling back to the simple loop", "error", err)
		} else {
			plan = generated
			printPlan(plan)
		}
	}

	toolRegistry := agent.NewDefaultRegistry(agent.WiringOptions{Policy: pol, History: history, Plan: plan})
	skillDocs := agent.RegisterSkills(toolRegistry, skillRegistry, sb, pol)

	history.Append(llm.Message{Role: "user", Content: prompt})

	loop := agent.NewLoop(agent.Config{
		Transport: transport,
		Model:     cfg.Models.Execution,
		Registry:  toolRegistry,
		History:   history,
		WorkDir:   workDir,
		OutputDir: outputDir,
		SessionID: sessionKey,
		SkillDoc:  skillDocs,
	}, plan)

	result, err := loop.Run(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(renderMarkdown(result))

	recordDecision(chatRoot, cfg, sessionKey, prompt, loop.Stats(), log)

	if cfg.Evolution.Enabled {
		runEvolution(ctx, chatRoot, cfg, transport, log)
	}
}

var planHeadingStyle = lipgloss.NewStyle().Bold(true).Underline(true)

// printPlan emits the task-planning loop's proposed task list to the
// user before the main loop starts executing it, per spec.md §4.D.2.
func printPlan(plan *agent.TaskList) {
	fmt.Println(planHeadingStyle.Render("Plan"))
	for _, t := range plan.Tasks {
		fmt.Printf("  %d. %s\n", t.ID, t.Description)
	}
}

// renderMarkdown renders the assistant's final response as terminal
// markdown (headings, code blocks, lists) via glamour, falling back to
// the raw text when the terminal's width can't be determined or
// rendering otherwise fails.
func renderMarkdown(content string) string {
	renderer, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
	if err != nil {
		return content
	}
	rendered, err := renderer.Render(content)
	if err != nil {
		return content
	}
	return strings.TrimRight(rendered, "\n")
}

// recordDecision populates the evolution engine's decision log with this
// turn's outcome (spec.md §3's Decision Record), so RunEvolution's
// sample-size gates ever have real data to observe. Storage failures are
// logged, not fatal — the decision log is a background-learning concern,
// never load-bearing for the turn that just completed.
func recordDecision(chatRoot string, cfg *config.Config, sessionKey, prompt string, stats agent.Stats, log *slog.Logger) {
	toolsDetail, err := json.Marshal(stats.ToolsDetail)
	if err != nil {
		toolsDetail = []byte("[]")
	}

	err = evolution.WithStore(evolutionDBPath(chatRoot, cfg), func(s *evolution.Store) error {
		implicit := false
		if previous, ok, err := s.LastTaskDescription(sessionKey); err == nil && ok {
			implicit = evolution.DetectImplicitCorrection(previous, prompt)
		}

		_, err := s.RecordDecision(evolution.DecisionRecord{
			SessionKey:         sessionKey,
			ChatRoot:           chatRoot,
			TaskDescription:    prompt,
			ToolCallCount:      stats.ToolCalls,
			Success:            stats.Completed,
			Replanned:          stats.Replanned,
			ElapsedMS:          stats.ElapsedMS,
			ToolsDetail:        string(toolsDetail),
			UserFeedback:       evolution.FeedbackNeutral,
			ImplicitCorrection: implicit,
		}, nil)
		return err
	})
	if err != nil {
		log.Warn("recording decision failed", "error", err)
	}
}

// runEvolution triggers one evolution cycle per spec.md §4.E.1's
// per-session hook. Failures are logged, not fatal — evolution is
// strictly a background-improvement concern, never load-bearing for the
// turn that just completed.
func runEvolution(ctx context.Context, chatRoot string, cfg *config.Config, transport *llm.Transport, log *slog.Logger) {
	evoCfg := evolution.Config{
		ChatRoot: chatRoot,
		DBPath:   evolutionDBPath(chatRoot, cfg),
		Trigger:  evolution.DefaultTriggerConfig(),
		Model:    cfg.Models.Planning,
		Transport: transport,
	}
	txnID, err := evolution.RunEvolution(ctx, evoCfg)
	if err != nil {
		log.Warn("evolution cycle failed", "error", err)
		return
	}
	if txnID != nil {
		log.Info("evolution cycle applied a mutation", "txn_id", *txnID)
	}
}

func evolutionDBPath(chatRoot string, cfg *config.Config) string {
	if cfg.Evolution.StorePath != "" {
		return cfg.Evolution.StorePath
	}
	return filepath.Join(chatRoot, "memory", "default.sqlite")
}

func systemPrompt(chatRoot string) string {
	rulesPath := filepath.Join(chatRoot, "prompts", "rules.json")
	if _, err := os.Stat(rulesPath); err != nil {
		return "You are SkillLite, a local-first agent that executes skills under sandboxed isolation."
	}
	return "You are SkillLite, a local-first agent that executes skills under sandboxed isolation. Evolved operating rules are loaded from " + rulesPath + "."
}

func readStdinPrompt() string {
	stat, err := os.Stdin.Stat()
	if err != nil || (stat.Mode()&os.ModeCharDevice) != 0 {
		return ""
	}
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	var b strings.Builder
	for scanner.Scan() {
		b.WriteString(scanner.Text())
		b.WriteString("\n")
	}
	return b.String()
}

func defaultChatRoot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".skilllite/chat"
	}
	return filepath.Join(home, ".skilllite", "chat")
}
