// Package config loads SkillLite's YAML configuration file, merging a
// user-supplied override on top of built-in defaults field by field so an
// empty or partial config.yaml never zeroes out the rest.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/skilllite/skilllite/internal/errs"
)

const (
	DefaultPlanningModel  = "anthropic/claude-sonnet-4-5"
	DefaultExecutionModel = "anthropic/claude-sonnet-4-5"
	DefaultProvider       = "anthropic"

	DefaultSandboxMode      = "strict"
	DefaultSandboxTimeout   = 5 * time.Minute
	DefaultSandboxMemoryMB  = 512
	DefaultSandboxCPUShares = 1

	DefaultApprovalMode = "ask"

	DefaultMutationCapPerDay = 20
	DefaultMinSampleSize     = 20
	DefaultMetricDeclineTol  = 0.05
)

// Config is the complete SkillLite configuration.
type Config struct {
	Models    ModelConfig     `yaml:"models"`
	Agent     AgentConfig     `yaml:"agent"`
	Sandbox   SandboxConfig   `yaml:"sandbox"`
	Policy    PolicyConfig    `yaml:"policy"`
	Approval  ApprovalConfig  `yaml:"approval"`
	Evolution EvolutionConfig `yaml:"evolution"`
	MCP       MCPConfig       `yaml:"mcp"`
	Learn     LearnConfig     `yaml:"learn"`
	Dev       bool            `yaml:"dev"`
}

// AgentModeSimple selects the single while-loop entry path (spec.md
// §4.D.1): no upfront planning call, no per-task discipline.
const AgentModeSimple = "simple"

// AgentModeTaskPlanning selects the task-planning entry path (spec.md
// §4.D.2): a propose_plan call precedes the main loop, which then
// enforces budget, completion-claim, and per-task-depth discipline
// against the resulting plan.
const AgentModeTaskPlanning = "task_planning"

type AgentConfig struct {
	// Mode picks between the two entry paths spec.md §4.D describes:
	// "simple" or "task_planning".
	Mode string `yaml:"mode"`
}

type ModelConfig struct {
	Planning        string `yaml:"planning"`
	Execution       string `yaml:"execution"`
	DefaultProvider string `yaml:"default_provider"`
	APIKeyEnv       string `yaml:"api_key_env"`
	BaseURL         string `yaml:"base_url"`
}

type SandboxConfig struct {
	Mode        string        `yaml:"mode"`
	Timeout     time.Duration `yaml:"timeout"`
	MemoryMB    int           `yaml:"memory_mb"`
	CPUShares   int           `yaml:"cpu_shares"`
	WorkspaceRO bool          `yaml:"workspace_readonly"`
}

type PolicyConfig struct {
	DenyListPath    string   `yaml:"deny_list_path"`
	AllowNetworkTo  []string `yaml:"allow_network_to"`
	ProtectedPaths  []string `yaml:"protected_paths"`
}

type ApprovalConfig struct {
	Mode                string   `yaml:"mode"` // ask | auto | deny
	AutoApproveCommands []string `yaml:"auto_approve_commands"`
}

type EvolutionConfig struct {
	Enabled            bool    `yaml:"enabled"`
	MutationCapPerDay  int     `yaml:"mutation_cap_per_day"`
	MinSampleSize      int     `yaml:"min_sample_size"`
	MetricDeclineTol   float64 `yaml:"metric_decline_tolerance"`
	StorePath          string  `yaml:"store_path"`
}

type MCPConfig struct {
	Enabled bool `yaml:"enabled"`
}

type LearnConfig struct {
	Enabled bool     `yaml:"enabled"`
	Sources []string `yaml:"sources"`
}

// Default returns SkillLite's built-in configuration.
func Default() *Config {
	return &Config{
		Models: ModelConfig{
			Planning:        DefaultPlanningModel,
			Execution:       DefaultExecutionModel,
			DefaultProvider: DefaultProvider,
			APIKeyEnv:       "ANTHROPIC_API_KEY",
		},
		Agent: AgentConfig{Mode: AgentModeTaskPlanning},
		Sandbox: SandboxConfig{
			Mode:        DefaultSandboxMode,
			Timeout:     DefaultSandboxTimeout,
			MemoryMB:    DefaultSandboxMemoryMB,
			CPUShares:   DefaultSandboxCPUShares,
			WorkspaceRO: false,
		},
		Policy: PolicyConfig{
			ProtectedPaths: []string{".git", ".skilllite.lock"},
		},
		Approval: ApprovalConfig{Mode: DefaultApprovalMode},
		Evolution: EvolutionConfig{
			Enabled:           true,
			MutationCapPerDay: DefaultMutationCapPerDay,
			MinSampleSize:     DefaultMinSampleSize,
			MetricDeclineTol:  DefaultMetricDeclineTol,
			StorePath:         "~/.skilllite/evolution.db",
		},
		MCP:   MCPConfig{Enabled: true},
		Learn: LearnConfig{Enabled: false},
	}
}

// Load reads path and merges it onto Default(), leaving unset fields at
// their defaults. A missing file is not an error: the caller gets
// defaults back untouched.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, errs.Wrap(err, errs.CodeConfigLoad, "reading config file").WithContext("path", path)
	}

	// MCP.Enabled defaults to true and merge copies it unconditionally, so
	// the override starts from the default and keeps it when the file
	// omits the key.
	override := Config{MCP: cfg.MCP}
	if err := yaml.Unmarshal(data, &override); err != nil {
		return nil, errs.Wrap(err, errs.CodeConfigInvalid, "parsing config YAML").WithContext("path", path)
	}
	merge(cfg, &override)
	return cfg, nil
}

// merge overlays non-zero fields of override onto base.
func merge(base, override *Config) {
	if override.Models.Planning != "" {
		base.Models.Planning = override.Models.Planning
	}
	if override.Models.Execution != "" {
		base.Models.Execution = override.Models.Execution
	}
	if override.Models.DefaultProvider != "" {
		base.Models.DefaultProvider = override.Models.DefaultProvider
	}
	if override.Models.APIKeyEnv != "" {
		base.Models.APIKeyEnv = override.Models.APIKeyEnv
	}
	if override.Models.BaseURL != "" {
		base.Models.BaseURL = override.Models.BaseURL
	}
	if override.Agent.Mode != "" {
		base.Agent.Mode = override.Agent.Mode
	}
	if override.Sandbox.Mode != "" {
		base.Sandbox.Mode = override.Sandbox.Mode
	}
	if override.Sandbox.Timeout != 0 {
		base.Sandbox.Timeout = override.Sandbox.Timeout
	}
	if override.Sandbox.MemoryMB != 0 {
		base.Sandbox.MemoryMB = override.Sandbox.MemoryMB
	}
	if override.Sandbox.CPUShares != 0 {
		base.Sandbox.CPUShares = override.Sandbox.CPUShares
	}
	base.Sandbox.WorkspaceRO = override.Sandbox.WorkspaceRO
	if override.Policy.DenyListPath != "" {
		base.Policy.DenyListPath = override.Policy.DenyListPath
	}
	if len(override.Policy.AllowNetworkTo) > 0 {
		base.Policy.AllowNetworkTo = override.Policy.AllowNetworkTo
	}
	if len(override.Policy.ProtectedPaths) > 0 {
		base.Policy.ProtectedPaths = override.Policy.ProtectedPaths
	}
	if override.Approval.Mode != "" {
		base.Approval.Mode = override.Approval.Mode
	}
	if len(override.Approval.AutoApproveCommands) > 0 {
		base.Approval.AutoApproveCommands = override.Approval.AutoApproveCommands
	}
	base.Evolution.Enabled = override.Evolution.Enabled || base.Evolution.Enabled
	if override.Evolution.MutationCapPerDay != 0 {
		base.Evolution.MutationCapPerDay = override.Evolution.MutationCapPerDay
	}
	if override.Evolution.MinSampleSize != 0 {
		base.Evolution.MinSampleSize = override.Evolution.MinSampleSize
	}
	if override.Evolution.MetricDeclineTol != 0 {
		base.Evolution.MetricDeclineTol = override.Evolution.MetricDeclineTol
	}
	if override.Evolution.StorePath != "" {
		base.Evolution.StorePath = override.Evolution.StorePath
	}
	base.MCP.Enabled = override.MCP.Enabled
	base.Learn.Enabled = override.Learn.Enabled
	if len(override.Learn.Sources) > 0 {
		base.Learn.Sources = override.Learn.Sources
	}
	base.Dev = override.Dev
}

// ExpandHome resolves a leading "~" in p against the user's home directory.
func ExpandHome(p string) (string, error) {
	if len(p) == 0 || p[0] != '~' {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, p[1:]), nil
}
