package learn

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// sourcesFile is prompts/sources.json's on-disk name, per spec.md §6.
const sourcesFile = "sources.json"

// LoadSources reads prompts/sources.json from promptsDir. Missing file
// is not an error — it means no external-learning sources are
// configured yet.
func LoadSources(promptsDir string) ([]Source, error) {
	data, err := os.ReadFile(filepath.Join(promptsDir, sourcesFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read sources.json: %w", err)
	}
	var sources []Source
	if err := json.Unmarshal(data, &sources); err != nil {
		return nil, fmt.Errorf("parse sources.json: %w", err)
	}
	return sources, nil
}

// SaveSources writes sources back to prompts/sources.json.
func SaveSources(promptsDir string, sources []Source) error {
	if err := os.MkdirAll(promptsDir, 0o755); err != nil {
		return fmt.Errorf("create prompts dir: %w", err)
	}
	data, err := json.MarshalIndent(sources, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal sources.json: %w", err)
	}
	return os.WriteFile(filepath.Join(promptsDir, sourcesFile), data, 0o644)
}

// ApplyPauseAndRetire runs the pause/retire gates over a source list
// after a fetch run, per spec.md §4.E.5. Paused sources have Enabled set
// false; retired mutable sources are dropped from the returned slice
// entirely (seed/immutable sources are never retired, only paused).
func ApplyPauseAndRetire(sources []Source) []Source {
	out := make([]Source, 0, len(sources))
	for _, s := range sources {
		if s.ShouldRetire() {
			continue
		}
		if s.ShouldPause() {
			s.Enabled = false
		}
		out = append(out, s)
	}
	return out
}

// EnabledSources filters to enabled sources only, the candidate pool
// FetchAll prioritizes over.
func EnabledSources(sources []Source) []Source {
	var out []Source
	for _, s := range sources {
		if s.Enabled {
			out = append(out, s)
		}
	}
	return out
}
