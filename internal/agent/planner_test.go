package agent

import (
	"encoding/json"
	"testing"
)

func TestProposePlanSchemaRequiresTasks(t *testing.T) {
	var decoded map[string]any
	if err := json.Unmarshal(proposePlanSchema(), &decoded); err != nil {
		t.Fatalf("schema is not valid JSON: %v", err)
	}
	required, ok := decoded["required"].([]any)
	if !ok || len(required) != 1 || required[0] != "tasks" {
		t.Fatalf("expected schema to require tasks, got %v", decoded["required"])
	}
}
