package agent

import "testing"

func TestNewDefaultRegistryRegistersCoreBuiltins(t *testing.T) {
	r := NewDefaultRegistry(WiringOptions{
		History: NewHistory("system"),
		Plan:    &TaskList{},
	})

	for _, name := range []string{
		"read_file", "write_file", "list_directory", "file_exists",
		"search_replace", "run_command", "preview_server",
		"write_output", "list_output", "chat_history", "chat_plan",
		"update_task_plan",
	} {
		if _, ok := r.Get(name); !ok {
			t.Fatalf("expected %q to be registered", name)
		}
	}
}

func TestNewDefaultRegistryPathConfinementAppliesToReadFile(t *testing.T) {
	dir := t.TempDir()
	r := NewDefaultRegistry(WiringOptions{History: NewHistory(""), Plan: &TaskList{}})

	ctx := &ExecutionContext{
		ToolName: "read_file",
		WorkDir:  dir,
		Params:   map[string]any{"path": "../outside.txt"},
	}
	result, err := r.Dispatch(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Success {
		t.Fatal("expected path escape to be rejected by confinement middleware")
	}
}
