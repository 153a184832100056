package agent

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func schemaObject(props map[string]any, required ...string) json.RawMessage {
	obj := map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
	b, _ := json.Marshal(obj)
	return b
}

func stringParam(ctx *ExecutionContext, name string) (string, bool) {
	s, ok := ctx.Params[name].(string)
	return s, ok
}

// ReadFileTool reads file contents; resolution happens in
// WithPathConfinement before Execute runs, grounded on
// pkg/tool/builtin/file.go's ReadFileTool.
type ReadFileTool struct{}

func (ReadFileTool) Name() string { return "read_file" }
func (ReadFileTool) Description() string {
	return "Read the contents of a file at the given path."
}
func (ReadFileTool) Schema() json.RawMessage {
	return schemaObject(map[string]any{
		"path": map[string]any{"type": "string", "description": "Path to the file to read"},
	}, "path")
}
func (ReadFileTool) Execute(ctx *ExecutionContext) (*ToolResult, error) {
	path, ok := stringParam(ctx, "path")
	if !ok {
		return &ToolResult{Success: false, Error: "path parameter must be a string"}, nil
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return &ToolResult{Success: false, Error: fmt.Sprintf("failed to read file: %v", err)}, nil
	}
	return &ToolResult{
		Success: true,
		Output:  string(content),
		Data:    map[string]any{"path": path, "size": len(content)},
	}, nil
}

// WriteFileTool writes or appends content to a file.
type WriteFileTool struct{}

func (WriteFileTool) Name() string { return "write_file" }
func (WriteFileTool) Description() string {
	return "Write content to a file, creating parent directories as needed. Supports append mode."
}
func (WriteFileTool) Schema() json.RawMessage {
	return schemaObject(map[string]any{
		"path":    map[string]any{"type": "string", "description": "Path to the file to write"},
		"content": map[string]any{"type": "string", "description": "Content to write"},
		"append":  map[string]any{"type": "boolean", "description": "Append instead of overwrite", "default": false},
	}, "path", "content")
}
func (WriteFileTool) Execute(ctx *ExecutionContext) (*ToolResult, error) {
	path, ok := stringParam(ctx, "path")
	if !ok {
		return &ToolResult{Success: false, Error: "path parameter must be a string"}, nil
	}
	content, ok := stringParam(ctx, "content")
	if !ok {
		return &ToolResult{Success: false, Error: "content parameter must be a string"}, nil
	}
	appendMode, _ := ctx.Params["append"].(bool)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return &ToolResult{Success: false, Error: fmt.Sprintf("failed to create directory: %v", err)}, nil
	}

	if appendMode {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return &ToolResult{Success: false, Error: fmt.Sprintf("failed to open file: %v", err)}, nil
		}
		defer f.Close()
		if _, err := f.WriteString(content); err != nil {
			return &ToolResult{Success: false, Error: fmt.Sprintf("failed to append to file: %v", err)}, nil
		}
	} else if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return &ToolResult{Success: false, Error: fmt.Sprintf("failed to write file: %v", err)}, nil
	}

	verb := "Wrote"
	if appendMode {
		verb = "Appended to"
	}
	return &ToolResult{
		Success: true,
		Output:  fmt.Sprintf("%s %s (%d bytes)", verb, filepath.Base(path), len(content)),
		Data:    map[string]any{"path": path, "size": len(content)},
	}, nil
}

// ListDirectoryTool lists entries of a directory.
type ListDirectoryTool struct{}

func (ListDirectoryTool) Name() string        { return "list_directory" }
func (ListDirectoryTool) Description() string { return "List files and directories at a path." }
func (ListDirectoryTool) Schema() json.RawMessage {
	return schemaObject(map[string]any{
		"path": map[string]any{"type": "string", "description": "Directory to list", "default": "."},
	})
}
func (ListDirectoryTool) Execute(ctx *ExecutionContext) (*ToolResult, error) {
	path := "."
	if p, ok := stringParam(ctx, "path"); ok && p != "" {
		path = p
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return &ToolResult{Success: false, Error: fmt.Sprintf("failed to read directory: %v", err)}, nil
	}
	files := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, map[string]any{"name": e.Name(), "is_dir": e.IsDir(), "size": info.Size()})
	}
	return &ToolResult{Success: true, Data: map[string]any{"path": path, "files": files, "count": len(files)}}, nil
}

// FileExistsTool checks existence and basic metadata of a path.
type FileExistsTool struct{}

func (FileExistsTool) Name() string { return "file_exists" }
func (FileExistsTool) Description() string {
	return "Check whether a file or directory exists and return basic metadata."
}
func (FileExistsTool) Schema() json.RawMessage {
	return schemaObject(map[string]any{
		"path": map[string]any{"type": "string", "description": "Path to check"},
	}, "path")
}
func (FileExistsTool) Execute(ctx *ExecutionContext) (*ToolResult, error) {
	path, ok := stringParam(ctx, "path")
	if !ok || path == "" {
		return &ToolResult{Success: false, Error: "path parameter must be a non-empty string"}, nil
	}
	info, err := os.Stat(path)
	exists := err == nil
	data := map[string]any{"path": path, "exists": exists}
	if exists {
		data["is_dir"] = info.IsDir()
		data["size"] = info.Size()
	}
	return &ToolResult{Success: true, Data: data}, nil
}

// SearchReplaceTool performs an exact-match edit with optional
// multi-occurrence replacement and sensitive-path blocking, per
// spec.md §4.D.3.
type SearchReplaceTool struct {
	Policy interface {
		IsMandatoryDenyWrite(string) bool
	}
}

func (t SearchReplaceTool) Name() string { return "search_replace" }
func (t SearchReplaceTool) Description() string {
	return "Replace an exact-match substring within a file, with a diff preview of the change."
}
func (t SearchReplaceTool) Schema() json.RawMessage {
	return schemaObject(map[string]any{
		"path":      map[string]any{"type": "string", "description": "File to edit"},
		"search":    map[string]any{"type": "string", "description": "Exact text to find"},
		"replace":   map[string]any{"type": "string", "description": "Replacement text"},
		"all":       map[string]any{"type": "boolean", "description": "Replace every occurrence instead of just the first", "default": false},
	}, "path", "search", "replace")
}
func (t SearchReplaceTool) Execute(ctx *ExecutionContext) (*ToolResult, error) {
	path, ok := stringParam(ctx, "path")
	if !ok {
		return &ToolResult{Success: false, Error: "path parameter must be a string"}, nil
	}
	search, _ := stringParam(ctx, "search")
	replace, _ := stringParam(ctx, "replace")
	all, _ := ctx.Params["all"].(bool)

	if t.Policy != nil && t.Policy.IsMandatoryDenyWrite(path) {
		return &ToolResult{Success: false, Error: fmt.Sprintf("write to %q is blocked by policy", path)}, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return &ToolResult{Success: false, Error: fmt.Sprintf("failed to read file: %v", err)}, nil
	}
	original := string(content)
	if !strings.Contains(original, search) {
		return &ToolResult{Success: false, Error: "search text not found in file"}, nil
	}

	var updated string
	count := 1
	if all {
		count = strings.Count(original, search)
		updated = strings.ReplaceAll(original, search, replace)
	} else {
		updated = strings.Replace(original, search, replace, 1)
	}

	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		return &ToolResult{Success: false, Error: fmt.Sprintf("failed to write file: %v", err)}, nil
	}

	diff := unifiedDiffPreview(original, updated, path)
	return &ToolResult{
		Success: true,
		Output:  fmt.Sprintf("Replaced %d occurrence(s) in %s\n\n%s", count, filepath.Base(path), diff),
		Data:    map[string]any{"path": path, "replacements": count},
	}, nil
}
