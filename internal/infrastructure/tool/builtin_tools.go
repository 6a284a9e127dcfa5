package tool

import (
	"context"
	"fmt"
	"strings"

	domaintool "github.com/ngoclaw/ngoclaw/gateway/internal/domain/tool"
	"github.com/ngoclaw/ngoclaw/gateway/internal/infrastructure/sandbox"
	"go.uber.org/zap"
)

// Result and Kind aliases keep tool constructors readable without repeating
// the domaintool. qualifier throughout this file.
type Result = domaintool.Result
type Kind = domaintool.Kind

// RegisterBuiltins wires the sandboxed filesystem/exec tool set the kernel
// dispatches against to close a Delta — every action an agent run proposes
// ultimately bottoms out in one of these.
func RegisterBuiltins(reg domaintool.Registry, sbx *sandbox.ProcessSandbox, logger *zap.Logger) error {
	tools := []domaintool.Tool{
		NewBashTool(sbx, logger),
		NewReadFileTool(sbx, logger),
		NewWriteFileTool(sbx, logger),
		NewListDirTool(sbx, logger),
		NewSearchTool(sbx, logger),
	}
	for _, t := range tools {
		if err := reg.Register(t); err != nil {
			return fmt.Errorf("register tool %q: %w", t.Name(), err)
		}
	}
	return nil
}

// BashTool executes a shell command inside the sandbox.
type BashTool struct {
	sandbox *sandbox.ProcessSandbox
	logger  *zap.Logger
}

func NewBashTool(sbx *sandbox.ProcessSandbox, logger *zap.Logger) *BashTool {
	return &BashTool{sandbox: sbx, logger: logger}
}

func (t *BashTool) Name() string         { return "bash" }
func (t *BashTool) Kind() domaintool.Kind { return domaintool.KindExecute }

func (t *BashTool) Description() string {
	return `Execute a shell command in a sandboxed working directory.
Commands run with a bounded timeout; a non-zero exit code or a timeout is
reported as a failed ToolResult rather than an error, so the kernel records
it as a failure entry instead of aborting the run.`
}

func (t *BashTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"command":  map[string]interface{}{"type": "string", "description": "the shell command to run"},
			"work_dir": map[string]interface{}{"type": "string", "description": "optional working directory override"},
		},
		"required": []string{"command"},
	}
}

func (t *BashTool) Execute(ctx context.Context, args map[string]interface{}) (*Result, error) {
	command, ok := args["command"].(string)
	if !ok || command == "" {
		return &Result{Success: false, Error: "command is required"}, nil
	}
	if workDir, ok := args["work_dir"].(string); ok && workDir != "" {
		if err := t.sandbox.SetWorkDir(workDir); err != nil {
			return &Result{Success: false, Error: err.Error()}, nil
		}
	}

	t.logger.Debug("executing bash command", zap.String("command", command))

	result, err := t.sandbox.ExecuteShell(ctx, command)
	if err != nil {
		errMsg := err.Error()
		if result != nil {
			errMsg = result.Stderr
		}
		return &Result{Success: false, Error: errMsg}, nil
	}

	output := result.Stdout
	if result.Stderr != "" {
		output += "\n[stderr]\n" + result.Stderr
	}

	return &Result{
		Output:  output,
		Success: result.ExitCode == 0,
		Metadata: map[string]interface{}{
			"exit_code": result.ExitCode,
			"duration":  result.Duration.String(),
		},
	}, nil
}

// ReadFileTool reads a file, or a line range of it, through the sandbox.
type ReadFileTool struct {
	sandbox *sandbox.ProcessSandbox
	logger  *zap.Logger
}

func NewReadFileTool(sbx *sandbox.ProcessSandbox, logger *zap.Logger) *ReadFileTool {
	return &ReadFileTool{sandbox: sbx, logger: logger}
}

func (t *ReadFileTool) Name() string         { return "read_file" }
func (t *ReadFileTool) Kind() domaintool.Kind { return domaintool.KindRead }

func (t *ReadFileTool) Description() string {
	return "Read the contents of a file, optionally limited to a line range."
}

func (t *ReadFileTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path":       map[string]interface{}{"type": "string", "description": "path to the file to read"},
			"start_line": map[string]interface{}{"type": "integer", "description": "optional 1-indexed start line"},
			"end_line":   map[string]interface{}{"type": "integer", "description": "optional 1-indexed end line"},
		},
		"required": []string{"path"},
	}
}

func (t *ReadFileTool) Execute(ctx context.Context, args map[string]interface{}) (*Result, error) {
	path, ok := args["path"].(string)
	if !ok || path == "" {
		return &Result{Success: false, Error: "path is required"}, nil
	}

	var cmd string
	startLine, hasStart := args["start_line"].(float64)
	endLine, hasEnd := args["end_line"].(float64)
	switch {
	case hasStart && hasEnd:
		cmd = fmt.Sprintf("sed -n '%d,%dp' '%s'", int(startLine), int(endLine), path)
	case hasStart:
		cmd = fmt.Sprintf("tail -n +%d '%s'", int(startLine), path)
	case hasEnd:
		cmd = fmt.Sprintf("head -n %d '%s'", int(endLine), path)
	default:
		cmd = fmt.Sprintf("cat '%s'", path)
	}

	result, err := t.sandbox.ExecuteShell(ctx, cmd)
	if err != nil {
		errMsg := err.Error()
		if result != nil {
			errMsg = result.Stderr
		}
		return &Result{Success: false, Error: errMsg}, nil
	}
	return &Result{Output: result.Stdout, Success: result.ExitCode == 0, Metadata: map[string]interface{}{"path": path}}, nil
}

// WriteFileTool writes (creating or overwriting) a file through the sandbox.
type WriteFileTool struct {
	sandbox *sandbox.ProcessSandbox
	logger  *zap.Logger
}

func NewWriteFileTool(sbx *sandbox.ProcessSandbox, logger *zap.Logger) *WriteFileTool {
	return &WriteFileTool{sandbox: sbx, logger: logger}
}

func (t *WriteFileTool) Name() string         { return "write_file" }
func (t *WriteFileTool) Kind() domaintool.Kind { return domaintool.KindEdit }

func (t *WriteFileTool) Description() string {
	return "Write content to a file, creating it if it doesn't exist or overwriting it if it does."
}

func (t *WriteFileTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path":    map[string]interface{}{"type": "string", "description": "path to the file to write"},
			"content": map[string]interface{}{"type": "string", "description": "content to write"},
		},
		"required": []string{"path", "content"},
	}
}

func (t *WriteFileTool) Execute(ctx context.Context, args map[string]interface{}) (*Result, error) {
	path, ok := args["path"].(string)
	if !ok || path == "" {
		return &Result{Success: false, Error: "path is required"}, nil
	}
	content, ok := args["content"].(string)
	if !ok {
		return &Result{Success: false, Error: "content is required"}, nil
	}

	cmd := fmt.Sprintf("cat > '%s' << 'NGOCLAW_EOF'\n%s\nNGOCLAW_EOF", path, content)
	result, err := t.sandbox.ExecuteShell(ctx, cmd)
	if err != nil {
		errMsg := err.Error()
		if result != nil {
			errMsg = result.Stderr
		}
		return &Result{Success: false, Error: errMsg}, nil
	}

	return &Result{
		Output:  fmt.Sprintf("wrote %d bytes to %s", len(content), path),
		Success: result.ExitCode == 0,
		Metadata: map[string]interface{}{"path": path, "bytes_written": len(content)},
	}, nil
}

// ListDirTool lists a directory's contents through the sandbox.
type ListDirTool struct {
	sandbox *sandbox.ProcessSandbox
	logger  *zap.Logger
}

func NewListDirTool(sbx *sandbox.ProcessSandbox, logger *zap.Logger) *ListDirTool {
	return &ListDirTool{sandbox: sbx, logger: logger}
}

func (t *ListDirTool) Name() string         { return "list_dir" }
func (t *ListDirTool) Kind() domaintool.Kind { return domaintool.KindRead }

func (t *ListDirTool) Description() string {
	return "List the contents of a directory, optionally recursively."
}

func (t *ListDirTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path":      map[string]interface{}{"type": "string", "description": "directory to list"},
			"recursive": map[string]interface{}{"type": "boolean", "description": "list recursively"},
		},
		"required": []string{"path"},
	}
}

func (t *ListDirTool) Execute(ctx context.Context, args map[string]interface{}) (*Result, error) {
	path, ok := args["path"].(string)
	if !ok || path == "" {
		path = "."
	}
	recursive, _ := args["recursive"].(bool)

	var cmd string
	if recursive {
		cmd = fmt.Sprintf("find '%s' -maxdepth 3 | head -200", path)
	} else {
		cmd = fmt.Sprintf("ls -la '%s'", path)
	}

	result, err := t.sandbox.ExecuteShell(ctx, cmd)
	if err != nil {
		errMsg := err.Error()
		if result != nil {
			errMsg = result.Stderr
		}
		return &Result{Success: false, Error: errMsg}, nil
	}
	return &Result{Output: result.Stdout, Success: result.ExitCode == 0, Metadata: map[string]interface{}{"path": path}}, nil
}

// SearchTool greps for a pattern through the sandbox.
type SearchTool struct {
	sandbox *sandbox.ProcessSandbox
	logger  *zap.Logger
}

func NewSearchTool(sbx *sandbox.ProcessSandbox, logger *zap.Logger) *SearchTool {
	return &SearchTool{sandbox: sbx, logger: logger}
}

func (t *SearchTool) Name() string         { return "grep_search" }
func (t *SearchTool) Kind() domaintool.Kind { return domaintool.KindSearch }

func (t *SearchTool) Description() string {
	return "Search for a regular-expression pattern within a file or directory."
}

func (t *SearchTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"pattern":   map[string]interface{}{"type": "string", "description": "regular expression to search for"},
			"path":      map[string]interface{}{"type": "string", "description": "file or directory to search in"},
			"recursive": map[string]interface{}{"type": "boolean", "description": "recurse into subdirectories"},
		},
		"required": []string{"pattern", "path"},
	}
}

func (t *SearchTool) Execute(ctx context.Context, args map[string]interface{}) (*Result, error) {
	pattern, ok := args["pattern"].(string)
	if !ok || pattern == "" {
		return &Result{Success: false, Error: "pattern is required"}, nil
	}
	path, ok := args["path"].(string)
	if !ok || path == "" {
		return &Result{Success: false, Error: "path is required"}, nil
	}
	recursive, _ := args["recursive"].(bool)

	flag := ""
	if recursive {
		flag = "-r"
	}
	cmd := fmt.Sprintf("grep -n %s -E %q %q 2>&1 | head -200", flag, pattern, path)

	result, err := t.sandbox.ExecuteShell(ctx, cmd)
	if err != nil {
		errMsg := err.Error()
		if result != nil {
			errMsg = result.Stderr
		}
		return &Result{Success: false, Error: errMsg}, nil
	}

	success := result.ExitCode == 0
	output := strings.TrimSpace(result.Stdout)
	if output == "" {
		output = "no matches"
	}
	return &Result{Output: output, Success: success, Metadata: map[string]interface{}{"path": path, "pattern": pattern}}, nil
}
