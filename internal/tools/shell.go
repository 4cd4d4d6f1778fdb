// ABOUTME: Shell pack: runs a single command under /bin/sh inside the sandbox
// ABOUTME: Disabled unless configured; rejects chaining, redirection and over-long commands

package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/2389/tool-gateway/internal/authz"
	"github.com/2389/tool-gateway/internal/packs"
)

// ShellPackID identifies the shell pack.
const ShellPackID = "builtin:shell"

// ToolExecuteShell is the shell tool name.
const ToolExecuteShell = "execute_shell_command"

// MaxCommandLength is the longest command accepted.
const MaxCommandLength = 4096

// DefaultShellTimeout applies when ShellOptions.Timeout is zero.
const DefaultShellTimeout = 30 * time.Second

var (
	ErrShellDisabled        = errors.New("shell commands are disabled by configuration")
	ErrInvalidCommandLength = errors.New("invalid command length")
	ErrIllegalTokens        = errors.New("illegal tokens")
)

// illegalTokens blocks chaining, substitution and redirection.
var illegalTokens = []string{"\n", "\r", ";", "&&", "||", "`", "$(", "<(", "|&", ">", "<", "|"}

// CheckCommand reports whether command may run.
func CheckCommand(command string) error {
	if command == "" || len(command) > MaxCommandLength {
		return ErrInvalidCommandLength
	}
	for _, tok := range illegalTokens {
		if strings.Contains(command, tok) {
			return ErrIllegalTokens
		}
	}
	return nil
}

// ShellOptions configures the shell pack.
type ShellOptions struct {
	Enabled bool
	Timeout time.Duration
}

// ShellPack creates the shell tool. The tool is always listed; calls fail
// with ErrShellDisabled unless opts.Enabled is set.
func ShellPack(sb *Sandbox, opts ShellOptions) *packs.BuiltinPack {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultShellTimeout
	}
	h := &shellHandler{sandbox: sb, opts: opts}
	return &packs.BuiltinPack{
		ID: ShellPackID,
		Tools: []*packs.BuiltinTool{
			{
				Definition: &packs.ToolDefinition{
					Name:            ToolExecuteShell,
					Description:     "Run a single shell command in the workspace. Pipes, redirection and chaining are rejected.",
					InputSchemaJSON: `{"type":"object","properties":{"command":{"type":"string","minLength":1},"working_directory":{"type":"string"}},"required":["command"]}`,
					Resource:        authz.ResourceFunction,
					Action:          authz.ActionExecute,
					// leave headroom over the command timeout for output collection
					Timeout: opts.Timeout + 5*time.Second,
				},
				Handler: h.Execute,
			},
		},
	}
}

type shellHandler struct {
	sandbox *Sandbox
	opts    ShellOptions
}

type shellInput struct {
	Command          string `json:"command"`
	WorkingDirectory string `json:"working_directory"`
}

// CommandResult is the output of a finished command.
type CommandResult struct {
	Output     string `json:"output"`
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
	ReturnCode int    `json:"return_code"`
}

// CommandError reports a command that exited non-zero. Its message is the
// JSON-encoded CommandResult so callers still see the output.
type CommandError struct {
	Result CommandResult
}

func (e *CommandError) Error() string {
	b, err := json.Marshal(e.Result)
	if err != nil {
		return fmt.Sprintf("command exited with code %d", e.Result.ReturnCode)
	}
	return string(b)
}

func (h *shellHandler) Execute(ctx context.Context, callerID string, input json.RawMessage) (json.RawMessage, error) {
	if !h.opts.Enabled {
		return nil, ErrShellDisabled
	}

	var in shellInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	if err := CheckCommand(in.Command); err != nil {
		return nil, err
	}

	dir, err := h.sandbox.Resolve(in.WorkingDirectory)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, h.opts.Timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", in.Command)
	cmd.Dir = dir
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	runErr := cmd.Run()
	if ctx.Err() != nil {
		return nil, fmt.Errorf("command timed out after %s", h.opts.Timeout)
	}

	res := CommandResult{
		Stdout: strings.TrimSpace(stdout.String()),
		Stderr: strings.TrimSpace(stderr.String()),
	}
	res.Output = res.Stdout
	if res.Output == "" {
		res.Output = res.Stderr
	}

	if runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			return nil, fmt.Errorf("failed to execute command: %w", runErr)
		}
		res.ReturnCode = exitErr.ExitCode()
		return nil, &CommandError{Result: res}
	}

	return json.Marshal(res)
}
