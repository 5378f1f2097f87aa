// Package sfcli wraps the Salesforce `sf` command-line tool.
package sfcli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"go.uber.org/zap"

	"github.com/schemamirror/sfsync/internal/flow"
	"github.com/schemamirror/sfsync/internal/utils"
)

var (
	// ErrCommandFailed means the tool exited non-zero or could not be started
	ErrCommandFailed = errors.New("sf command failed")
	// ErrInvalidOutput means the tool's stdout was not the expected JSON
	ErrInvalidOutput = errors.New("sf command returned invalid output")
)

// FieldDescriptor is one field from an object describe
type FieldDescriptor struct {
	Name  string `json:"name"`
	Label string `json:"label"`
	Type  string `json:"type"`
}

// AuthContext is the session needed to call the REST APIs directly
type AuthContext struct {
	AccessToken string `json:"accessToken"`
	InstanceURL string `json:"instanceUrl"`
}

// Client is the subset of the sf tool the sync depends on
type Client interface {
	ListObjects(ctx context.Context) ([]string, error)
	DescribeFields(ctx context.Context, objectName string) ([]FieldDescriptor, error)
	AuthContext(ctx context.Context) (AuthContext, error)
	RetrieveFlows(ctx context.Context) ([]string, error)
}

// CommandFunc runs an executable and returns its stdout and stderr
type CommandFunc func(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)

// ExecCommand runs the executable with os/exec
func ExecCommand(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// Config configures the CLI adapter
type Config struct {
	// Path is the sf executable
	Path string
	// Org is the alias or username passed as --target-org
	Org string
	// FlowDir receives retrieved flow definitions
	FlowDir string
}

// CLI implements Client by shelling out to sf
type CLI struct {
	cfg    Config
	run    CommandFunc
	logger *zap.Logger
}

// Option configures a CLI
type Option func(*CLI)

// WithCommandFunc replaces process execution, mainly for tests
func WithCommandFunc(fn CommandFunc) Option {
	return func(c *CLI) {
		c.run = fn
	}
}

// WithLogger sets the logger used for command diagnostics
func WithLogger(logger *zap.Logger) Option {
	return func(c *CLI) {
		c.logger = logger
	}
}

// New creates a CLI adapter
func New(cfg Config, opts ...Option) *CLI {
	if cfg.Path == "" {
		cfg.Path = "sf"
	}
	c := &CLI{
		cfg:    cfg,
		run:    ExecCommand,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type envelope struct {
	Status  int             `json:"status"`
	Result  json.RawMessage `json:"result"`
	Message string          `json:"message"`
}

// runJSON runs an sf subcommand with --json and decodes its result into out
func (c *CLI) runJSON(ctx context.Context, out interface{}, args ...string) error {
	args = append(args, "--json", "--target-org", c.cfg.Org)

	stdout, stderr, err := c.run(ctx, c.cfg.Path, args...)
	if err != nil {
		c.logger.Warn("sf command failed",
			zap.String("command", c.cfg.Path+" "+strings.Join(args, " ")),
			zap.ByteString("stdout", truncate(stdout, 500)),
			zap.ByteString("stderr", truncate(stderr, 500)),
			zap.Error(err),
		)
		return fmt.Errorf("%w: %s %s: %v", ErrCommandFailed, c.cfg.Path, strings.Join(args, " "), err)
	}

	var env envelope
	if err := json.Unmarshal(stdout, &env); err != nil {
		c.logger.Warn("failed to parse sf output",
			zap.ByteString("output", truncate(stdout, 500)),
			zap.Error(err),
		)
		return fmt.Errorf("%w: %v", ErrInvalidOutput, err)
	}
	if env.Status != 0 {
		return fmt.Errorf("%w: status %d: %s", ErrCommandFailed, env.Status, env.Message)
	}
	if len(env.Result) == 0 || string(env.Result) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return fmt.Errorf("%w: result: %v", ErrInvalidOutput, err)
	}
	return nil
}

// ListObjects returns the API names of every sObject in the org
func (c *CLI) ListObjects(ctx context.Context) ([]string, error) {
	var names []string
	if err := c.runJSON(ctx, &names, "force", "schema", "sobject", "list"); err != nil {
		return nil, err
	}
	return names, nil
}

// DescribeFields returns the fields of one sObject. Missing labels and types
// come back as empty strings.
func (c *CLI) DescribeFields(ctx context.Context, objectName string) ([]FieldDescriptor, error) {
	var result struct {
		Fields []FieldDescriptor `json:"fields"`
	}
	if err := c.runJSON(ctx, &result, "force", "schema", "sobject", "describe", "-s", objectName); err != nil {
		return nil, err
	}
	return result.Fields, nil
}

// AuthContext returns the access token and instance URL of the target org
func (c *CLI) AuthContext(ctx context.Context) (AuthContext, error) {
	var auth AuthContext
	if err := c.runJSON(ctx, &auth, "org", "display"); err != nil {
		return AuthContext{}, err
	}
	if auth.AccessToken == "" || auth.InstanceURL == "" {
		return AuthContext{}, fmt.Errorf("%w: org display returned no access token or instance URL", ErrInvalidOutput)
	}
	return auth, nil
}

// RetrieveFlows retrieves every flow definition into the configured directory
// and returns the paths of the retrieved files, sorted
func (c *CLI) RetrieveFlows(ctx context.Context) ([]string, error) {
	var ignored json.RawMessage
	if err := c.runJSON(ctx, &ignored, "project", "retrieve", "start", "--metadata", "Flow", "--output-dir", c.cfg.FlowDir); err != nil {
		return nil, err
	}
	return FindFlowFiles(c.cfg.FlowDir)
}

// FindFlowFiles lists every flow definition file under dir
func FindFlowFiles(dir string) ([]string, error) {
	paths, err := utils.FindFilesWithSuffix(dir, flow.FileSuffix)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("flow directory %s does not exist: %w", dir, err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan flow directory: %w", err)
	}
	return paths, nil
}

func truncate(b []byte, n int) []byte {
	if len(b) > n {
		return b[:n]
	}
	return b
}
