package oracle

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// ErrOracleClosed is returned by Command after Close or once the subprocess
// died more often than it may be restarted.
var ErrOracleClosed = errors.New("oracle: closed")

// DefaultTimeout bounds a single Command call.
const DefaultTimeout = 10 * time.Second

// MaxRestarts is how many times Command replaces a subprocess that timed
// out or exited before giving up on it.
const MaxRestarts = 1

type commandRequest struct {
	ID     int64  `json:"id"`
	File   string `json:"file"`
	Line   int    `json:"line"`
	Column int    `json:"column"`
}

type commandResponse struct {
	ID           int64         `json:"id"`
	Declarations []Declaration `json:"declarations"`
	Error        string        `json:"error,omitempty"`
}

// CommandOptions configures a Command oracle.
type CommandOptions struct {
	Root    string        // project root; request paths are absolute under it
	Args    []string      // program and arguments
	Timeout time.Duration // per call; DefaultTimeout when zero
	Stderr  io.Writer     // subprocess stderr; os.Stderr when nil
	Logger  *slog.Logger  // slog.Default() when nil
}

// Command is an Oracle backed by a long-lived subprocess speaking JSON lines
// on stdin/stdout. One request is in flight at a time. A call that times out
// kills the subprocess; the next call starts a fresh one, up to MaxRestarts
// times, after which every call fails with ErrOracleClosed.
type Command struct {
	mu       sync.Mutex
	opts     CommandOptions
	timeout  time.Duration
	logger   *slog.Logger
	proc     *process
	restarts int
	nextID   int64
	closed   bool
}

// process is one running oracle subprocess.
type process struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	out   chan commandResponse
}

// NewCommand starts the oracle subprocess.
func NewCommand(opts CommandOptions) (*Command, error) {
	if len(opts.Args) == 0 {
		return nil, errors.New("oracle: empty command")
	}
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("oracle: resolve root: %w", err)
	}
	opts.Root = root
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}

	c := &Command{
		opts:    opts,
		timeout: opts.Timeout,
		logger:  opts.Logger,
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.proc, err = startProcess(opts); err != nil {
		return nil, err
	}
	return c, nil
}

func startProcess(opts CommandOptions) (*process, error) {
	cmd := exec.Command(opts.Args[0], opts.Args[1:]...)
	cmd.Dir = opts.Root
	cmd.Stderr = opts.Stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("oracle: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("oracle: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("oracle: start %s: %w", opts.Args[0], err)
	}
	p := &process{cmd: cmd, stdin: stdin, out: make(chan commandResponse, 1)}
	go p.read(stdout)
	return p, nil
}

// read forwards decoded response lines until the subprocess closes stdout.
// Lines that fail to decode are dropped.
func (p *process) read(r io.Reader) {
	defer close(p.out)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		var resp commandResponse
		if err := json.Unmarshal(sc.Bytes(), &resp); err != nil {
			continue
		}
		p.out <- resp
	}
}

// kill stops the subprocess and reaps it in the background.
func (p *process) kill() {
	_ = p.stdin.Close()
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
	go func() {
		for range p.out {
		}
		_ = p.cmd.Wait()
	}()
}

// Resolve sends one request and waits for the matching response.
func (c *Command) Resolve(ctx context.Context, file string, line, column int) ([]Declaration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrOracleClosed
	}
	if c.proc == nil {
		if err := c.restart(); err != nil {
			return nil, err
		}
	}
	p := c.proc

	c.nextID++
	req := commandRequest{ID: c.nextID, File: c.absolute(file), Line: line, Column: column}
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("oracle: encode request: %w", err)
	}
	if _, err := p.stdin.Write(append(data, '\n')); err != nil {
		c.stop()
		return nil, fmt.Errorf("oracle: write request: %w", err)
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()
	for {
		select {
		case resp, ok := <-p.out:
			if !ok {
				c.stop()
				return nil, fmt.Errorf("oracle: subprocess exited: %w", ErrOracleClosed)
			}
			if resp.ID != req.ID {
				continue
			}
			if resp.Error != "" {
				return nil, fmt.Errorf("oracle: %s:%d:%d: %s", file, line, column, resp.Error)
			}
			for i := range resp.Declarations {
				resp.Declarations[i].DefiningFile = c.relative(resp.Declarations[i].DefiningFile)
			}
			return resp.Declarations, nil
		case <-timer.C:
			c.stop()
			return nil, fmt.Errorf("oracle: timeout after %s resolving %s:%d:%d", c.timeout, file, line, column)
		case <-ctx.Done():
			c.stop()
			return nil, ctx.Err()
		}
	}
}

// restart replaces a stopped subprocess, or closes the oracle once the
// restart budget is spent. Callers hold c.mu.
func (c *Command) restart() error {
	if c.restarts >= MaxRestarts {
		c.closed = true
		c.logger.Warn("oracle.command.dead", "cmd", c.opts.Args[0], "restarts", c.restarts)
		return ErrOracleClosed
	}
	c.restarts++
	p, err := startProcess(c.opts)
	if err != nil {
		c.closed = true
		c.logger.Warn("oracle.command.dead", "cmd", c.opts.Args[0], "restarts", c.restarts, "err", err)
		return fmt.Errorf("%w: %v", ErrOracleClosed, err)
	}
	c.logger.Info("oracle.command.restart", "cmd", c.opts.Args[0], "restarts", c.restarts)
	c.proc = p
	return nil
}

// stop kills the running subprocess, if any. Callers hold c.mu.
func (c *Command) stop() {
	if c.proc == nil {
		return
	}
	c.proc.kill()
	c.proc = nil
}

func (c *Command) absolute(file string) string {
	if filepath.IsAbs(file) {
		return file
	}
	return filepath.Join(c.opts.Root, filepath.FromSlash(file))
}

// relative maps paths under the root back to project-relative form. Paths
// outside the root are returned unchanged.
func (c *Command) relative(file string) string {
	if file == "" || !filepath.IsAbs(file) {
		return NormalizePath(file)
	}
	rel, err := filepath.Rel(c.opts.Root, file)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return file
	}
	return NormalizePath(rel)
}

// Close stops the subprocess.
func (c *Command) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.stop()
	return nil
}
