// Package client connects to the flashbackd daemon. It exposes the
// command/event bridge the coordinator drives and the daemon lifecycle
// helpers the CLI uses.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	flashbackv1 "github.com/jamesainslie/flashback/pkg/api/flashback/v1"
	"github.com/jamesainslie/flashback/pkg/flashback/config"
	"github.com/jamesainslie/flashback/pkg/flashback/logging"
)

const subscriptionBuffer = 64

// Client talks to flashbackd over gRPC on a unix socket.
type Client struct {
	conn    *grpc.ClientConn
	backend flashbackv1.BackendClient
}

// DaemonStatus is the daemon_status reply.
type DaemonStatus struct {
	Running        bool     `json:"running"`
	PID            int      `json:"pid"`
	UptimeSeconds  int64    `json:"uptime_seconds"`
	Projects       int      `json:"projects"`
	ActiveScans    []string `json:"active_scans"`
	WatchedRoots   int      `json:"watched_roots"`
	ArgConvention  string   `json:"arg_convention"`
	StoreSizeBytes int64    `json:"store_size_bytes"`
}

// DaemonPaths configures daemon operations. Empty fields use defaults.
type DaemonPaths struct {
	Binary string
	Socket string
	PID    string
}

func (p DaemonPaths) withDefaults() DaemonPaths {
	if p.Socket == "" {
		p.Socket = config.DefaultSocketPath()
	}
	if p.PID == "" {
		p.PID = config.DefaultPIDPath()
	}
	return p
}

// Connect dials the daemon with a five second timeout.
func Connect(socketPath string) (*Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return ConnectWithContext(ctx, socketPath)
}

// ConnectWithContext dials the daemon and blocks until the connection is up.
func ConnectWithContext(ctx context.Context, socketPath string) (*Client, error) {
	if _, err := os.Stat(socketPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("daemon socket not found at %s", socketPath)
	}

	//nolint:staticcheck // grpc.DialContext is deprecated but NewClient doesn't support blocking
	conn, err := grpc.DialContext(
		ctx,
		"unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithBlock(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to daemon: %w", err)
	}

	return New(conn), nil
}

// New wraps an existing connection.
func New(conn *grpc.ClientConn) *Client {
	return &Client{conn: conn, backend: flashbackv1.NewBackendClient(conn)}
}

// Close closes the connection.
func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Invoke runs a backend command. Errors are returned unwrapped so callers
// can inspect the gRPC status and its message.
func (c *Client) Invoke(ctx context.Context, command string, args map[string]any) (*structpb.Value, error) {
	req, err := flashbackv1.NewInvokeRequest(command, args)
	if err != nil {
		return nil, err
	}
	return c.backend.Invoke(ctx, req)
}

// Subscribe opens one event channel for a project. It returns only after the
// daemon has registered the subscription, so events emitted by a command
// issued afterwards are not lost. The channel closes when ctx is cancelled
// or the stream ends.
func (c *Client) Subscribe(ctx context.Context, event, projectID string) (<-chan *structpb.Struct, error) {
	stream, err := c.backend.Subscribe(ctx, flashbackv1.NewSubscribeRequest(event, projectID))
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", event, err)
	}
	md, err := stream.Header()
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", event, err)
	}
	if md == nil {
		// rejected before registration; the status arrives through Recv
		if _, err := stream.Recv(); err != nil {
			return nil, fmt.Errorf("subscribe %s: %w", event, err)
		}
		return nil, fmt.Errorf("subscribe %s: stream closed before registration", event)
	}

	out := make(chan *structpb.Struct, subscriptionBuffer)
	go func() {
		defer close(out)
		for {
			msg, err := stream.Recv()
			if err != nil {
				if ctx.Err() == nil {
					logging.Get("client").Debug("subscription ended", "event", event, "error", err)
				}
				return
			}
			select {
			case out <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Status returns the daemon status.
func (c *Client) Status(ctx context.Context) (*DaemonStatus, error) {
	v, err := c.Invoke(ctx, flashbackv1.CmdDaemonStatus, nil)
	if err != nil {
		return nil, fmt.Errorf("daemon_status RPC failed: %w", err)
	}
	var status DaemonStatus
	if err := flashbackv1.Decode(v, &status); err != nil {
		return nil, fmt.Errorf("decoding daemon status: %w", err)
	}
	return &status, nil
}

// Shutdown asks the daemon to stop gracefully.
func (c *Client) Shutdown(ctx context.Context) error {
	if _, err := c.Invoke(ctx, flashbackv1.CmdShutdown, nil); err != nil {
		return fmt.Errorf("shutdown RPC failed: %w", err)
	}
	return nil
}

// StartDaemon starts flashbackd in the background and waits for its socket.
// It is a no-op when the daemon is already running.
func StartDaemon(paths DaemonPaths) error {
	paths = paths.withDefaults()

	if IsDaemonRunning(paths.PID) {
		return nil
	}

	binary, err := resolveBinary(paths.Binary)
	if err != nil {
		return fmt.Errorf("find flashbackd: %w", err)
	}

	_ = os.Remove(StatusPath(paths.Socket))

	// not CommandContext: the daemon must outlive the CLI
	cmd := exec.Command(binary, "--socket", paths.Socket, "--pid", paths.PID) //nolint:gosec // binary path is resolved above
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}
	if cmd.Process != nil {
		_ = cmd.Process.Release()
	}

	for range 50 {
		time.Sleep(100 * time.Millisecond)

		if _, err := os.Stat(paths.Socket); err == nil {
			return nil
		}
		if status, err := ReadStartupStatus(paths.Socket); err == nil {
			switch status.Status {
			case "ready":
				return nil
			case "error":
				return fmt.Errorf("daemon failed to start: %s", status.Error)
			}
		}
	}
	return errors.New("daemon did not become ready within timeout")
}

// StopDaemon asks a running daemon to shut down and waits for it to exit.
func StopDaemon(paths DaemonPaths) error {
	paths = paths.withDefaults()

	if !IsDaemonRunning(paths.PID) {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	c, err := ConnectWithContext(ctx, paths.Socket)
	if err != nil {
		return fmt.Errorf("connect to daemon: %w", err)
	}
	defer c.Close()

	if err := c.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown daemon: %w", err)
	}

	for range 20 {
		time.Sleep(250 * time.Millisecond)
		if !IsDaemonRunning(paths.PID) {
			return nil
		}
	}
	return errors.New("daemon did not stop within timeout")
}

// EnsureConnected connects to the daemon, starting it first when autoStart
// is set and it is not running.
func EnsureConnected(ctx context.Context, paths DaemonPaths, autoStart bool) (*Client, error) {
	paths = paths.withDefaults()
	if autoStart {
		if err := StartDaemon(paths); err != nil {
			return nil, err
		}
	}
	return ConnectWithContext(ctx, paths.Socket)
}

// StatusPath derives the startup status file path from the socket path.
func StatusPath(socketPath string) string {
	return strings.TrimSuffix(socketPath, ".sock") + ".status"
}

// resolveBinary finds flashbackd: configured path, next to the running
// executable, Go bin directories, then PATH.
func resolveBinary(configured string) (string, error) {
	if configured != "" {
		if _, err := os.Stat(configured); err != nil {
			return "", fmt.Errorf("configured binary not found: %s", configured)
		}
		return configured, nil
	}

	var candidates []string
	if execPath, err := os.Executable(); err == nil {
		candidates = append(candidates, filepath.Join(filepath.Dir(execPath), "flashbackd"))
	}
	if gobin := os.Getenv("GOBIN"); gobin != "" {
		candidates = append(candidates, filepath.Join(gobin, "flashbackd"))
	}
	if gopath := os.Getenv("GOPATH"); gopath != "" {
		candidates = append(candidates, filepath.Join(gopath, "bin", "flashbackd"))
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, "go", "bin", "flashbackd"))
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c, nil
		}
	}

	if path, err := exec.LookPath("flashbackd"); err == nil {
		return path, nil
	}
	return "", errors.New("flashbackd not found")
}

// IsDaemonRunning reports whether the process in the pid file is alive.
func IsDaemonRunning(pidPath string) bool {
	data, err := os.ReadFile(pidPath)
	if err != nil {
		return false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}

// StartupStatus is what flashbackd wrote to its status file the last time
// it started.
type StartupStatus struct {
	Status string `json:"status"`
	PID    int    `json:"pid,omitempty"`
	Error  string `json:"error,omitempty"`
}

// ReadStartupStatus reads the status file that belongs to socketPath.
func ReadStartupStatus(socketPath string) (*StartupStatus, error) {
	data, err := os.ReadFile(StatusPath(socketPath))
	if err != nil {
		return nil, err
	}
	var status StartupStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, err
	}
	return &status, nil
}
