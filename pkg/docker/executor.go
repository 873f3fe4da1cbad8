package docker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	execDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "gema",
		Subsystem: "sandbox",
		Name:      "execution_duration_seconds",
		Help:      "Duration of sandboxed container executions",
		Buckets:   prometheus.DefBuckets,
	}, []string{"image"})

	execTimeouts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gema",
		Subsystem: "sandbox",
		Name:      "execution_timeouts_total",
		Help:      "Number of sandboxed executions that hit the time limit",
	}, []string{"image"})

	execFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gema",
		Subsystem: "sandbox",
		Name:      "execution_failures_total",
		Help:      "Number of sandboxed executions the daemon could not complete",
	}, []string{"image"})
)

// ErrTimedOut is returned together with a partial result when an execution exceeds its time limit.
var ErrTimedOut = errors.New("execution timed out")

// Executor runs a shell script inside a sandbox with a private workspace.
type Executor interface {
	Run(ctx context.Context, req ExecutionRequest) (ExecutionResult, error)
}

// ExecutionRequest describes one sandboxed run. Files are written into the workspace before the
// script starts; Collect names workspace files read back afterwards.
type ExecutionRequest struct {
	Image         string
	Script        string
	Files         map[string]string
	Collect       []string
	Timeout       time.Duration
	MemoryLimitMB int64
	CPUShares     int64
}

// ExecutionResult summarises a finished run.
type ExecutionResult struct {
	Stdout           string
	Stderr           string
	ExitCode         int
	Files            map[string]string
	Duration         time.Duration
	TimedOut         bool
	MemoryUsageBytes int64
}

// Config groups executor configuration values.
type Config struct {
	Host          string
	Timeout       time.Duration
	MemoryLimitMB int64
	CPUShares     int64
	// WorkspaceRoot is the host directory holding per-run workspaces. It must be visible to the daemon.
	WorkspaceRoot string
	// MountPoint is where the workspace appears inside the container.
	MountPoint string
	Logger     zerolog.Logger
}

// DockerExecutor implements Executor with throwaway Docker containers.
type DockerExecutor struct {
	client *client.Client
	cfg    Config
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewDockerExecutor constructs a Docker backed executor.
func NewDockerExecutor(cfg Config) (*DockerExecutor, error) {
	opts := []client.Opt{client.WithAPIVersionNegotiation()}
	if cfg.Host != "" {
		opts = append(opts, client.WithHost(cfg.Host))
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}

	if cfg.MountPoint == "" {
		cfg.MountPoint = "/workspace"
	}
	if cfg.WorkspaceRoot == "" {
		cfg.WorkspaceRoot = os.TempDir()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	return &DockerExecutor{
		client: cli,
		cfg:    cfg,
		tracer: otel.Tracer("github.com/noah-isme/gema-judge/pkg/docker"),
		logger: cfg.Logger.With().Str("component", "docker_executor").Logger(),
	}, nil
}

// Run executes req.Script with sh inside a network-less container.
func (e *DockerExecutor) Run(parent context.Context, req ExecutionRequest) (ExecutionResult, error) {
	image := req.Image
	if image == "" {
		return ExecutionResult{}, errors.New("image is required")
	}

	ctx, span := e.tracer.Start(parent, "docker.executor.run", trace.WithAttributes(
		attribute.String("docker.image", image),
	))
	defer span.End()

	workspace, err := os.MkdirTemp(e.cfg.WorkspaceRoot, "gema-run-")
	if err != nil {
		return ExecutionResult{}, fmt.Errorf("create workspace: %w", err)
	}
	defer os.RemoveAll(workspace)

	for name, content := range req.Files {
		if err := os.WriteFile(filepath.Join(workspace, filepath.Base(name)), []byte(content), 0o644); err != nil {
			return ExecutionResult{}, fmt.Errorf("write %s: %w", name, err)
		}
	}
	// The container user may differ from ours; build output lands in the workspace.
	if err := os.Chmod(workspace, 0o777); err != nil {
		return ExecutionResult{}, fmt.Errorf("open workspace: %w", err)
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = e.cfg.Timeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	memory := req.MemoryLimitMB
	if memory == 0 {
		memory = e.cfg.MemoryLimitMB
	}
	shares := req.CPUShares
	if shares == 0 {
		shares = e.cfg.CPUShares
	}

	hostCfg := &container.HostConfig{
		Resources: container.Resources{
			Memory:    memory * 1024 * 1024,
			CPUShares: shares,
		},
		NetworkMode: "none",
		Mounts: []mount.Mount{{
			Type:   mount.TypeBind,
			Source: workspace,
			Target: e.cfg.MountPoint,
		}},
	}
	containerCfg := &container.Config{
		Image:        image,
		Cmd:          []string{"sh", "-c", req.Script},
		WorkingDir:   e.cfg.MountPoint,
		AttachStdout: true,
		AttachStderr: true,
	}

	start := time.Now()
	result := ExecutionResult{}

	resp, err := e.client.ContainerCreate(runCtx, containerCfg, hostCfg, &network.NetworkingConfig{}, nil, "")
	if err != nil {
		return result, e.fail(span, image, fmt.Errorf("container create: %w", err))
	}

	containerID := resp.ID
	defer func() {
		removeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.client.ContainerRemove(removeCtx, containerID, container.RemoveOptions{Force: true}); err != nil {
			e.logger.Error().Err(err).Str("container_id", containerID).Msg("failed to remove container")
		}
	}()

	if err := e.client.ContainerStart(runCtx, containerID, container.StartOptions{}); err != nil {
		return result, e.fail(span, image, fmt.Errorf("container start: %w", err))
	}

	statusCh, errCh := e.client.ContainerWait(runCtx, containerID, container.WaitConditionNextExit)

	var waitErr error
	select {
	case err := <-errCh:
		waitErr = err
	case status := <-statusCh:
		result.ExitCode = int(status.StatusCode)
	case <-runCtx.Done():
		waitErr = runCtx.Err()
	}

	result.Duration = time.Since(start)
	execDuration.WithLabelValues(image).Observe(result.Duration.Seconds())

	if waitErr != nil {
		if parent.Err() != nil {
			return result, parent.Err()
		}
		if !errors.Is(waitErr, context.DeadlineExceeded) {
			return result, e.fail(span, image, fmt.Errorf("container wait: %w", waitErr))
		}
		result.TimedOut = true
		execTimeouts.WithLabelValues(image).Inc()
		killCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := e.client.ContainerKill(killCtx, containerID, "KILL"); err != nil {
			e.logger.Error().Err(err).Str("container_id", containerID).Msg("failed to kill timed out container")
		}
		span.SetStatus(codes.Error, "execution timed out")
	}

	logCtx, cancelLogs := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelLogs()
	if logReader, err := e.client.ContainerLogs(logCtx, containerID, container.LogsOptions{ShowStdout: true, ShowStderr: true}); err == nil {
		defer logReader.Close()
		if result.Stdout, result.Stderr, err = splitDockerLogs(logReader); err != nil {
			e.logger.Error().Err(err).Str("container_id", containerID).Msg("failed to read container logs")
		}
	} else {
		e.logger.Error().Err(err).Str("container_id", containerID).Msg("failed to fetch container logs")
	}

	statsCtx, cancelStats := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancelStats()
	if stats, err := e.client.ContainerStatsOneShot(statsCtx, containerID); err == nil {
		defer stats.Body.Close()
		var data types.StatsJSON
		if decodeErr := json.NewDecoder(stats.Body).Decode(&data); decodeErr == nil {
			result.MemoryUsageBytes = int64(data.MemoryStats.Usage)
		}
	}

	result.Files = collectFiles(workspace, req.Collect)
	span.SetAttributes(attribute.Int("docker.exit_code", result.ExitCode))

	if result.TimedOut {
		return result, fmt.Errorf("%w after %s", ErrTimedOut, timeout)
	}
	return result, nil
}

func (e *DockerExecutor) fail(span trace.Span, image string, err error) error {
	execFailures.WithLabelValues(image).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// Close shuts down the executor's underlying client.
func (e *DockerExecutor) Close() error {
	if e.client == nil {
		return nil
	}
	return e.client.Close()
}

func collectFiles(workspace string, names []string) map[string]string {
	files := make(map[string]string, len(names))
	for _, name := range names {
		content, err := os.ReadFile(filepath.Join(workspace, filepath.Base(name)))
		if err == nil {
			files[name] = string(content)
		}
	}
	return files
}

func splitDockerLogs(reader io.Reader) (string, string, error) {
	var stdoutBuf, stderrBuf bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdoutBuf, &stderrBuf, reader); err != nil {
		return "", "", err
	}
	return stdoutBuf.String(), stderrBuf.String(), nil
}
