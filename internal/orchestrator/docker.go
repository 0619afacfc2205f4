package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/docker/docker/api/types/container"
	dockerclient "github.com/docker/docker/client"
)

// Manager owns the Docker client and the live set of job containers,
// mirroring the config-resolve-then-wrap-client shape of
// internal/tools/sandbox's Daytona client, adapted to the Docker Engine
// API instead of a cloud sandbox API.
type Manager struct {
	client *dockerclient.Client
	logger *slog.Logger
	tokens *TokenStore

	hardening HardeningConfig
}

// NewManager connects to the local Docker daemon using the environment's
// standard DOCKER_HOST/DOCKER_CERT_PATH conventions.
func NewManager(hardening HardeningConfig, logger *slog.Logger) (*Manager, error) {
	cli, err := dockerclient.NewClientWithOpts(dockerclient.FromEnv, dockerclient.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("orchestrator: connecting to docker: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		client:    cli,
		logger:    logger,
		tokens:    NewTokenStore(),
		hardening: hardening,
	}, nil
}

// Worker represents one job's running container plus the credentials
// needed to reach its internal API.
type Worker struct {
	JobID       string
	ContainerID string
	Token       string
}

// Spawn creates, hardens, and starts a container for jobID, returning the
// bearer token the container must present to the internal API.
func (m *Manager) Spawn(ctx context.Context, jobID, internalAPIHost string) (*Worker, error) {
	token, err := m.tokens.Issue(jobID)
	if err != nil {
		return nil, err
	}

	cfg, hostCfg, netCfg, err := buildContainerSpec(m.hardening, token, internalAPIHost)
	if err != nil {
		m.tokens.Revoke(jobID)
		return nil, err
	}

	resp, err := m.client.ContainerCreate(ctx, cfg, hostCfg, netCfg, nil, containerName(jobID))
	if err != nil {
		m.tokens.Revoke(jobID)
		return nil, fmt.Errorf("orchestrator: creating container for job %s: %w", jobID, err)
	}

	if err := m.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		m.tokens.Revoke(jobID)
		return nil, fmt.Errorf("orchestrator: starting container for job %s: %w", jobID, err)
	}

	m.logger.Info("orchestrator: spawned job container", "job_id", jobID, "container_id", resp.ID)
	return &Worker{JobID: jobID, ContainerID: resp.ID, Token: token}, nil
}

// Teardown stops and removes w's container, revoking its token and any
// grants atomically so no in-flight request using the old credentials
// succeeds after this call returns. Docker is given a 10s grace period to
// stop the container cleanly before it is killed.
func (m *Manager) Teardown(ctx context.Context, w *Worker) error {
	if w == nil {
		return nil
	}
	// Revoke first: even if the stop/remove below fails or races with a
	// final in-flight call, that call must never be allowed to succeed.
	m.tokens.Revoke(w.JobID)

	grace := 10
	if err := m.client.ContainerStop(ctx, w.ContainerID, container.StopOptions{Timeout: &grace}); err != nil {
		m.logger.Warn("orchestrator: container stop failed, continuing to remove", "job_id", w.JobID, "error", err)
	}
	if err := m.client.ContainerRemove(ctx, w.ContainerID, container.RemoveOptions{Force: true}); err != nil {
		return fmt.Errorf("orchestrator: removing container for job %s: %w", w.JobID, err)
	}
	m.logger.Info("orchestrator: tore down job container", "job_id", w.JobID)
	return nil
}

// VerifyToken reports whether token is currently valid for jobID.
func (m *Manager) VerifyToken(jobID, token string) bool {
	return m.tokens.Verify(jobID, token)
}

func containerName(jobID string) string {
	return fmt.Sprintf("ironclaw-job-%s-%d", jobID, time.Now().UnixNano())
}
