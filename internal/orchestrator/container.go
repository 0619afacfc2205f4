package orchestrator

import (
	"fmt"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/go-connections/nat"
	"github.com/docker/go-units"
)

// HardeningConfig captures the security posture every job container is
// started with: no capabilities beyond the one it needs, no privilege
// escalation, a size-capped tmpfs for scratch space, and a non-root user.
type HardeningConfig struct {
	Image       string
	NetworkName string // the dedicated bridge network containers egress through
	MemoryLimit string // docker/go-units size string, e.g. "512m"
	TmpfsSize   string // size string for the /tmp tmpfs mount
	User        string // "uid:gid", default "1000:1000"
	Env         []string
	Cmd         []string
}

// DefaultHardening returns the default container hardening
// profile for a job worker image.
func DefaultHardening(image, networkName string) HardeningConfig {
	return HardeningConfig{
		Image:       image,
		NetworkName: networkName,
		MemoryLimit: "512m",
		TmpfsSize:   "512m",
		User:        "1000:1000",
	}
}

// buildContainerSpec translates a HardeningConfig plus a job's bearer
// token into the docker/docker container.Config, container.HostConfig,
// and network.NetworkingConfig triple InTheClient.ContainerCreate needs.
func buildContainerSpec(h HardeningConfig, token, internalAPIHost string) (*container.Config, *container.HostConfig, *network.NetworkingConfig, error) {
	memBytes, err := units.RAMInBytes(h.MemoryLimit)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("orchestrator: invalid memory limit %q: %w", h.MemoryLimit, err)
	}
	tmpfsBytes, err := units.RAMInBytes(h.TmpfsSize)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("orchestrator: invalid tmpfs size %q: %w", h.TmpfsSize, err)
	}

	env := append([]string{
		fmt.Sprintf("IRONCLAW_JOB_TOKEN=%s", token),
		fmt.Sprintf("IRONCLAW_API_BASE=%s", internalAPIHost),
	}, h.Env...)

	cfg := &container.Config{
		Image:        h.Image,
		Env:          env,
		Cmd:          h.Cmd,
		User:         h.User,
		ExposedPorts: nat.PortSet{}, // no inbound ports; the worker only dials out
		AttachStdout: false,
		AttachStderr: false,
	}

	hostCfg := &container.HostConfig{
		CapDrop:        []string{"ALL"},
		CapAdd:         []string{"CHOWN"},
		SecurityOpt:    []string{"no-new-privileges"},
		ReadonlyRootfs: true,
		Tmpfs: map[string]string{
			"/tmp": fmt.Sprintf("size=%d", tmpfsBytes),
		},
		Resources: container.Resources{
			Memory: memBytes,
		},
		NetworkMode: container.NetworkMode(h.NetworkName),
		AutoRemove:  false, // teardown explicitly removes, so we can collect logs first
	}

	netCfg := &network.NetworkingConfig{
		EndpointsConfig: map[string]*network.EndpointSettings{
			h.NetworkName: {},
		},
	}

	return cfg, hostCfg, netCfg, nil
}
