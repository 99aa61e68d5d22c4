package executor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"arenaengine/metrics"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
	logrus "github.com/sirupsen/logrus"
)

const (
	containerLabel   = "arenaengine.workspace"
	containerWorkdir = "/work"

	defaultStartupGrace = time.Second
)

type ContainerState string

const (
	StateRunning  ContainerState = "running"
	StateReleased ContainerState = "released"
)

// ContainerInfo holds information about a sandbox container
type ContainerInfo struct {
	Name    string
	State   ContainerState
	Started time.Time
}

// SandboxOptions configures the containers that wrap each phase.
type SandboxOptions struct {
	DockerBin string
	Image     string
	MemoryMB  int
	Pids      int

	// StartupGrace is the container start-up allowance added to each
	// phase's deadline.
	StartupGrace time.Duration
}

// ContainerManager runs each phase in a throwaway container via the docker
// CLI and uses the Docker API to verify the image and to remove containers
// the CLI left behind after a kill.
type ContainerManager struct {
	dockerClient *client.Client
	opts         SandboxOptions
	user         string
	containers   map[string]*ContainerInfo
	mu           sync.Mutex
	logger       *logrus.Logger
}

// NewContainerManager creates a new container manager
func NewContainerManager(opts SandboxOptions, logger *logrus.Logger) (*ContainerManager, error) {
	dockerClient, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}
	return newContainerManager(dockerClient, opts, logger), nil
}

func newContainerManager(dockerClient *client.Client, opts SandboxOptions, logger *logrus.Logger) *ContainerManager {
	if opts.DockerBin == "" {
		opts.DockerBin = "docker"
	}
	if opts.MemoryMB <= 0 {
		opts.MemoryMB = 256
	}
	if opts.Pids <= 0 {
		opts.Pids = 64
	}
	if opts.StartupGrace <= 0 {
		opts.StartupGrace = defaultStartupGrace
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	cm := &ContainerManager{
		dockerClient: dockerClient,
		opts:         opts,
		containers:   make(map[string]*ContainerInfo),
		logger:       logger,
	}
	// Run as the host user so the 0700 workspace mount stays readable.
	if uid, gid := os.Getuid(), os.Getgid(); uid >= 0 {
		cm.user = strconv.Itoa(uid) + ":" + strconv.Itoa(gid)
	}
	return cm
}

// EnsureImage checks that the daemon is reachable and the sandbox image is
// present locally.
func (cm *ContainerManager) EnsureImage(ctx context.Context) error {
	if _, err := cm.dockerClient.Ping(ctx); err != nil {
		return fmt.Errorf("docker daemon unreachable: %w", err)
	}
	if _, _, err := cm.dockerClient.ImageInspectWithRaw(ctx, cm.opts.Image); err != nil {
		if client.IsErrNotFound(err) {
			return fmt.Errorf("sandbox image %s not found", cm.opts.Image)
		}
		return fmt.Errorf("failed to inspect image %s: %w", cm.opts.Image, err)
	}
	return nil
}

// Wrap turns argv into a docker run invocation with the workspace mounted at
// /work. Absolute interpreter paths are reduced to their base name so the
// image's own toolchain is used.
func (cm *ContainerManager) Wrap(name, dir string, argv []string) []string {
	containerName := "arena-" + name

	args := []string{
		cm.opts.DockerBin, "run", "--rm", "-i",
		"--name", containerName,
		"--label", containerLabel + "=" + name,
		"--network", "none",
		"--memory", strconv.Itoa(cm.opts.MemoryMB) + "m",
		"--pids-limit", strconv.Itoa(cm.opts.Pids),
		"--cpus", "1",
		"--cap-drop", "ALL",
		"--security-opt", "no-new-privileges",
		"-v", dir + ":" + containerWorkdir,
		"-w", containerWorkdir,
	}
	if cm.user != "" {
		args = append(args, "--user", cm.user)
	}
	args = append(args, cm.opts.Image)

	for i, a := range argv {
		if i == 0 && filepath.IsAbs(a) {
			a = filepath.Base(a)
		} else if strings.HasPrefix(a, dir) {
			a = containerWorkdir + strings.TrimPrefix(a, dir)
		}
		args = append(args, a)
	}

	cm.mu.Lock()
	cm.containers[containerName] = &ContainerInfo{Name: containerName, State: StateRunning, Started: time.Now()}
	metrics.SandboxContainers.Set(float64(len(cm.containers)))
	cm.mu.Unlock()

	return args
}

// StartupGrace reports the start-up allowance of a docker run.
func (cm *ContainerManager) StartupGrace() time.Duration {
	return cm.opts.StartupGrace
}

// Release force-removes the phase container. With --rm it is usually gone
// already; a killed docker CLI does not stop the container, so this is what
// ends a timed-out run.
func (cm *ContainerManager) Release(name string) {
	cm.RemoveContainer("arena-" + name)
}

// RemoveContainer safely removes a container
func (cm *ContainerManager) RemoveContainer(containerName string) {
	if cm.dockerClient != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := cm.dockerClient.ContainerRemove(ctx, containerName, container.RemoveOptions{Force: true})
		cancel()
		if err != nil && !client.IsErrNotFound(err) {
			cm.logger.WithError(err).WithField("container", containerName).Warn("Failed to remove container")
		}
	}

	cm.mu.Lock()
	if info, ok := cm.containers[containerName]; ok {
		info.State = StateReleased
		delete(cm.containers, containerName)
	}
	metrics.SandboxContainers.Set(float64(len(cm.containers)))
	cm.mu.Unlock()
}

// MonitorContainers periodically removes labelled containers older than
// maxAge until ctx is done.
func (cm *ContainerManager) MonitorContainers(ctx context.Context, wg *sync.WaitGroup, interval, maxAge time.Duration) {
	defer wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cm.removeStale(ctx, maxAge)
		}
	}
}

func (cm *ContainerManager) removeStale(ctx context.Context, maxAge time.Duration) {
	containers, err := cm.dockerClient.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("label", containerLabel)),
	})
	if err != nil {
		cm.logger.WithError(err).Warn("Failed to list containers")
		return
	}

	cutoff := time.Now().Add(-maxAge).Unix()
	for _, c := range containers {
		if c.Created > cutoff {
			continue
		}
		cm.logger.WithField("container", c.ID[:12]).Warn("Removing stale sandbox container")
		if err := cm.dockerClient.ContainerRemove(ctx, c.ID, container.RemoveOptions{Force: true}); err != nil {
			cm.logger.WithError(err).Warn("Failed to remove stale container")
		}
	}
}

// Shutdown cleans up all containers
func (cm *ContainerManager) Shutdown() {
	cm.mu.Lock()
	names := make([]string, 0, len(cm.containers))
	for name := range cm.containers {
		names = append(names, name)
	}
	cm.mu.Unlock()

	for _, name := range names {
		cm.RemoveContainer(name)
		cm.logger.WithField("container", name).Info("Shutdown: removed container")
	}
	if cm.dockerClient != nil {
		cm.dockerClient.Close()
	}
}

// ContainerCount returns the current number of containers
func (cm *ContainerManager) ContainerCount() int {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return len(cm.containers)
}
