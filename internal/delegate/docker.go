package delegate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	dockerpkg "github.com/dyluth/tsb/internal/docker"
	"github.com/google/uuid"
)

// DockerRunner runs the delegate inside a container built from an image
// that ships a different tsb build (and so a different V8).
type DockerRunner struct {
	Client client.ContainerAPIClient

	// Image must have tsb on its PATH unless Command says otherwise.
	Image string

	// Command precedes the request argument. Nil means ["tsb", "delegate"].
	Command []string

	// WorkDir is bind-mounted at the same path and used as the container's
	// working directory. Empty means the current directory.
	WorkDir string
}

// Run implements Runner. The container is always removed; cancelling ctx
// removes it while it runs.
func (r *DockerRunner) Run(ctx context.Context, arg string, stdout, stderr io.Writer) error {
	workDir := r.WorkDir
	if workDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to get working directory: %w", err)
		}
		workDir = wd
	}

	cmd := r.Command
	if cmd == nil {
		cmd = []string{"tsb", "delegate"}
	}
	cmd = append(append([]string{}, cmd...), arg)

	// Label the container with the request it serves. An argument that is
	// not a request still gets a unique name.
	var req struct {
		ID   string `json:"id"`
		Mode Mode   `json:"mode"`
	}
	_ = json.Unmarshal([]byte(arg), &req)
	if req.ID == "" {
		req.ID = uuid.New().String()
	}

	config := &container.Config{
		Image:      r.Image,
		Cmd:        cmd,
		WorkingDir: workDir,
		Labels:     dockerpkg.BuildLabels(req.ID, workDir, string(req.Mode)),
	}
	hostConfig := &container.HostConfig{
		Binds: []string{dockerpkg.WorkspaceBind(workDir)},
	}

	resp, err := r.Client.ContainerCreate(ctx, config, hostConfig, nil, nil, dockerpkg.DelegateContainerName(req.ID))
	if err != nil {
		return fmt.Errorf("failed to create delegate container: %w", err)
	}
	defer r.remove(resp.ID)

	if err := r.Client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return fmt.Errorf("failed to start delegate container: %w", err)
	}

	statusCh, errCh := r.Client.ContainerWait(ctx, resp.ID, container.WaitConditionNotRunning)

	var exitCode int64
	select {
	case err := <-errCh:
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("failed waiting for delegate container: %w", err)
	case status := <-statusCh:
		if status.Error != nil {
			return fmt.Errorf("delegate container failed: %s", status.Error.Message)
		}
		exitCode = status.StatusCode
	case <-ctx.Done():
		return ctx.Err()
	}

	logs, err := r.Client.ContainerLogs(ctx, resp.ID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err != nil {
		return fmt.Errorf("failed to read delegate container output: %w", err)
	}
	defer logs.Close()

	out := &limitedWriter{w: stdout, limit: maxResponseSize}
	if _, err := stdcopy.StdCopy(out, stderr, logs); err != nil {
		return fmt.Errorf("failed to read delegate container output: %w", err)
	}
	if out.exceeded {
		return fmt.Errorf("delegate output exceeded %d bytes", maxResponseSize)
	}

	if exitCode != 0 {
		return &ExitError{Code: int(exitCode)}
	}
	return nil
}

func (r *DockerRunner) remove(id string) {
	err := r.Client.ContainerRemove(context.Background(), id, container.RemoveOptions{Force: true})
	if err != nil {
		log.Printf("[WARN] Failed to remove delegate container %s: %v", id, err)
	}
}
