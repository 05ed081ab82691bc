package inspector

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/pkg/stdcopy"
)

const runLabel = "io.kvesta.verity.run"

// keep the container alive without relying on the image's entrypoint
var idleEntrypoint = []string{"tail", "-f", "/dev/null"}

type dockerSession struct {
	cli *DockerApi
	id  string
}

// StartSession runs the image detached and returns a handle to it. The
// container must be released with Destroy.
func (da *DockerApi) StartSession(ctx context.Context, image string) (Session, error) {
	resp, err := da.DCli.ContainerCreate(ctx, &container.Config{
		Image:      image,
		Entrypoint: idleEntrypoint,
		Tty:        false,
		Labels:     map[string]string{runLabel: da.RunID},
	},
		nil, nil, nil, "")
	if err != nil {
		return nil, fmt.Errorf("%w: create %s: %v", ErrSession, image, err)
	}

	s := &dockerSession{cli: da, id: resp.ID}

	if err := da.DCli.ContainerStart(ctx, resp.ID, types.ContainerStartOptions{}); err != nil {
		_ = s.Destroy(context.Background())
		return nil, fmt.Errorf("%w: start %s: %v", ErrSession, image, err)
	}

	return s, nil
}

func (s *dockerSession) ID() string {
	return s.id
}

// Exec runs cmd in the container and waits for it to exit. stdout and
// stderr are returned together, the way a terminal would show them.
func (s *dockerSession) Exec(ctx context.Context, cmd []string) (int, []byte, error) {
	dcli := s.cli.DCli

	exec, err := dcli.ContainerExecCreate(ctx, s.id, types.ExecConfig{
		Cmd:          cmd,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return -1, nil, fmt.Errorf("%w: exec create: %v", ErrSession, err)
	}

	attach, err := dcli.ContainerExecAttach(ctx, exec.ID, types.ExecStartCheck{})
	if err != nil {
		return -1, nil, fmt.Errorf("%w: exec attach: %v", ErrSession, err)
	}
	defer attach.Close()

	var out bytes.Buffer
	if _, err := stdcopy.StdCopy(&out, &out, attach.Reader); err != nil {
		return -1, nil, fmt.Errorf("%w: exec read: %v", ErrSession, err)
	}

	// the stream closes slightly before the daemon records the exit code
	for {
		inspect, err := dcli.ContainerExecInspect(ctx, exec.ID)
		if err != nil {
			return -1, nil, fmt.Errorf("%w: exec inspect: %v", ErrSession, err)
		}
		if !inspect.Running {
			return inspect.ExitCode, out.Bytes(), nil
		}

		select {
		case <-ctx.Done():
			return -1, nil, ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
}

// Destroy force-removes the container.
func (s *dockerSession) Destroy(ctx context.Context) error {
	removeOptions := types.ContainerRemoveOptions{
		RemoveVolumes: true,
		Force:         true,
	}

	if err := s.cli.DCli.ContainerRemove(ctx, s.id, removeOptions); err != nil {
		return fmt.Errorf("unable to remove container %s: %w", s.id, err)
	}
	return nil
}
