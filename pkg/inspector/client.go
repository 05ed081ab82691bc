package inspector

import (
	"context"
	"errors"

	"github.com/kvesta/verity/pkg/osrelease"

	"github.com/docker/docker/client"
)

var (
	// ErrAcquire is returned when an image cannot be pulled.
	ErrAcquire = errors.New("image acquisition failed")
	// ErrSession is returned when a container cannot be started or reached.
	ErrSession = errors.New("container session failed")
)

// Runtime provisions sessions on a running instance of an image.
type Runtime interface {
	StartSession(ctx context.Context, image string) (Session, error)
}

// Session is a running container commands can be executed in.
type Session interface {
	osrelease.Executor
	ID() string
	Destroy(ctx context.Context) error
}

type DockerApi struct {
	DCli *client.Client

	// Label attached to every container started through this client.
	RunID string
}

// New connects to the docker daemon configured in the environment.
func New(runID string) (*DockerApi, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, err
	}

	return &DockerApi{
		DCli:  cli,
		RunID: runID,
	}, nil
}

func (da *DockerApi) Close() error {
	return da.DCli.Close()
}
