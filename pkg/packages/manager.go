package packages

import (
	"context"
	"strings"

	"github.com/kvesta/verity/pkg/osrelease"
)

// Manager answers package questions for one packaging family by running
// the family's query tool inside a container.
//
// Query tools report absence through their exit code, so a non-zero exit
// is "not installed" rather than an error. The returned error is only set
// when the command could not be executed at all.
type Manager interface {
	Family() osrelease.Family
	Exists(ctx context.Context, exec osrelease.Executor, pkg string) (bool, error)
	InstalledVersion(ctx context.Context, exec osrelease.Executor, pkg string) (*string, error)
}

// For returns the Manager of a family. Unrecognised families get a Manager
// that never finds anything.
func For(family osrelease.Family) Manager {
	switch family {
	case osrelease.Debian:
		return dpkg{}
	case osrelease.Alpine:
		return apk{}
	case osrelease.RPM:
		return rpm{}
	default:
		return unknown{}
	}
}

// query runs cmd and returns the trimmed output, or ok=false when the
// command exited non-zero.
func query(ctx context.Context, exec osrelease.Executor, cmd []string) (string, bool, error) {
	code, out, err := exec.Exec(ctx, cmd)
	if err != nil {
		return "", false, err
	}
	if code != 0 {
		return "", false, nil
	}
	return strings.TrimSpace(string(out)), true, nil
}

func exists(ctx context.Context, exec osrelease.Executor, pkg string, cmd []string) (bool, error) {
	if pkg == "" {
		return false, nil
	}
	_, ok, err := query(ctx, exec, cmd)
	return ok, err
}

// installed returns the first line of the query output. Query formats end
// in a newline since multilib packages and parallel kernels answer with one
// line per installed instance.
func installed(ctx context.Context, exec osrelease.Executor, pkg string, cmd []string) (*string, error) {
	if pkg == "" {
		return nil, nil
	}
	out, ok, err := query(ctx, exec, cmd)
	if err != nil || !ok {
		return nil, err
	}

	line, _, _ := strings.Cut(out, "\n")
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, nil
	}
	return &line, nil
}
