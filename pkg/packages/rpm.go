package packages

import (
	"context"

	"github.com/kvesta/verity/pkg/osrelease"
)

// rpm serves RHEL, CentOS, Fedora and their rebuilds.
type rpm struct{}

func (rpm) Family() osrelease.Family { return osrelease.RPM }

func (rpm) Exists(ctx context.Context, exec osrelease.Executor, pkg string) (bool, error) {
	return exists(ctx, exec, pkg, []string{"rpm", "-q", pkg})
}

func (rpm) InstalledVersion(ctx context.Context, exec osrelease.Executor, pkg string) (*string, error) {
	return installed(ctx, exec, pkg, []string{"rpm", "-q", "--qf", `%{VERSION}-%{RELEASE}\n`, pkg})
}
