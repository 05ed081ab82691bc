package packages

import (
	"context"

	"github.com/kvesta/verity/pkg/osrelease"
)

// dpkg serves Debian and Ubuntu images.
type dpkg struct{}

func (dpkg) Family() osrelease.Family { return osrelease.Debian }

func (dpkg) Exists(ctx context.Context, exec osrelease.Executor, pkg string) (bool, error) {
	return exists(ctx, exec, pkg, []string{"dpkg", "-s", pkg})
}

func (dpkg) InstalledVersion(ctx context.Context, exec osrelease.Executor, pkg string) (*string, error) {
	return installed(ctx, exec, pkg, []string{"dpkg-query", "-W", `-f=${Version}\n`, pkg})
}
