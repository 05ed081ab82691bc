package packages

import (
	"context"
	"strings"

	"github.com/kvesta/verity/pkg/osrelease"
)

// apk serves Alpine images.
type apk struct{}

func (apk) Family() osrelease.Family { return osrelease.Alpine }

// `apk info <pkg>` exits 0 for unknown names, -e makes it test installation.
func (apk) Exists(ctx context.Context, exec osrelease.Executor, pkg string) (bool, error) {
	return exists(ctx, exec, pkg, []string{"apk", "info", "-e", pkg})
}

// `apk info -v` prints "<name>-<version>" lines, the name prefix is dropped
// so the result lines up with purl versions.
func (apk) InstalledVersion(ctx context.Context, exec osrelease.Executor, pkg string) (*string, error) {
	v, err := installed(ctx, exec, pkg, []string{"apk", "info", "-v", pkg})
	if v == nil || err != nil {
		return v, err
	}

	line := strings.TrimSpace(strings.TrimPrefix(*v, pkg+"-"))
	if line == "" {
		return nil, nil
	}
	return &line, nil
}
