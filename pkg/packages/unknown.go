package packages

import (
	"context"

	"github.com/kvesta/verity/pkg/osrelease"
)

type unknown struct{}

func (unknown) Family() osrelease.Family { return osrelease.Unknown }

func (unknown) Exists(context.Context, osrelease.Executor, string) (bool, error) {
	return false, nil
}

func (unknown) InstalledVersion(context.Context, osrelease.Executor, string) (*string, error) {
	return nil, nil
}
