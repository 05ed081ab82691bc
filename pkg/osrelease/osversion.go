package osrelease

import "context"

// Family is the packaging family of the operating system inside an image.
type Family string

const (
	Debian  Family = "debian"
	Alpine  Family = "alpine"
	RPM     Family = "rpm"
	Unknown Family = "unknown"
)

// Executor runs a single command inside a running container.
// A non-zero exit code is not an error, err is reserved for failures
// talking to the container itself.
type Executor interface {
	Exec(ctx context.Context, cmd []string) (int, []byte, error)
}

type OsVersion struct {
	NAME       string `json:"name"`
	OID        string `json:"oid"`
	VERSION    string `json:"version"`
	VERSION_ID string `json:"version_id"`
	ID_LIKE    string `json:"id_like"`
}
