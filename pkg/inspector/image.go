package inspector

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/sirupsen/logrus"
)

// Reference appends the default tag to an image name given without one.
// A registry port ("localhost:5000/app") is not mistaken for a tag.
func Reference(image string) string {
	image = strings.TrimSpace(image)
	if image == "" || strings.Contains(image, "@") {
		return image
	}

	name := image[strings.LastIndex(image, "/")+1:]
	if strings.Contains(name, ":") {
		return image
	}
	return image + ":latest"
}

// Acquire pulls the image and returns its full reference.
func (da *DockerApi) Acquire(ctx context.Context, log logrus.FieldLogger, image string) (string, error) {
	ref := Reference(image)
	if ref == "" {
		return "", fmt.Errorf("%w: empty image reference", ErrAcquire)
	}

	log.WithField("image", ref).Info("Pulling image")
	reader, err := da.DCli.ImagePull(ctx, ref, types.ImagePullOptions{})
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrAcquire, ref, err)
	}
	defer reader.Close()

	// Waiting for pulling image
	if _, err := io.Copy(io.Discard, reader); err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrAcquire, ref, err)
	}

	if _, _, err := da.DCli.ImageInspectWithRaw(ctx, ref); err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrAcquire, ref, err)
	}

	return ref, nil
}
