// Package scanner drives the external vulnerability scanner whose report
// is being validated.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrScan is returned when the scanner could not produce a report.
var ErrScan = errors.New("vulnerability scan failed")

// Trivy produces CycloneDX reports with trivy.
type Trivy struct {
	Binary  string
	Timeout time.Duration
	OutDir  string
	Log     logrus.FieldLogger
}

// ReportName derives the report file name from an image reference.
func ReportName(image string) string {
	r := strings.NewReplacer("/", "_", ":", "_")
	return r.Replace(image) + "_vuln.json"
}

// Scan runs an OS-package vulnerability scan of image and returns the path
// of the CycloneDX report.
func (t *Trivy) Scan(ctx context.Context, image string) (string, error) {
	binary := t.Binary
	if binary == "" {
		binary = "trivy"
	}

	if err := os.MkdirAll(t.OutDir, 0755); err != nil {
		return "", fmt.Errorf("%w: %v", ErrScan, err)
	}
	output := filepath.Join(t.OutDir, ReportName(image))

	if t.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.Timeout)
		defer cancel()
	}

	args := []string{
		"image", image,
		"--format", "cyclonedx",
		"--scanners", "vuln",
		"--pkg-types", "os",
		"--output", output,
	}

	t.Log.WithFields(logrus.Fields{
		"command": binary + " " + strings.Join(args, " "),
	}).Info("Running vulnerability scanner")

	elapsed, err := execute(ctx, binary, args)
	if err != nil {
		return "", err
	}

	t.Log.WithFields(logrus.Fields{
		"output":   output,
		"duration": elapsed.Round(time.Millisecond),
	}).Info("Vulnerability report generated")

	return output, nil
}
