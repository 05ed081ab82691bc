package internal

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/kvesta/verity/config"
	"github.com/kvesta/verity/internal/parser"
	"github.com/kvesta/verity/internal/report"
	"github.com/kvesta/verity/internal/verify"
	"github.com/kvesta/verity/pkg/inspector"
	"github.com/kvesta/verity/pkg/scanner"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
)

// ParsedFile is the name of the document written after parsing.
const ParsedFile = "parsed_vulnerabilities"

// Runner wires the configuration into a validation run.
type Runner struct {
	Cfg *config.Application
	Log *logrus.Logger
	// console tables
	Out io.Writer
}

func (r *Runner) writer() report.Writer {
	return report.Writer{Dir: r.Cfg.Output.Dir, Format: r.Cfg.Output.Format}
}

// DoValidateImage pulls image, scans it and validates every finding of the
// scan against a running container of the same image.
func (r *Runner) DoValidateImage(ctx context.Context, image string) error {
	runID := uuid.NewString()

	docker, err := inspector.New(runID)
	if err != nil {
		return fmt.Errorf("connect docker: %w", err)
	}
	defer docker.Close()

	ref, err := docker.Acquire(ctx, r.Log, image)
	if err != nil {
		return err
	}

	trivy := &scanner.Trivy{
		Binary:  r.Cfg.Scanner.Binary,
		Timeout: r.Cfg.Scanner.Timeout,
		OutDir:  r.Cfg.Output.Dir,
		Log:     r.Log,
	}
	reportPath, err := trivy.Scan(ctx, ref)
	if err != nil {
		return err
	}

	return r.Validate(ctx, docker, runID, ref, reportPath)
}

// DoValidateReport validates an existing scan report against image without
// running the scanner again.
func (r *Runner) DoValidateReport(ctx context.Context, reportPath, image string) error {
	runID := uuid.NewString()

	docker, err := inspector.New(runID)
	if err != nil {
		return fmt.Errorf("connect docker: %w", err)
	}
	defer docker.Close()

	ref, err := docker.Acquire(ctx, r.Log, image)
	if err != nil {
		return err
	}

	return r.Validate(ctx, docker, runID, ref, reportPath)
}

// DoParse turns a scan report into the parse document only.
func (r *Runner) DoParse(reportPath string) (*report.Document, error) {
	findings, counters, err := parser.ParseFile(reportPath, r.Log)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", reportPath, err)
	}

	doc := &report.Document{
		Summary:         report.ParseSummary(counters),
		Vulnerabilities: findings,
	}
	path, err := r.writer().Write(ParsedFile, doc)
	if err != nil {
		return nil, fmt.Errorf("write parse document: %w", err)
	}

	report.ResolveParseData(r.Out, counters)
	r.Log.WithField("output", path).Info(config.Green("Parsed report saved"))

	return doc, nil
}

// Validate parses reportPath and runs the four stages against image on
// runtime. Results of finished stages are printed even when a later stage
// fails.
func (r *Runner) Validate(ctx context.Context, runtime inspector.Runtime, runID, image, reportPath string) (err error) {
	log := r.Log.WithField("run", runID)

	doc, err := r.DoParse(reportPath)
	if err != nil {
		return err
	}

	v := &verify.Verifier{
		Runtime:      runtime,
		Image:        image,
		Writer:       r.writer(),
		Log:          log,
		RunID:        runID,
		ShareSession: r.Cfg.Pipeline.ShareSession,
	}

	if r.Cfg.Output.DB != "" {
		store, serr := report.OpenStore(r.Cfg.Output.DB)
		if serr != nil {
			return serr
		}
		defer func() {
			if cerr := store.Close(); cerr != nil {
				err = multierror.Append(err, cerr)
			}
		}()

		if serr := store.SaveRun(runID, image, time.Now()); serr != nil {
			log.WithError(serr).Warn("Unable to record run in history database")
		}
		v.Store = store
	}

	results, err := v.Run(ctx, doc.Vulnerabilities)

	var names []string
	summaries := make(map[string]map[string]int)
	for _, res := range results {
		names = append(names, res.Stage.Name)
		summaries[res.Stage.Name] = res.Document.Summary
	}
	if len(results) > 0 {
		report.ResolveStageSummaries(r.Out, names, summaries)
	}

	if err != nil {
		return err
	}

	report.ResolveVerdicts(r.Out, doc.Vulnerabilities)
	log.WithField("output", r.Cfg.Output.Dir).Info(config.Green("Validation finished"))
	return nil
}
