// Package verify re-derives the ground truth of scanner findings from a
// running instance of the scanned image.
package verify

import (
	"context"
	"fmt"

	"github.com/kvesta/verity/internal/report"
	"github.com/kvesta/verity/pkg/inspector"
	"github.com/kvesta/verity/pkg/osrelease"
	"github.com/kvesta/verity/pkg/packages"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
)

// Verifier runs the validation stages against one image.
type Verifier struct {
	Runtime inspector.Runtime
	Image   string
	Writer  report.Writer
	Log     logrus.FieldLogger

	// optional run history
	Store *report.Store
	RunID string

	// ShareSession keeps one container for all stages instead of starting
	// a fresh one per stage.
	ShareSession bool

	shared *session
}

// Result is the outcome of one stage. Document holds the findings as they
// were when the stage finished.
type Result struct {
	Stage    Stage
	Document *report.Document
	Path     string
}

// session is a running container together with the package manager that
// matches its OS.
type session struct {
	inspector.Session
	family  osrelease.Family
	manager packages.Manager
}

// Run executes the four stages in order over findings, which are annotated
// in place. Results of the stages that completed are returned even when a
// later stage fails.
func (v *Verifier) Run(ctx context.Context, findings []*report.Finding) (results []*Result, err error) {
	if v.ShareSession {
		s, serr := v.start(ctx)
		if serr != nil {
			return nil, serr
		}
		v.shared = s
		defer func() {
			v.shared = nil
			if rerr := v.release(s); rerr != nil {
				err = multierror.Append(err, rerr)
			}
		}()
	}

	for _, stage := range Stages {
		res, err := v.RunStage(ctx, stage, findings)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}

	return results, nil
}

// RunStage evaluates one stage over every finding, in order, and persists
// the stage document. The container is removed on every return path.
func (v *Verifier) RunStage(ctx context.Context, stage Stage, findings []*report.Finding) (res *Result, err error) {
	log := v.Log.WithField("stage", stage.Name)

	s := v.shared
	if s == nil {
		log.WithField("image", v.Image).Info("Starting container")
		s, err = v.start(ctx)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", stage.Name, err)
		}
		defer func() {
			if rerr := v.release(s); rerr != nil {
				err = multierror.Append(err, rerr)
			}
		}()
	}

	for i, f := range findings {
		reason, err := stage.check(ctx, s, f)
		if err != nil {
			return nil, fmt.Errorf("%s: %s: %w", stage.Name, f.Package, err)
		}

		log.WithFields(logrus.Fields{
			"index":   fmt.Sprintf("%d/%d", i+1, len(findings)),
			"package": f.Package,
			"vuln":    f.VulnID,
			"verdict": stage.Verdict(f),
			"reason":  reason,
		}).Info(stage.Title)
	}

	doc := stage.Summarize(findings)

	path, err := v.Writer.Write(stage.File, doc)
	if err != nil {
		return nil, fmt.Errorf("%s: write report: %w", stage.Name, err)
	}

	if v.Store != nil {
		if err := v.Store.SaveStage(v.RunID, stage.Name, doc); err != nil {
			log.WithError(err).Warn("Unable to record stage in history database")
		}
	}

	log.WithFields(logrus.Fields{
		stage.TrueKey:  doc.Summary[stage.TrueKey],
		stage.FalseKey: doc.Summary[stage.FalseKey],
		"output":       path,
	}).Info("Stage finished")

	return &Result{Stage: stage, Document: doc, Path: path}, nil
}

// start provisions a container and detects its packaging family once.
func (v *Verifier) start(ctx context.Context) (*session, error) {
	sess, err := v.Runtime.StartSession(ctx, v.Image)
	if err != nil {
		return nil, err
	}

	family, osv, err := osrelease.Detect(ctx, sess)
	if err != nil {
		if rerr := sess.Destroy(context.Background()); rerr != nil {
			err = multierror.Append(err, rerr)
		}
		return nil, fmt.Errorf("detect os: %w", err)
	}

	v.Log.WithFields(logrus.Fields{
		"container": sess.ID(),
		"family":    family,
		"os":        osv.NAME,
		"version":   osv.VERSION_ID,
	}).Info("Detected OS")

	return &session{
		Session: sess,
		family:  family,
		manager: packages.For(family),
	}, nil
}

// release removes the container. A fresh context is used so a cancelled
// run still cleans up after itself.
func (v *Verifier) release(s *session) error {
	if err := s.Destroy(context.Background()); err != nil {
		return err
	}
	v.Log.WithField("container", s.ID()).Info("Container removed")
	return nil
}
