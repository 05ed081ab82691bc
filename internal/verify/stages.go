package verify

import (
	"context"

	"github.com/kvesta/verity/internal/report"
	"github.com/kvesta/verity/pkg/version"
)

// Stage is one verification pass over the findings.
type Stage struct {
	Name  string
	Title string
	// document file name, without extension
	File string

	TrueKey  string
	FalseKey string

	// Verdict reads the annotation the stage produces.
	Verdict func(*report.Finding) bool

	check func(ctx context.Context, s *session, f *report.Finding) (string, error)
}

var (
	// ComponentExists checks that the reported package is installed at all.
	ComponentExists = Stage{
		Name:     "component_exists",
		Title:    "Component exists",
		File:     "stage1_component_exists",
		TrueKey:  "component_exists_true",
		FalseKey: "component_exists_false",
		Verdict:  func(f *report.Finding) bool { return isTrue(f.ComponentExists) },
		check:    checkComponentExists,
	}

	// VersionMatch checks the reported version against the installed one.
	VersionMatch = Stage{
		Name:     "version_matches",
		Title:    "Version matches",
		File:     "stage2_version_matches",
		TrueKey:  "version_matches_true",
		FalseKey: "version_matches_false",
		Verdict:  func(f *report.Finding) bool { return isTrue(f.VersionMatches) },
		check:    checkVersionMatches,
	}

	// NotFixed checks that the installed version predates the fix.
	NotFixed = Stage{
		Name:     "not_fixed_or_mitigated",
		Title:    "Not fixed or mitigated",
		File:     "stage3_not_fixed_or_mitigated",
		TrueKey:  "not_fixed_true",
		FalseKey: "fixed_false",
		Verdict:  func(f *report.Finding) bool { return isTrue(f.NotFixedOrMitigated) },
		check:    checkNotFixed,
	}

	// NotGuessing checks that the scanner read the version from the image
	// instead of deriving it from base image metadata.
	NotGuessing = Stage{
		Name:     "scanner_not_guessing",
		Title:    "Scanner not guessing",
		File:     "stage4_scanner_not_guessing",
		TrueKey:  "scanner_not_guessing_true",
		FalseKey: "scanner_not_guessing_false",
		Verdict:  func(f *report.Finding) bool { return isTrue(f.ScannerNotGuessing) },
		check:    checkScannerNotGuessing,
	}

	// Stages in execution order. Stages 2 to 4 depend on stage 1.
	Stages = []Stage{ComponentExists, VersionMatch, NotFixed, NotGuessing}
)

// Summarize builds the stage document over the current state of findings.
// The document holds copies, later stages do not show through it.
func (st Stage) Summarize(findings []*report.Finding) *report.Document {
	yes, no := report.Tally(findings, st.Verdict)

	snapshot := make([]*report.Finding, len(findings))
	for i, f := range findings {
		c := *f
		snapshot[i] = &c
	}

	return &report.Document{
		Summary: map[string]int{
			report.TotalKey: len(findings),
			st.TrueKey:      yes,
			st.FalseKey:     no,
		},
		Vulnerabilities: snapshot,
	}
}

func isTrue(b *bool) bool {
	return b != nil && *b
}

func checkComponentExists(ctx context.Context, s *session, f *report.Finding) (string, error) {
	ok, err := s.manager.Exists(ctx, s, f.Package)
	if err != nil {
		return "", err
	}

	f.ComponentExists = report.Bool(ok)
	if !ok {
		return "package not found", nil
	}
	return "package installed", nil
}

func checkVersionMatches(ctx context.Context, s *session, f *report.Finding) (string, error) {
	if !f.Exists() {
		f.VersionMatches = report.Bool(false)
		return "package not present", nil
	}

	live, err := s.manager.InstalledVersion(ctx, s, f.Package)
	if err != nil {
		return "", err
	}

	f.ContainerInstalledVersion = live
	f.VersionMatches = report.Bool(version.Equal(live, f.InstalledVersion))

	if *f.VersionMatches {
		return "versions match", nil
	}
	return "versions differ", nil
}

func checkNotFixed(ctx context.Context, s *session, f *report.Finding) (string, error) {
	// an absent package cannot be exploited
	if !f.Exists() {
		f.NotFixedOrMitigated = report.Bool(false)
		return "package not present", nil
	}

	live, err := s.manager.InstalledVersion(ctx, s, f.Package)
	if err != nil {
		return "", err
	}
	f.ContainerInstalledVersion = live

	notFixed, reason := judgeNotFixed(s, live, f.FixedVersion)
	f.NotFixedOrMitigated = report.Bool(notFixed)
	return reason, nil
}

func judgeNotFixed(s *session, live, fixed *string) (bool, string) {
	if fixed == nil || *fixed == "" {
		return true, "no fixed version available"
	}
	if live == nil {
		return true, "installed version unknown"
	}

	lowest, err := version.Lowest(s.family, *fixed)
	if err != nil {
		return true, "no fixed version available"
	}

	// fix versions recovered from free text lose their epoch, compare
	// the installed one on the same footing
	installed := *live
	if !version.HasEpoch(lowest) {
		installed = version.StripEpoch(installed)
	}

	if version.Less(s.family, installed, lowest) {
		return true, "installed version lower than fixed"
	}
	return false, "fix applied"
}

func checkScannerNotGuessing(ctx context.Context, s *session, f *report.Finding) (string, error) {
	// nothing to verify, vacuously not a guess
	if !f.Exists() {
		f.ScannerNotGuessing = report.Bool(true)
		return "component missing, skipped", nil
	}

	live, err := s.manager.InstalledVersion(ctx, s, f.Package)
	if err != nil {
		return "", err
	}
	f.ContainerInstalledVersion = live

	installed, reported := version.Normalize(live), version.Normalize(f.InstalledVersion)
	switch {
	case installed == nil || reported == nil || *installed == "" || *reported == "":
		f.ScannerNotGuessing = report.Bool(false)
		return "unable to normalize versions", nil
	case *installed != *reported:
		f.ScannerNotGuessing = report.Bool(false)
		return "normalized installed " + *installed + " != reported " + *reported, nil
	default:
		f.ScannerNotGuessing = report.Bool(true)
		return "normalized versions match", nil
	}
}
