package verify

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"path/filepath"
	"strings"
	"testing"

	vlog "github.com/kvesta/verity/internal/log"
	"github.com/kvesta/verity/internal/parser"
	"github.com/kvesta/verity/internal/report"
	"github.com/kvesta/verity/pkg/inspector"
	"github.com/kvesta/verity/pkg/purl"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const debianRelease = `NAME="Debian GNU/Linux"
VERSION_ID="12"
ID=debian
`

type reply struct {
	code int
	out  string
}

type fakeRuntime struct {
	replies map[string]reply

	// execErr is returned by every exec after failAfter successful calls.
	execErr   error
	failAfter int

	startErr error

	starts   int
	destroys int
	detects  int
	execs    int
}

type fakeSession struct {
	rt *fakeRuntime
	id string
}

func (rt *fakeRuntime) StartSession(_ context.Context, image string) (inspector.Session, error) {
	if rt.startErr != nil {
		return nil, rt.startErr
	}
	rt.starts++
	return &fakeSession{rt: rt, id: fmt.Sprintf("%s-%d", image, rt.starts)}, nil
}

func (s *fakeSession) ID() string { return s.id }

func (s *fakeSession) Destroy(context.Context) error {
	s.rt.destroys++
	return nil
}

func (s *fakeSession) Exec(_ context.Context, cmd []string) (int, []byte, error) {
	rt := s.rt
	rt.execs++
	if rt.execErr != nil && rt.execs > rt.failAfter {
		return -1, nil, rt.execErr
	}

	key := strings.Join(cmd, " ")
	if key == "cat /etc/os-release" {
		rt.detects++
	}
	if r, ok := rt.replies[key]; ok {
		return r.code, []byte(r.out), nil
	}
	return 1, nil, nil
}

func debianRuntime() *fakeRuntime {
	return &fakeRuntime{
		replies: map[string]reply{
			"cat /etc/os-release": {0, debianRelease},
		},
	}
}

func (rt *fakeRuntime) install(pkg, version string) {
	rt.replies["dpkg -s "+pkg] = reply{0, "Status: install ok installed"}
	rt.replies["dpkg-query -W -f=${Version}\\n "+pkg] = reply{0, version + "\n"}
}

func newVerifier(t *testing.T, rt *fakeRuntime) *Verifier {
	t.Helper()
	return &Verifier{
		Runtime: rt,
		Image:   "debian:12",
		Writer:  report.Writer{Dir: t.TempDir(), Format: report.FormatJSON},
		Log:     vlog.Discard(),
	}
}

func opensslFinding() *report.Finding {
	return &report.Finding{
		VulnID:           "CVE-2023-0286",
		VulnType:         report.CVE,
		Package:          "openssl",
		PackageType:      purl.OS,
		InstalledVersion: report.String("1.1.1-1"),
		FixedVersion:     report.String("1.1.1-5"),
	}
}

func TestRunInstalledAndVulnerable(t *testing.T) {
	rt := debianRuntime()
	rt.install("openssl", "1.1.1-1")
	v := newVerifier(t, rt)

	f := opensslFinding()
	results, err := v.Run(context.Background(), []*report.Finding{f})
	require.NoError(t, err)
	require.Len(t, results, 4)

	assert.True(t, *f.ComponentExists)
	assert.True(t, *f.VersionMatches)
	assert.True(t, *f.NotFixedOrMitigated)
	assert.True(t, *f.ScannerNotGuessing)
	require.NotNil(t, f.ContainerInstalledVersion)
	assert.Equal(t, "1.1.1-1", *f.ContainerInstalledVersion)

	assert.Equal(t, 4, rt.starts)
	assert.Equal(t, 4, rt.destroys)

	for i, res := range results {
		assert.Equal(t, Stages[i].Name, res.Stage.Name)
		assert.Equal(t, filepath.Join(v.Writer.Dir, Stages[i].File+".json"), res.Path)

		doc, err := report.Read(res.Path)
		require.NoError(t, err)
		assert.Equal(t, 1, doc.Summary[report.TotalKey])
		assert.Equal(t, 1, doc.Summary[res.Stage.TrueKey])
		assert.Equal(t, 0, doc.Summary[res.Stage.FalseKey])
	}
}

func TestResultsKeepStageState(t *testing.T) {
	rt := debianRuntime()
	rt.install("openssl", "1.1.1-1")
	v := newVerifier(t, rt)

	f := opensslFinding()
	results, err := v.Run(context.Background(), []*report.Finding{f})
	require.NoError(t, err)
	require.Len(t, results, 4)

	first := results[0].Document.Vulnerabilities[0]
	assert.NotSame(t, f, first)
	assert.True(t, *first.ComponentExists)
	assert.Nil(t, first.VersionMatches)
	assert.Nil(t, first.NotFixedOrMitigated)
	assert.Nil(t, first.ScannerNotGuessing)

	third := results[2].Document.Vulnerabilities[0]
	assert.True(t, *third.NotFixedOrMitigated)
	assert.Nil(t, third.ScannerNotGuessing)

	assert.True(t, *f.ScannerNotGuessing)
}

func TestRunVersionQueryFails(t *testing.T) {
	rt := debianRuntime()
	rt.replies["dpkg -s openssl"] = reply{0, "Status: install ok installed"}
	rt.replies["dpkg-query -W -f=${Version}\\n openssl"] = reply{1, "dpkg-query: no packages found"}
	v := newVerifier(t, rt)

	f := opensslFinding()
	_, err := v.Run(context.Background(), []*report.Finding{f})
	require.NoError(t, err)

	assert.True(t, *f.ComponentExists)
	assert.Nil(t, f.ContainerInstalledVersion)
	assert.False(t, *f.VersionMatches)
	assert.True(t, *f.NotFixedOrMitigated)
	assert.False(t, *f.ScannerNotGuessing)
}

func TestNotFixedReasons(t *testing.T) {
	tests := []struct {
		name     string
		live     string
		fixed    *string
		expected bool
	}{
		{"no fix", "1.1.1-1", nil, true},
		{"empty fix", "1.1.1-1", report.String(""), true},
		{"lower", "1.1.1-1", report.String("1.1.1-5"), true},
		{"equal", "1.1.1-5", report.String("1.1.1-5"), false},
		{"higher", "1.1.1-10", report.String("1.1.1-5"), false},
		{"epoch on live only", "1:1.1.1-1", report.String("1.1.1-5"), true},
		{"epoch on live, fix applied", "1:1.1.1-6", report.String("1.1.1-5"), false},
		{"epoch on both", "1:1.1.1-1", report.String("1:1.1.1-5"), true},
		{"higher epoch on fix", "1:1.1.1-9", report.String("2:1.0"), true},
		{"lowest of list", "2.0.1", report.String("2.0.3, 2.1.0"), true},
		{"list satisfied", "2.0.3", report.String("2.1.0,2.0.3"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := debianRuntime()
			rt.install("openssl", tt.live)
			v := newVerifier(t, rt)

			f := opensslFinding()
			f.FixedVersion = tt.fixed
			f.ComponentExists = report.Bool(true)

			_, err := v.RunStage(context.Background(), NotFixed, []*report.Finding{f})
			require.NoError(t, err)
			assert.Equal(t, tt.expected, *f.NotFixedOrMitigated)
		})
	}
}

func TestNotFixedEpochFromRecommendation(t *testing.T) {
	rt := debianRuntime()
	rt.install("login", "1:4.13+dfsg1-1")
	v := newVerifier(t, rt)

	f := &report.Finding{
		VulnID:           "CVE-2023-4641",
		Package:          "login",
		InstalledVersion: report.String("1:4.13+dfsg1-1"),
		FixedVersion:     parser.ExtractFixedVersion("Upgrade login to version 1:4.13+dfsg1-1+deb12u1", nil),
		ComponentExists:  report.Bool(true),
	}
	require.NotNil(t, f.FixedVersion)
	require.Equal(t, "4.13+dfsg1-1+deb12u1", *f.FixedVersion)

	for _, stage := range []Stage{VersionMatch, NotFixed} {
		_, err := v.RunStage(context.Background(), stage, []*report.Finding{f})
		require.NoError(t, err)
	}

	assert.True(t, *f.VersionMatches)
	assert.True(t, *f.NotFixedOrMitigated)
}

func TestScannerGuessingEpoch(t *testing.T) {
	rt := debianRuntime()
	rt.install("login", "1:4.13+dfsg1-1")
	v := newVerifier(t, rt)

	matching := &report.Finding{
		VulnID:           "CVE-2023-4641",
		Package:          "login",
		InstalledVersion: report.String("4.13+dfsg1-1"),
		ComponentExists:  report.Bool(true),
	}
	guessed := &report.Finding{
		VulnID:           "CVE-2023-29383",
		Package:          "login",
		InstalledVersion: report.String("4.13"),
		ComponentExists:  report.Bool(true),
	}

	res, err := v.RunStage(context.Background(), NotGuessing, []*report.Finding{matching, guessed})
	require.NoError(t, err)

	assert.True(t, *matching.ScannerNotGuessing)
	assert.False(t, *guessed.ScannerNotGuessing)
	assert.Equal(t, 1, res.Document.Summary["scanner_not_guessing_true"])
	assert.Equal(t, 1, res.Document.Summary["scanner_not_guessing_false"])
}

func TestAbsentComponentShortCircuits(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	rt := debianRuntime()

	var findings []*report.Finding
	for i := 0; i < 50; i++ {
		pkg := fmt.Sprintf("pkg%d", i)
		f := &report.Finding{
			VulnID:  fmt.Sprintf("CVE-2024-%04d", i),
			Package: pkg,
		}
		if rng.Intn(2) == 0 {
			f.InstalledVersion = report.String(fmt.Sprintf("%d.%d", rng.Intn(5), rng.Intn(5)))
		}
		if rng.Intn(2) == 0 {
			f.FixedVersion = report.String(fmt.Sprintf("%d.%d", rng.Intn(5), rng.Intn(5)))
		}
		if rng.Intn(3) == 0 {
			rt.install(pkg, fmt.Sprintf("%d.%d", rng.Intn(5), rng.Intn(5)))
		}
		findings = append(findings, f)
	}

	v := newVerifier(t, rt)
	results, err := v.Run(context.Background(), findings)
	require.NoError(t, err)

	for _, f := range findings {
		if f.Exists() {
			continue
		}
		assert.False(t, *f.VersionMatches, f.Package)
		assert.False(t, *f.NotFixedOrMitigated, f.Package)
		assert.True(t, *f.ScannerNotGuessing, f.Package)
		assert.Nil(t, f.ContainerInstalledVersion, f.Package)
	}

	for _, res := range results {
		sum := res.Document.Summary
		assert.Equal(t, sum[report.TotalKey], sum[res.Stage.TrueKey]+sum[res.Stage.FalseKey], res.Stage.Name)
		assert.Equal(t, len(findings), sum[report.TotalKey])
	}
}

func TestAbsentComponentSkipsQuery(t *testing.T) {
	rt := debianRuntime()
	v := newVerifier(t, rt)

	f := opensslFinding()
	f.ComponentExists = report.Bool(false)

	for _, stage := range []Stage{VersionMatch, NotFixed, NotGuessing} {
		before := rt.execs
		_, err := v.RunStage(context.Background(), stage, []*report.Finding{f})
		require.NoError(t, err)
		// only os detection
		assert.Equal(t, 1, rt.execs-before, stage.Name)
	}
}

func TestStageFailureTearsDown(t *testing.T) {
	rt := debianRuntime()
	rt.install("openssl", "1.1.1-1")
	rt.execErr = errors.New("connection reset")
	// detection plus the first package query succeed
	rt.failAfter = 2
	v := newVerifier(t, rt)

	second := opensslFinding()
	second.Package = "libssl3"

	results, err := v.Run(context.Background(), []*report.Finding{opensslFinding(), second})
	require.Error(t, err)
	assert.Contains(t, err.Error(), ComponentExists.Name)
	assert.Empty(t, results)

	assert.Equal(t, 1, rt.starts)
	assert.Equal(t, 1, rt.destroys)
}

func TestStartFailure(t *testing.T) {
	rt := debianRuntime()
	rt.startErr = fmt.Errorf("%w: no such image", inspector.ErrSession)
	v := newVerifier(t, rt)

	_, err := v.Run(context.Background(), []*report.Finding{opensslFinding()})
	require.Error(t, err)
	assert.ErrorIs(t, err, inspector.ErrSession)
	assert.Equal(t, 0, rt.destroys)
}

func TestSharedSession(t *testing.T) {
	rt := debianRuntime()
	rt.install("openssl", "1.1.1-1")
	v := newVerifier(t, rt)
	v.ShareSession = true

	f := opensslFinding()
	results, err := v.Run(context.Background(), []*report.Finding{f})
	require.NoError(t, err)
	assert.Len(t, results, 4)

	assert.Equal(t, 1, rt.starts)
	assert.Equal(t, 1, rt.detects)
	assert.Equal(t, 1, rt.destroys)
	assert.Nil(t, v.shared)
	assert.True(t, *f.ScannerNotGuessing)
}

func TestUnknownFamily(t *testing.T) {
	rt := &fakeRuntime{
		replies: map[string]reply{
			"cat /etc/os-release": {0, "NAME=\"Plan 9\"\nID=plan9\n"},
		},
	}
	v := newVerifier(t, rt)

	f := opensslFinding()
	_, err := v.Run(context.Background(), []*report.Finding{f})
	require.NoError(t, err)

	assert.False(t, *f.ComponentExists)
	assert.False(t, *f.VersionMatches)
	assert.False(t, *f.NotFixedOrMitigated)
	assert.True(t, *f.ScannerNotGuessing)
}
