package packages

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kvesta/verity/pkg/osrelease"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type reply struct {
	code int
	out  string
}

type fakeExec struct {
	replies map[string]reply
	err     error
	calls   []string
}

func (f *fakeExec) Exec(_ context.Context, cmd []string) (int, []byte, error) {
	key := strings.Join(cmd, " ")
	f.calls = append(f.calls, key)
	if f.err != nil {
		return -1, nil, f.err
	}
	if r, ok := f.replies[key]; ok {
		return r.code, []byte(r.out), nil
	}
	return 1, nil, nil
}

func TestFor(t *testing.T) {
	tests := []struct {
		family osrelease.Family
		want   osrelease.Family
	}{
		{family: osrelease.Debian, want: osrelease.Debian},
		{family: osrelease.Alpine, want: osrelease.Alpine},
		{family: osrelease.RPM, want: osrelease.RPM},
		{family: osrelease.Unknown, want: osrelease.Unknown},
		{family: "arch", want: osrelease.Unknown},
	}

	for _, tt := range tests {
		t.Run(string(tt.family), func(t *testing.T) {
			assert.Equal(t, tt.want, For(tt.family).Family())
		})
	}
}

func TestExists(t *testing.T) {
	tests := []struct {
		name      string
		family    osrelease.Family
		pkg       string
		replies   map[string]reply
		want      bool
		wantCalls []string
	}{
		{
			name:      "dpkg installed",
			family:    osrelease.Debian,
			pkg:       "curl",
			replies:   map[string]reply{"dpkg -s curl": {code: 0, out: "Status: install ok installed"}},
			want:      true,
			wantCalls: []string{"dpkg -s curl"},
		},
		{
			name:      "dpkg missing",
			family:    osrelease.Debian,
			pkg:       "curl",
			want:      false,
			wantCalls: []string{"dpkg -s curl"},
		},
		{
			name:      "apk installed",
			family:    osrelease.Alpine,
			pkg:       "musl",
			replies:   map[string]reply{"apk info -e musl": {code: 0, out: "musl"}},
			want:      true,
			wantCalls: []string{"apk info -e musl"},
		},
		{
			name:      "rpm installed",
			family:    osrelease.RPM,
			pkg:       "openssl",
			replies:   map[string]reply{"rpm -q openssl": {code: 0, out: "openssl-1.1.1k-7.el8.x86_64"}},
			want:      true,
			wantCalls: []string{"rpm -q openssl"},
		},
		{
			name:   "unknown family issues nothing",
			family: osrelease.Unknown,
			pkg:    "curl",
			want:   false,
		},
		{
			name:   "empty package issues nothing",
			family: osrelease.Debian,
			pkg:    "",
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := &fakeExec{replies: tt.replies}
			got, err := For(tt.family).Exists(context.Background(), exec, tt.pkg)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantCalls, exec.calls)
		})
	}
}

func TestInstalledVersion(t *testing.T) {
	tests := []struct {
		name    string
		family  osrelease.Family
		pkg     string
		replies map[string]reply
		want    *string
	}{
		{
			name:    "dpkg-query",
			family:  osrelease.Debian,
			pkg:     "libc6",
			replies: map[string]reply{"dpkg-query -W -f=${Version}\\n libc6": {code: 0, out: "2.36-9+deb12u4\n"}},
			want:    strPtr("2.36-9+deb12u4"),
		},
		{
			name:    "dpkg-query not installed",
			family:  osrelease.Debian,
			pkg:     "libc6",
			replies: map[string]reply{"dpkg-query -W -f=${Version}\\n libc6": {code: 1, out: "no packages found"}},
			want:    nil,
		},
		{
			name:    "apk prefix trimmed",
			family:  osrelease.Alpine,
			pkg:     "busybox",
			replies: map[string]reply{"apk info -v busybox": {code: 0, out: "busybox-1.36.1-r15\n"}},
			want:    strPtr("1.36.1-r15"),
		},
		{
			name:    "apk empty output",
			family:  osrelease.Alpine,
			pkg:     "busybox",
			replies: map[string]reply{"apk info -v busybox": {code: 0, out: "\n"}},
			want:    nil,
		},
		{
			name:    "rpm query format",
			family:  osrelease.RPM,
			pkg:     "openssl",
			replies: map[string]reply{"rpm -q --qf %{VERSION}-%{RELEASE}\\n openssl": {code: 0, out: "1.1.1k-7.el8"}},
			want:    strPtr("1.1.1k-7.el8"),
		},
		{
			name:    "rpm multilib",
			family:  osrelease.RPM,
			pkg:     "glibc",
			replies: map[string]reply{"rpm -q --qf %{VERSION}-%{RELEASE}\\n glibc": {code: 0, out: "2.28-225.el8\n2.28-225.el8\n"}},
			want:    strPtr("2.28-225.el8"),
		},
		{
			name:    "dpkg-query multiarch",
			family:  osrelease.Debian,
			pkg:     "libc6",
			replies: map[string]reply{"dpkg-query -W -f=${Version}\\n libc6": {code: 0, out: "2.36-9+deb12u4\n2.36-9+deb12u3\n"}},
			want:    strPtr("2.36-9+deb12u4"),
		},
		{
			name:   "unknown family",
			family: osrelease.Unknown,
			pkg:    "openssl",
			want:   nil,
		},
		{
			name:   "empty package",
			family: osrelease.RPM,
			pkg:    "",
			want:   nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := For(tt.family).InstalledVersion(context.Background(), &fakeExec{replies: tt.replies}, tt.pkg)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSessionFailureIsReturned(t *testing.T) {
	boom := errors.New("container gone")
	exec := &fakeExec{err: boom}

	_, err := For(osrelease.Debian).Exists(context.Background(), exec, "curl")
	assert.ErrorIs(t, err, boom)

	v, err := For(osrelease.Alpine).InstalledVersion(context.Background(), exec, "curl")
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, v)
}

func strPtr(s string) *string { return &s }
