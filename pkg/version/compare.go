package version

import (
	"fmt"
	"strings"

	"github.com/kvesta/verity/pkg/osrelease"

	version2 "github.com/hashicorp/go-version"
	apkversion "github.com/knqyf263/go-apk-version"
	debversion "github.com/knqyf263/go-deb-version"
	rpmversion "github.com/knqyf263/go-rpm-version"
)

// Compare orders two versions using the rules of the packaging family the
// versions come from. It returns -1, 0 or +1.
//
// When the family parser rejects either side the versions are compared with
// the rpmvercmp segment algorithm, which accepts any input: numeric runs are
// compared numerically and sort after alphabetic runs, alphabetic runs compare
// lexically, '~' sorts before anything and the longer remainder wins. The
// fallback is what makes this a total order over arbitrary strings.
func Compare(family osrelease.Family, a, b string) int {
	if res, err := compareFamily(family, a, b); err == nil {
		return sign(res)
	}
	return Fallback(a, b)
}

// Fallback compares two arbitrary version strings with rpmvercmp.
func Fallback(a, b string) int {
	return sign(rpmversion.NewVersion(a).Compare(rpmversion.NewVersion(b)))
}

// go-deb-version returns the raw difference of the first unequal part
func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	default:
		return 0
	}
}

// Less reports whether a sorts before b.
func Less(family osrelease.Family, a, b string) bool {
	return Compare(family, a, b) < 0
}

func compareFamily(family osrelease.Family, a, b string) (int, error) {
	switch family {
	case osrelease.Debian:
		va, err := debversion.NewVersion(a)
		if err != nil {
			return 0, err
		}
		vb, err := debversion.NewVersion(b)
		if err != nil {
			return 0, err
		}
		return va.Compare(vb), nil

	case osrelease.Alpine:
		va, err := apkversion.NewVersion(a)
		if err != nil {
			return 0, err
		}
		vb, err := apkversion.NewVersion(b)
		if err != nil {
			return 0, err
		}
		return va.Compare(vb), nil

	case osrelease.RPM:
		return Fallback(a, b), nil

	default:
		va, err := version2.NewVersion(a)
		if err != nil {
			return 0, err
		}
		vb, err := version2.NewVersion(b)
		if err != nil {
			return 0, err
		}
		return va.Compare(vb), nil
	}
}

// Lowest picks the smallest entry of a comma separated version list, as
// produced when a fix version is recovered from free text. Empty entries
// are ignored. An error is returned when the list holds no version at all.
func Lowest(family osrelease.Family, list string) (string, error) {
	var lowest string
	for _, v := range strings.Split(list, ",") {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if lowest == "" || Less(family, v, lowest) {
			lowest = v
		}
	}

	if lowest == "" {
		return "", fmt.Errorf("no version in %q", list)
	}
	return lowest, nil
}
