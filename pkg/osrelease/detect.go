package osrelease

import (
	"context"
	"strings"
)

// Reference https://manpages.ubuntu.com/manpages/bionic/zh_TW/man5/os-release.5.html
var paths = []string{"/etc/os-release", "/usr/lib/os-release"}

// Matched in order, the first family with a hit wins. Ubuntu and
// the RHEL rebuilds carry their parent in ID_LIKE so a plain
// substring match on the whole file is enough.
var familyMarkers = []struct {
	family  Family
	markers []string
}{
	{Alpine, []string{"alpine"}},
	{Debian, []string{"debian", "ubuntu"}},
	{RPM, []string{"rhel", "centos", "fedora", "rocky", "almalinux", "amzn"}},
}

// Detect reads the os-release metadata of a running container and
// classifies it into a packaging family.
func Detect(ctx context.Context, exec Executor) (Family, *OsVersion, error) {
	osv := &OsVersion{
		NAME: "Linux",
		OID:  "linux",
	}

	var config string
	for _, p := range paths {
		code, out, err := exec.Exec(ctx, []string{"cat", p})
		if err != nil {
			return Unknown, osv, err
		}
		if code == 0 && len(out) > 0 {
			config = string(out)
			break
		}
	}

	if config == "" {
		return Unknown, osv, nil
	}

	osv = getOs(config)
	return Classify(config), osv, nil
}

// Classify maps raw os-release content to a Family by case-insensitive
// substring match.
func Classify(config string) Family {
	text := strings.ToLower(config)
	for _, fm := range familyMarkers {
		for _, m := range fm.markers {
			if strings.Contains(text, m) {
				return fm.family
			}
		}
	}
	return Unknown
}

func parse(config string) map[string]string {
	m := make(map[string]string)
	for _, line := range strings.Split(config, "\n") {
		line = strings.TrimSpace(line)
		if len(line) == 0 || strings.HasPrefix(line, "#") {
			continue
		}
		index := strings.Index(line, "=")
		if index < 0 {
			continue
		}
		m[line[:index]] = strings.Trim(line[index+1:], `"'`)
	}
	return m
}

func getOs(config string) *OsVersion {
	os := &OsVersion{
		NAME: "Linux",
		OID:  "linux",
	}
	for k, v := range parse(config) {
		switch k {
		case "NAME":
			os.NAME = v
		case "ID":
			os.OID = v
		case "VERSION":
			os.VERSION = v
		case "VERSION_ID":
			os.VERSION_ID = v
		case "ID_LIKE":
			os.ID_LIKE = v
		}
	}
	return os
}
