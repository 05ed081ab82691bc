package parser

import (
	"regexp"
	"sort"
	"strings"

	cdx "github.com/CycloneDX/cyclonedx-go"
)

// one or more dot separated numeric groups with an optional build suffix
var versionPattern = regexp.MustCompile(`\b\d+(?:\.\d+)+(?:[-+~:\w]*)`)

// ExtractFixedVersion resolves the version a finding is fixed in. A
// structured entry with status "fixed" or "resolved" wins, otherwise every
// version-shaped token of the free-text recommendation is returned sorted,
// de-duplicated and joined with ", ".
func ExtractFixedVersion(recommendation string, versions []cdx.AffectedVersions) *string {
	for _, ver := range versions {
		status := strings.ToLower(string(ver.Status))
		if (status == "fixed" || status == "resolved") && ver.Version != "" {
			v := ver.Version
			return &v
		}
	}

	return fromRecommendation(recommendation)
}

func fromRecommendation(recommendation string) *string {
	if recommendation == "" {
		return nil
	}

	matches := versionPattern.FindAllString(recommendation, -1)
	if len(matches) == 0 {
		return nil
	}

	seen := make(map[string]bool, len(matches))
	uniq := make([]string, 0, len(matches))
	for _, m := range matches {
		if !seen[m] {
			seen[m] = true
			uniq = append(uniq, m)
		}
	}
	sort.Strings(uniq)

	joined := strings.Join(uniq, ", ")
	return &joined
}
