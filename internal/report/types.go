package report

import "github.com/kvesta/verity/pkg/purl"

// VulnType is derived from the prefix of a vulnerability id.
type VulnType string

const (
	CVE   VulnType = "CVE"
	TEMP  VulnType = "TEMP"
	Other VulnType = "OTHER"
)

// Finding is one vulnerability to package association taken from a scan
// report. The annotation fields stay nil until the stage that owns them has
// run over the record.
type Finding struct {
	VulnID           string           `json:"vuln_id" yaml:"vuln_id"`
	VulnType         VulnType         `json:"vuln_type" yaml:"vuln_type"`
	Package          string           `json:"package" yaml:"package"`
	PackageType      purl.PackageType `json:"package_type" yaml:"package_type"`
	InstalledVersion *string          `json:"installed_version" yaml:"installed_version"`
	FixedVersion     *string          `json:"fixed_version" yaml:"fixed_version"`
	Description      string           `json:"description" yaml:"description"`
	PURL             string           `json:"purl,omitempty" yaml:"purl,omitempty"`

	ComponentExists           *bool   `json:"component_exists,omitempty" yaml:"component_exists,omitempty"`
	ContainerInstalledVersion *string `json:"container_installed_version,omitempty" yaml:"container_installed_version,omitempty"`
	VersionMatches            *bool   `json:"version_matches,omitempty" yaml:"version_matches,omitempty"`
	NotFixedOrMitigated       *bool   `json:"not_fixed_or_mitigated,omitempty" yaml:"not_fixed_or_mitigated,omitempty"`
	ScannerNotGuessing        *bool   `json:"scanner_not_guessing,omitempty" yaml:"scanner_not_guessing,omitempty"`
}

// Exists reports the component verdict, an unset verdict counts as absent.
func (f *Finding) Exists() bool {
	return f.ComponentExists != nil && *f.ComponentExists
}

// Counters maps a category to its count.
type Counters map[string]int

// Parse counter keys.
const (
	CounterTotal   = "TOTAL"
	CounterCVE     = "CVE"
	CounterTEMP    = "TEMP"
	CounterOther   = "OTHER"
	CounterOS      = "OS"
	CounterLibrary = "LIBRARY"
)

// TotalKey is present in every summary.
const TotalKey = "total_vulnerabilities"

// Document is what gets persisted after parsing and after every stage.
type Document struct {
	Summary         map[string]int `json:"summary" yaml:"summary"`
	Vulnerabilities []*Finding     `json:"vulnerabilities" yaml:"vulnerabilities"`
}

// ParseSummary folds parse counters into the summary shape.
func ParseSummary(c Counters) map[string]int {
	return map[string]int{
		TotalKey:                  c[CounterTotal],
		"cve_count":               c[CounterCVE],
		"temp_count":              c[CounterTEMP],
		"os_vulnerabilities":      c[CounterOS],
		"library_vulnerabilities": c[CounterLibrary],
	}
}

// Tally counts findings for which verdict returns true and false.
func Tally(findings []*Finding, verdict func(*Finding) bool) (int, int) {
	var yes, no int
	for _, f := range findings {
		if verdict(f) {
			yes++
		} else {
			no++
		}
	}
	return yes, no
}

func Bool(b bool) *bool { return &b }

func String(s string) *string { return &s }
