// Package parser turns a CycloneDX vulnerability report into findings.
package parser

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/kvesta/verity/internal/report"
	"github.com/kvesta/verity/pkg/purl"

	cdx "github.com/CycloneDX/cyclonedx-go"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

const unknownID = "UNKNOWN"

// VulnType classifies a vulnerability id by its prefix.
func VulnType(id string) report.VulnType {
	switch {
	case strings.HasPrefix(id, "CVE-"):
		return report.CVE
	case strings.HasPrefix(id, "TEMP-"):
		return report.TEMP
	default:
		return report.Other
	}
}

// ParseFile opens a report and parses it, XML is picked by file extension.
func ParseFile(path string, log logrus.FieldLogger) ([]*report.Finding, report.Counters, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	format := cdx.BOMFileFormatJSON
	if strings.EqualFold(filepath.Ext(path), ".xml") {
		format = cdx.BOMFileFormatXML
	}

	return Parse(f, format, log)
}

// Parse emits one finding per (vulnerability, affected component) pair, in
// document order. Missing fields are replaced by sentinels, only a document
// that cannot be decoded at all is an error.
func Parse(r io.Reader, format cdx.BOMFileFormat, log logrus.FieldLogger) ([]*report.Finding, report.Counters, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, err
	}

	if format == cdx.BOMFileFormatJSON {
		probe(data, log)
	}

	bom := new(cdx.BOM)
	if err := cdx.NewBOMDecoder(bytes.NewReader(data), format).Decode(bom); err != nil {
		return nil, nil, fmt.Errorf("decode cyclonedx report: %w", err)
	}

	findings := []*report.Finding{}
	counters := report.Counters{}

	if bom.Vulnerabilities == nil {
		return findings, counters, nil
	}

	for _, v := range *bom.Vulnerabilities {
		id := v.ID
		if id == "" {
			id = unknownID
		}
		idType := VulnType(id)

		if v.Affects == nil {
			continue
		}

		for _, item := range *v.Affects {
			ref := item.Ref
			if ref == "" {
				ref = unknownID
			}
			name, installed := purl.Decode(ref)
			pkgType := purl.Classify(ref)

			var versions []cdx.AffectedVersions
			if item.Range != nil {
				versions = *item.Range
			}

			counters[report.CounterTotal]++
			counters[string(idType)]++
			counters[string(pkgType)]++

			findings = append(findings, &report.Finding{
				VulnID:           id,
				VulnType:         idType,
				Package:          name,
				PackageType:      pkgType,
				InstalledVersion: installed,
				FixedVersion:     ExtractFixedVersion(v.Recommendation, versions),
				Description:      v.Description,
				PURL:             ref,
			})
		}
	}

	return findings, counters, nil
}

// probe logs what kind of document is being read. Trivy always sets
// bomFormat, its absence usually means the wrong file was passed in.
func probe(data []byte, log logrus.FieldLogger) {
	if !gjson.ValidBytes(data) {
		return
	}

	res := gjson.GetManyBytes(data, "bomFormat", "specVersion", "metadata.component.name", "vulnerabilities.#")
	if res[0].String() != "CycloneDX" {
		log.WithField("bomFormat", res[0].String()).Warn("Report does not declare the CycloneDX format")
	}

	log.WithFields(logrus.Fields{
		"specVersion":     res[1].String(),
		"subject":         res[2].String(),
		"vulnerabilities": res[3].Int(),
	}).Debug("Decoding CycloneDX report")
}
