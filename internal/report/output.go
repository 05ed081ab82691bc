package report

import (
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/kvesta/verity/config"

	"github.com/olekukonko/tablewriter"
)

// ResolveParseData prints the counters gathered while parsing a report.
func ResolveParseData(w io.Writer, c Counters) {
	fmt.Fprintf(w, "\nParsed %s findings | CVE: %s TEMP: %s OS: %s Library: %s\n\n",
		config.Yellow(c[CounterTotal]),
		config.Red(c[CounterCVE]),
		config.Pink(c[CounterTEMP]),
		config.Yellow(c[CounterOS]),
		config.Green(c[CounterLibrary]))
}

// ResolveStageSummaries prints one row per stage with its counts.
func ResolveStageSummaries(w io.Writer, stages []string, summaries map[string]map[string]int) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Stage", "Total", "Counts"})
	table.SetRowLine(true)

	for _, stage := range stages {
		summary, ok := summaries[stage]
		if !ok {
			continue
		}

		keys := make([]string, 0, len(summary))
		for k := range summary {
			if k != TotalKey {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)

		var counts string
		for i, k := range keys {
			if i > 0 {
				counts += "\n"
			}
			counts += fmt.Sprintf("%s: %d", k, summary[k])
		}

		table.Append([]string{stage, strconv.Itoa(summary[TotalKey]), counts})
	}

	table.Render()
}

// ResolveVerdicts prints every finding with its four verdicts.
func ResolveVerdicts(w io.Writer, findings []*Finding) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"ID", "Vuln ID", "Package", "Reported/Live Version",
		"Exists", "Version Match", "Not Fixed", "Not Guessing"})
	table.SetRowLine(true)
	table.SetAutoMergeCellsByColumnIndex([]int{1})

	for i, f := range findings {
		table.Append([]string{
			strconv.Itoa(i + 1), f.VulnID, f.Package,
			fmt.Sprintf("%s / %s", orDash(f.InstalledVersion), orDash(f.ContainerInstalledVersion)),
			judgeVerdict(f.ComponentExists), judgeVerdict(f.VersionMatches),
			judgeVerdict(f.NotFixedOrMitigated), judgeVerdict(f.ScannerNotGuessing),
		})
	}

	table.Render()
}

func orDash(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}

func judgeVerdict(b *bool) string {
	switch {
	case b == nil:
		return "-"
	case *b:
		return config.Green("true")
	default:
		return config.Red("false")
	}
}
