package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"stock_scanner/internal/feature/scanner/domain/entity"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// writeResults prints results as a table or JSON.
func writeResults(w io.Writer, format string, results []entity.AnalysisResult) error {
	if strings.EqualFold(format, "json") {
		return writeJSON(w, results)
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SYMBOL\tNAME\tMARKET\tCLOSE\tCHG%\tV-RATIO\tSCORE\tVERDICT\tTAGS")
	for _, r := range results {
		tags := make([]string, 0, len(r.Tags))
		for _, t := range r.Tags {
			tags = append(tags, string(t))
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f\t%+.2f\t%.2f\t%.2f\t%s\t%s\n",
			r.Symbol, r.Name, r.Market, r.Close, r.ChangePercent, r.VolumeRatio, r.Score, r.Verdict, strings.Join(tags, ","))
	}
	return tw.Flush()
}

// writeReport prints a full scan report: source statuses, stage counts, results and failures.
func writeReport(w io.Writer, format string, report entity.ScanReport) error {
	if strings.EqualFold(format, "json") {
		return writeJSON(w, report)
	}
	fmt.Fprintf(w, "run %s  market=%s  stage=%s\n", report.RunID, report.Market, report.Stage)
	for _, s := range report.Sources {
		state := "ok"
		if !s.OK {
			state = "FAILED: " + s.Error
		}
		fmt.Fprintf(w, "  source %-5s %5d quotes  %s\n", s.Source, s.Count, state)
	}
	fmt.Fprintf(w, "  discovered=%d filtered=%d analyzed=%d failures=%d\n\n",
		report.Counts.Discovered, report.Counts.Filtered, report.Counts.Analyzed, len(report.Failures))
	if err := writeResults(w, format, report.Results); err != nil {
		return err
	}
	for _, f := range report.Failures {
		fmt.Fprintf(w, "  ! %s (%s): %s\n", f.Symbol, f.Stage, f.Error)
	}
	return nil
}
