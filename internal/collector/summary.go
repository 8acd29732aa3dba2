package collector

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
)

// PrintSummary writes a per-source table followed by a success/failure banner.
func PrintSummary(w io.Writer, r *Report) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SOURCE\tSTATUS\tCOLLECTED\tSTORED\tDUPLICATES\tERRORS\tDURATION")

	var collected, stored, duplicates int
	for _, res := range r.Results {
		status := "ok"
		if !res.Success {
			status = "FAILED"
		}
		storedCol := humanize.Comma(int64(res.ItemsStored))
		dupCol := humanize.Comma(int64(res.DuplicatesSkipped))
		if r.DryRun {
			storedCol, dupCol = "-", "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			res.Source, status,
			humanize.Comma(int64(res.ItemsCollected)),
			storedCol, dupCol,
			len(res.Errors),
			res.Duration.Round(time.Millisecond),
		)
		collected += res.ItemsCollected
		stored += res.ItemsStored
		duplicates += res.DuplicatesSkipped
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	for _, res := range r.Results {
		for _, e := range res.Errors {
			fmt.Fprintf(w, "  %s error: %s\n", res.Source, e)
		}
		for _, warn := range res.Warnings {
			fmt.Fprintf(w, "  %s warning: %s\n", res.Source, warn)
		}
	}

	fmt.Fprintln(w)
	if failed := r.FailedSources(); len(failed) > 0 {
		names := make([]string, len(failed))
		for i, f := range failed {
			names[i] = string(f)
		}
		fmt.Fprintf(w, "FAILED: %d of %d sources failed (%s)\n", len(failed), len(r.Results), strings.Join(names, ", "))
		return nil
	}

	if r.DryRun {
		fmt.Fprintf(w, "SUCCESS (dry run): %s items collected from %d sources in %s\n",
			humanize.Comma(int64(collected)), len(r.Results), r.Duration.Round(time.Millisecond))
		return nil
	}
	fmt.Fprintf(w, "SUCCESS: %s collected, %s stored, %s duplicates from %d sources in %s\n",
		humanize.Comma(int64(collected)), humanize.Comma(int64(stored)), humanize.Comma(int64(duplicates)),
		len(r.Results), r.Duration.Round(time.Millisecond))
	return nil
}

// PrintJSON writes the report as indented JSON.
func PrintJSON(w io.Writer, r *Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}
