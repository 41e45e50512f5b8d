package main

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/BearBump/CargoDesk/internal/services/sweep"
)

func printNormalizeReport(w io.Writer, sum *sweep.NormalizeSummary) {
	mode := "applied"
	if sum.DryRun {
		mode = "dry run"
	}
	fmt.Fprintf(w, "normalize (%s): %d groups, %d changed, %d unresolved, %d failed, %d rows changed\n",
		mode, sum.GroupsProcessed, sum.GroupsChanged, sum.GroupsUnresolved, sum.GroupsFailed, sum.RowsChanged)

	if len(sum.Changed) > 0 {
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "TRACKING\tROW\tOWNER\tMARK\tSOURCE")
		for _, res := range sum.Changed {
			for _, c := range res.Changes {
				fmt.Fprintf(tw, "%s\t%d\t%s -> %s\t%s -> %s\t%s\n",
					res.TrackingNumber, c.TrackingID, owner(c.OwnerFrom), owner(c.OwnerTo), mark(c.MarkFrom), mark(c.MarkTo), res.Source)
			}
		}
		_ = tw.Flush()
	}
	for _, f := range sum.Failures {
		fmt.Fprintf(w, "FAILED %s: %s\n", f.TrackingNumber, f.Error)
	}
}

func printAutoSyncSummary(w io.Writer, sum *sweep.UnassignedSummary, verbose bool) {
	fmt.Fprintf(w, "auto-sync: scanned %d, matched %d, failed %d\n", sum.Scanned, sum.Matched, sum.Failed)
	if !verbose {
		return
	}
	for _, r := range sum.Rows {
		fmt.Fprintf(w, "  %s %s (%s)\n", r.Outcome, r.TrackingNumber, r.Mark)
	}
}

func printMatchReport(w io.Writer, sum *sweep.UnassignedSummary) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ROW\tTRACKING\tMARK\tOUTCOME\tOWNER")
	for _, r := range sum.Rows {
		detail := owner(r.OwnerID)
		if r.Error != "" {
			detail = r.Error
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", r.TrackingID, r.TrackingNumber, r.Mark, r.Outcome, detail)
	}
	_ = tw.Flush()
	fmt.Fprintf(w, "matched %d of %d, %d without a user\n", sum.Matched, sum.Scanned, sum.Failed)
}

func owner(id *uint64) string {
	if id == nil {
		return "-"
	}
	return strconv.FormatUint(*id, 10)
}

func mark(m string) string {
	if m == "" {
		return "-"
	}
	return m
}
