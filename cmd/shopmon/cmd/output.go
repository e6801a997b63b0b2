package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	apiclient "github.com/donaldgifford/shopmon/internal/api/client"
	"github.com/donaldgifford/shopmon/internal/coordinator"
)

// tabWriter wraps tabwriter with error tracking.
type tabWriter struct {
	*tabwriter.Writer
	err error
}

func newTabWriter(w io.Writer) *tabWriter {
	return &tabWriter{Writer: tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)}
}

func (tw *tabWriter) writef(format string, args ...any) {
	if tw.err != nil {
		return
	}
	_, tw.err = fmt.Fprintf(tw.Writer, format, args...)
}

func (tw *tabWriter) finish() error {
	if tw.err != nil {
		return tw.err
	}
	return tw.Flush()
}

func printStatusTable(statuses []coordinator.Status) error {
	tw := newTabWriter(os.Stdout)
	tw.writef("CONNECTION\tSTATE\tSNAPSHOT\tLAST SUCCESS\tFAILURES\tLAST ERROR\n")
	for i := range statuses {
		s := &statuses[i]
		tw.writef("%s\t%s\t%v\t%s\t%d\t%s\n",
			s.ConnectionID,
			s.State,
			s.HasSnapshot,
			formatTime(s.LastSuccess),
			s.ConsecutiveFailures,
			truncate(s.LastError, 60),
		)
	}
	return tw.finish()
}

func printQuota(q *apiclient.QuotaResponse) error {
	tw := newTabWriter(os.Stdout)
	tw.writef("Daily Limit:\t%d\n", q.DailyLimit)
	tw.writef("Daily Used:\t%d\n", q.DailyUsed)
	tw.writef("Remaining:\t%d\n", q.Remaining)
	tw.writef("Resets At:\t%s\n", q.ResetAt)
	return tw.finish()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func truncate(s string, maxLen int) string {
	if s == "" {
		return "-"
	}
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
