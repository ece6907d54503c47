// Package display renders board rows for operators: a plain text table for
// commands and chat replies, and a live progress board for the terminal.
package display

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"bosstimer/internal/timers"
)

// FormatCountdown renders d as HH:MM:SS, or MM:SS under an hour.
func FormatCountdown(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	s := int(d / time.Second)
	h, m, sec := s/3600, (s/60)%60, s%60
	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, sec)
	}
	return fmt.Sprintf("%02d:%02d", m, sec)
}

func formatPeriod(e timers.Entry) string {
	if e.Seconds == 0 {
		return fmt.Sprintf("%dm", e.Minutes)
	}
	return fmt.Sprintf("%dm%02ds", e.Minutes, e.Seconds)
}

func status(r timers.Row) string {
	switch {
	case r.Err != nil:
		return "error"
	case r.Phase == timers.PhaseRinging:
		return "RINGING"
	case !r.Entry.Enabled:
		return "off"
	case r.Phase == timers.PhasePreWarned:
		return "soon"
	default:
		return "on"
	}
}

// Table writes rows as an aligned text table. Malformed rows show their error
// in place of the computed columns.
func Table(w io.Writer, rows []timers.Row) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tNAME\tPERIOD\tLAST\tNEXT\tREMAINING\tSTATUS\tPROGRESS")
	for _, r := range rows {
		e := r.Entry
		if r.Err != nil {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t-\t-\t%s\t%s\n",
				e.Order, e.Name, formatPeriod(e), e.LastTime, status(r), r.Err)
			continue
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s %3d%%\n",
			e.Order, e.Name, formatPeriod(e), e.LastTime,
			r.Next.Format("15:04:05"),
			FormatCountdown(r.Display.Countdown()),
			status(r),
			progressBar(r.Display.Progress, 10), r.Display.Percent(),
		)
	}
	return tw.Flush()
}

// TableString is Table into a string; the writer cannot fail.
func TableString(rows []timers.Row) string {
	var b strings.Builder
	_ = Table(&b, rows)
	return b.String()
}

func progressBar(p float64, width int) string {
	n := int(p * float64(width))
	n = max(0, min(width, n))
	return "[" + strings.Repeat("#", n) + strings.Repeat(".", width-n) + "]"
}
