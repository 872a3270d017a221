package progress

import (
	"fmt"
	"strings"
	"time"

	"github.com/jrsteele09/go-credential-pool/batch"
)

const (
	barLength = 20
	barFilled = "█"
	barEmpty  = "—"
)

// Bar renders "[████————] current/total"
func Bar(current, total, length int) string {
	if length <= 0 {
		length = barLength
	}
	filled := 0
	if total > 0 {
		filled = min(length*max(current, 0)/total, length)
	}
	return fmt.Sprintf("[%s%s] %d/%d", strings.Repeat(barFilled, filled), strings.Repeat(barEmpty, length-filled), current, total)
}

// Elapsed renders a duration as "Xm Ys", truncated to whole seconds
func Elapsed(d time.Duration) string {
	secs := int(max(d, 0) / time.Second)
	return fmt.Sprintf("%dm %ds", secs/60, secs%60)
}

// SnapshotBar picks the counter the bar tracks: processed records for a
// refresh, successful additions for an enrollment.
func SnapshotBar(s batch.Snapshot) string {
	if s.Kind == batch.KindEnroll {
		return Bar(s.Succeeded, s.Total, barLength)
	}
	return Bar(s.Processed, s.Total, barLength)
}

// RefreshSummary is the one-line completion message of a refresh run
func RefreshSummary(r batch.RefreshReport) string {
	if r.Empty {
		return "No users to refresh: the database is empty."
	}
	return fmt.Sprintf("Token refresh complete: refreshed %d of %d users in %s, %d failed.",
		r.Succeeded, r.Total, Elapsed(r.Elapsed), r.Failed)
}

// EnrollmentSummary is the completion message of an enrollment run, followed
// by the most recent additions one per line.
func EnrollmentSummary(r batch.EnrollmentReport) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Pull complete: added %d of %d users to %s with %d failures after %d tries in %s.",
		r.Added, r.Target, r.GroupID, r.Failed, r.Tries, Elapsed(r.Elapsed))
	if len(r.RecentSuccesses) > 0 {
		sb.WriteString("\nLast added users:")
		for _, item := range r.RecentSuccesses {
			sb.WriteString("\n  ")
			sb.WriteString(item)
		}
	}
	return sb.String()
}
