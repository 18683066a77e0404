package report

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/specialistvlad/conveyorgo/internal/model"
)

// WriteText renders the human-readable run summary: a header, one table row
// per job, and the artifact listing. Output is stable for a given report, so
// it is safe to assert on in tests.
func (r *Run) WriteText(w io.Writer) error {
	var b strings.Builder

	fmt.Fprintf(&b, "Workflow: %s (run %s)\n", r.Workflow, r.RunID)
	fmt.Fprintf(&b, "Event: %s  Branch: %s\n", r.Event, r.Branch)
	if r.Finished.IsZero() || r.Started.IsZero() {
		fmt.Fprintf(&b, "Outcome: %s\n\n", r.Outcome)
	} else {
		fmt.Fprintf(&b, "Outcome: %s (took %s)\n\n", r.Outcome, r.Finished.Sub(r.Started).Round(time.Millisecond))
	}

	tw := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "JOB\tSTATUS\tDURATION\tDETAIL")
	for i := range r.Jobs {
		j := &r.Jobs[i]
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", j.ID, j.Status, jobDuration(j), jobDetail(j))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(r.Artifacts) > 0 {
		fmt.Fprintf(&b, "\nArtifacts:\n")
		for _, a := range r.Artifacts {
			fmt.Fprintf(&b, "  %s (produced by %s)\n", a.Ref, a.Producer)
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func jobDuration(j *Job) string {
	if j.Started.IsZero() || j.Finished.IsZero() {
		return "-"
	}
	return j.Finished.Sub(j.Started).Round(time.Millisecond).String()
}

// jobDetail picks the one line worth showing per job: the skip reason, the
// failure cause, or the tolerated-failure count.
func jobDetail(j *Job) string {
	if j.SkipReason != "" {
		return j.SkipReason
	}
	if j.Error != "" {
		return j.Error
	}
	if j.Tolerated {
		n := 0
		for i := range j.Steps {
			if j.Steps[i].Tolerated {
				n++
			}
		}
		if n == 1 {
			return "1 tolerated failure"
		}
		return fmt.Sprintf("%d tolerated failures", n)
	}
	return ""
}

// LogSummary returns the key/value pairs for the end-of-run log line.
func (r *Run) LogSummary() []any {
	counts := map[string]int{}
	for i := range r.Jobs {
		counts[r.Jobs[i].Status]++
	}
	return []any{
		"outcome", r.Outcome,
		"jobs", len(r.Jobs),
		"succeeded", counts[model.JobSuccess.String()],
		"failed", counts[model.JobFailure.String()],
		"skipped", counts[model.JobSkipped.String()],
		"cancelled", counts[model.JobCancelled.String()],
	}
}
