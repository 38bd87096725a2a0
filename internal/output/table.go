package output

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/quotaflow/quotaflow/internal/core"
	"github.com/quotaflow/quotaflow/internal/core/store"
)

// FormatState renders a scheduler runtime state as a table.
func FormatState(state core.RuntimeState) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Field", "Value"})
	t.AppendRow(table.Row{"Mode", string(state.Mode)})
	t.AppendRow(table.Row{"Queue length", state.QueueLength})
	t.AppendRow(table.Row{"In flight", state.InFlight})
	t.AppendRow(table.Row{"Completed", state.Completed})

	if state.RateLimit != nil {
		t.AppendRow(table.Row{"Rate limit", fmt.Sprintf("%d/%d remaining (%s)",
			state.RateLimit.Remaining, state.RateLimit.Limit, state.RateLimit.Endpoint)})
		t.AppendRow(table.Row{"Window resets", state.RateLimit.Reset.UTC().Format(time.RFC3339)})
	} else {
		t.AppendRow(table.Row{"Rate limit", "no live observation"})
	}

	if state.CooldownUntil != nil {
		t.AppendRow(table.Row{"Cooldown until", state.CooldownUntil.UTC().Format(time.RFC3339)})
	}
	if state.LastError != "" {
		t.AppendRow(table.Row{"Last error", state.LastError})
	}

	return t.Render()
}

// FormatMetrics renders scheduler counters as a table.
func FormatMetrics(metrics core.Metrics) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Counter", "Value"})
	t.AppendRow(table.Row{"Submitted", metrics.Submitted})
	t.AppendRow(table.Row{"Succeeded", metrics.Succeeded})
	t.AppendRow(table.Row{"Failed", metrics.Failed})
	t.AppendRow(table.Row{"Retried", metrics.Retried})
	t.AppendRow(table.Row{"Cooldowns", metrics.Cooldowns})
	t.AppendRow(table.Row{"Avg exec (ms)", fmt.Sprintf("%.1f", metrics.AvgExecMillis)})
	return t.Render()
}

// FormatSnapshots renders stored rate-limit snapshots as a table.
func FormatSnapshots(entries []store.Entry) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Endpoint", "Limit", "Remaining", "Resets", "Observed"})

	for _, entry := range entries {
		t.AppendRow(table.Row{
			entry.Endpoint,
			entry.Snapshot.Limit,
			entry.Snapshot.Remaining,
			entry.Snapshot.Reset.UTC().Format(time.RFC3339),
			entry.Snapshot.ObservedAt.UTC().Format(time.RFC3339),
		})
	}

	if len(entries) == 0 {
		t.AppendRow(table.Row{"(no stored snapshots)", "", "", "", ""})
	}
	return t.Render()
}
