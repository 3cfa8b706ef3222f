package runweave

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/runweave/runweave/discovery"
	"github.com/runweave/runweave/runstore"
	"github.com/runweave/runweave/types"
)

// PrintOutcome renders the outcome of one run to stdout.
func PrintOutcome(outcome *RunOutcome) {
	if outcome.Case != nil {
		printCaseTable(outcome.Case)
		return
	}
	if outcome.Group != nil {
		printGroupTable(outcome.Group)
	}
}

func printCaseTable(record *types.ResultRecord) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle(fmt.Sprintf("Run %s (%s)", record.RunID, formatDuration(record.End.Sub(record.Start))))
	t.AppendHeader(table.Row{"Test", "Status", "Exit Code", "Duration", "Report", "Error"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Test", WidthMax: 50, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Exit Code", Align: text.AlignRight},
		{Name: "Duration", Align: text.AlignRight},
		{Name: "Error", WidthMax: 80, WidthMaxEnforcer: text.WrapSoft},
	})
	t.AppendRow(table.Row{
		record.TestID.String(),
		statusLabel(record.Status),
		record.ExitCode,
		formatDuration(record.End.Sub(record.Start)),
		yesNo(record.ReportFound),
		errorMessage(record.Error),
	})
	t.SetStyle(styleForStatus(record.Status))
	t.Render()
}

func printGroupTable(group *types.GroupResult) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle(fmt.Sprintf("%s %s (%s)", kindLabel(group.Kind), group.GroupID, formatDuration(group.Duration())))
	t.AppendHeader(table.Row{"Type", "ID", "Node", "Status", "Attempts", "Runs"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Type", AutoMerge: true},
		{Name: "ID", WidthMax: 50, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Attempts", Align: text.AlignRight},
		{Name: "Runs", WidthMax: 60, WidthMaxEnforcer: text.WrapSoft},
	})

	appendGroupRows(t, group)

	t.AppendFooter(table.Row{
		"TOTAL", "", "",
		fmt.Sprintf("%d passed / %d failed / %d errored / %d skipped",
			group.Stats.Passed, group.Stats.Failed,
			group.Stats.Errored+group.Stats.Timeout+group.Stats.Aborted,
			group.Stats.Skipped),
		"", group.Stats.Total,
	})
	t.SetStyle(styleForStatus(group.Status))
	t.Render()
}

func appendGroupRows(t table.Writer, group *types.GroupResult) {
	for i := range group.Children {
		child := &group.Children[i]
		t.AppendRow(table.Row{
			kindLabel(child.Kind), child.GroupID.String(), "-",
			statusLabel(child.Status), "-", child.Stats.Total,
		})
		appendGroupRows(t, child)
		t.AppendSeparator()
	}
	for _, node := range group.Nodes {
		t.AppendRow(table.Row{
			"Case", node.CaseID.String(), node.NodeID,
			statusLabel(node.Status), node.Attempts,
			strings.Join(node.RunIDs, ", "),
		})
	}
}

// PrintManifestList renders the discovered corpus for the list command.
func PrintManifestList(ix *discovery.Index) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle("Discovered Manifests")
	t.AppendHeader(table.Row{"Kind", "ID", "Name", "Detail"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Kind", AutoMerge: true},
		{Name: "ID", WidthMax: 50, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Detail", WidthMax: 70, WidthMaxEnforcer: text.WrapSoft},
	})
	for _, c := range ix.Cases {
		detail := c.Category
		if len(c.Tags) > 0 {
			detail += " [" + strings.Join(c.Tags, ", ") + "]"
		}
		t.AppendRow(table.Row{"Case", c.Identity.String(), c.Name, detail})
	}
	t.AppendSeparator()
	for _, s := range ix.Suites {
		t.AppendRow(table.Row{"Suite", s.Identity.String(), s.Name, fmt.Sprintf("%d nodes", len(s.Nodes))})
	}
	t.AppendSeparator()
	for _, p := range ix.Plans {
		t.AppendRow(table.Row{"Plan", p.Identity.String(), p.Name, fmt.Sprintf("%d suites", len(p.Suites))})
	}
	t.SetStyle(table.StyleColoredDark)
	t.Render()
}

// PrintHistory renders run index entries for the history command, newest
// first.
func PrintHistory(entries []runstore.IndexEntry) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle("Run History")
	t.AppendHeader(table.Row{"Run ID", "Test", "Status", "Started", "Duration", "Attempt"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Test", WidthMax: 50, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Duration", Align: text.AlignRight},
		{Name: "Attempt", Align: text.AlignRight},
	})
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		t.AppendRow(table.Row{
			e.RunID,
			e.TestID,
			statusLabel(e.Status),
			e.Start.Format(time.RFC3339),
			formatDuration(e.End.Sub(e.Start)),
			e.Attempt,
		})
	}
	t.SetStyle(table.StyleColoredDark)
	t.Render()
}

func styleForStatus(status types.RunStatus) table.Style {
	switch status {
	case types.StatusPassed:
		return table.StyleColoredBlackOnGreenWhite
	case types.StatusSkipped:
		return table.StyleColoredBlackOnYellowWhite
	default:
		return table.StyleColoredBlackOnRedWhite
	}
}

func statusLabel(status types.RunStatus) string {
	return strings.ToUpper(string(status))
}

func kindLabel(kind types.ManifestKind) string {
	switch kind {
	case types.KindTestSuite:
		return "Suite"
	case types.KindTestPlan:
		return "Plan"
	default:
		return "Case"
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func errorMessage(err *types.RunError) string {
	if err == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", err.Type, err.Message)
}

// formatDuration renders durations compactly, seconds precision being
// plenty for wall-clock test runs.
func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return d.Round(10 * time.Millisecond).String()
}
