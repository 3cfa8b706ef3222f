// Package reporting renders group results into durable summary files
// alongside the run folders, so a suite or plan execution leaves a
// human-readable record next to the per-case evidence.
package reporting

import (
	"fmt"
	"strings"
	"time"

	"github.com/runweave/runweave/types"
)

// TreeFormatter renders a group result as an indented tree.
type TreeFormatter struct {
	includeStats bool
	includeRuns  bool
}

// NewTreeFormatter creates a formatter. Stats add a per-group counts
// line; runs append the run folder ids to each case line.
func NewTreeFormatter(includeStats, includeRuns bool) *TreeFormatter {
	return &TreeFormatter{includeStats: includeStats, includeRuns: includeRuns}
}

// Format renders the group and all its descendants.
func (f *TreeFormatter) Format(group *types.GroupResult) string {
	var b strings.Builder
	f.writeGroup(&b, group, 0)
	return b.String()
}

func (f *TreeFormatter) writeGroup(b *strings.Builder, group *types.GroupResult, depth int) {
	indent := strings.Repeat("  ", depth)
	fmt.Fprintf(b, "%s%s %s - %s (%s)\n",
		indent, kindName(group.Kind), group.GroupID.String(),
		strings.ToUpper(string(group.Status)), group.Duration().Round(10*time.Millisecond))
	if f.includeStats {
		fmt.Fprintf(b, "%s  %d total: %d passed, %d failed, %d errored, %d timeout, %d aborted, %d skipped\n",
			indent, group.Stats.Total, group.Stats.Passed, group.Stats.Failed,
			group.Stats.Errored, group.Stats.Timeout, group.Stats.Aborted, group.Stats.Skipped)
	}
	for i := range group.Children {
		f.writeGroup(b, &group.Children[i], depth+1)
	}
	for _, node := range group.Nodes {
		f.writeNode(b, node, depth+1)
	}
}

func (f *TreeFormatter) writeNode(b *strings.Builder, node types.NodeOutcome, depth int) {
	indent := strings.Repeat("  ", depth)
	fmt.Fprintf(b, "%s%s (%s) - %s", indent, node.NodeID, node.CaseID.String(),
		strings.ToUpper(string(node.Status)))
	if node.Attempts > 1 {
		fmt.Fprintf(b, " after %d attempts", node.Attempts)
	}
	if f.includeRuns && len(node.RunIDs) > 0 {
		fmt.Fprintf(b, " [%s]", strings.Join(node.RunIDs, ", "))
	}
	b.WriteByte('\n')
}

func kindName(kind types.ManifestKind) string {
	switch kind {
	case types.KindTestPlan:
		return "Plan"
	case types.KindTestSuite:
		return "Suite"
	default:
		return "Case"
	}
}
