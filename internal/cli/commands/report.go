package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/schemamirror/sfsync/internal/cli/ui"
	"github.com/schemamirror/sfsync/internal/store"
)

// reportFlows is the only stored report
const reportFlows = "flows"

var knownReports = []string{reportFlows}

func runReport(cmd *cobra.Command, opts *rootOptions) error {
	if opts.report != reportFlows {
		return &commandError{
			kind:  kindUnknownReport,
			err:   fmt.Errorf("unknown report %q", opts.report),
			name:  opts.report,
			known: knownReports,
		}
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	env, err := openEnvironment(ctx, cmd.ErrOrStderr(), opts)
	if err != nil {
		return err
	}
	defer env.close()

	return renderFlowReport(ctx, cmd.OutOrStdout(), env.store, opts.noColor)
}

// renderFlowReport prints flow to field associations grouped by flow
func renderFlowReport(ctx context.Context, w io.Writer, st *store.Store, noColor bool) error {
	rows, err := st.ListFlowFieldUsage(ctx)
	if err != nil {
		return databaseError(err)
	}

	if len(rows) == 0 {
		fmt.Fprint(w, ui.Info("No flow field usage data found. Run a sync with SYNC_FLOWS enabled first.", noColor))
		return nil
	}

	table := ui.NewTable(w, []string{"FLOW", "STATUS", "FIELD", "LAST SEEN"}, &ui.TableOptions{
		NoColor:          noColor,
		GroupFirstColumn: true,
	})
	flows := make(map[string]struct{})
	for _, r := range rows {
		flows[r.FlowName] = struct{}{}
		table.AddRow(r.FlowName, r.FlowStatus, r.FieldName, r.LastSeen.UTC().Format("2006-01-02 15:04:05"))
	}
	table.Render()

	fmt.Fprintf(w, "\n%d field references across %d flows\n", len(rows), len(flows))
	return nil
}
