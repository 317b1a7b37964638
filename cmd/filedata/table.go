package main

import (
	"fmt"
	"io"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"filedata/internal/pipeline"
	"filedata/pkg/registry"
)

func newHandlersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "handlers",
		Short: "List registered handlers and their calling conventions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := renderHandlers(cmd.OutOrStdout()); err != nil {
				return fail(exitFailed, "输出失败: %w", err)
			}
			return nil
		},
	}
}

func renderHandlers(w io.Writer) error {
	table := tablewriter.NewTable(w,
		tablewriter.WithHeader([]string{"Handler", "Kind", "Summary"}),
	)
	for _, h := range registry.Handlers() {
		if err := table.Append(h.Name, h.Kind, h.Summary); err != nil {
			return err
		}
	}
	return table.Render()
}

// renderSummary 输出一次运行的计数汇总。
func renderSummary(w io.Writer, handler string, res pipeline.Result) error {
	table := tablewriter.NewTable(w,
		tablewriter.WithHeader([]string{"Handler", "Files", "Forwarded", "Skipped", "Rejected", "Failed", "Duplicates", "Written", "Elapsed"}),
	)
	s := res.Stats
	if err := table.Append(
		handler,
		fmt.Sprint(res.Files),
		fmt.Sprint(s.Forwarded),
		fmt.Sprint(s.Skipped),
		fmt.Sprint(s.Rejected),
		fmt.Sprint(s.Failed),
		fmt.Sprint(s.Duplicates),
		fmt.Sprint(res.Written),
		res.Elapsed.Round(time.Millisecond).String(),
	); err != nil {
		return err
	}
	return table.Render()
}
