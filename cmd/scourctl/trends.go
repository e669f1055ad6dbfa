package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

func newTrendsCommand(ctx *commandContext) *cobra.Command {
	trendsCmd := &cobra.Command{
		Use:   "trends",
		Short: "Match incidents to trends and group unmatched incidents",
	}
	trendsCmd.AddCommand(&cobra.Command{
		Use:   "create",
		Short: "Create trends from recent unmatched incidents",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := ctx.ensureApp(cmd, nil)
			if err != nil {
				return err
			}
			created, err := a.Trends.CreateTrendsFromUnmatched(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(created) == 0 {
				fmt.Fprintln(out, "No trends created")
				return nil
			}
			rows := make([][]string, 0, len(created))
			for _, tr := range created {
				rows = append(rows, []string{tr.ID, tr.Title, strings.Join(tr.Countries, ", "), string(tr.Severity), strconv.Itoa(tr.IncidentCount)})
			}
			fmt.Fprintln(out, renderTable([]string{"Trend", "Title", "Countries", "Severity", "Incidents"}, rows, 4))
			return nil
		},
	})
	trendsCmd.AddCommand(&cobra.Command{
		Use:   "process INCIDENT_ID",
		Short: "Attach an incident to a matching open trend",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := ctx.ensureApp(cmd, nil)
			if err != nil {
				return err
			}
			res, err := a.Trends.ProcessIncident(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !res.Matched {
				fmt.Fprintln(cmd.OutOrStdout(), "No matching trend")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Attached to trend %s\n", res.TrendID)
			return nil
		},
	})
	return trendsCmd
}
