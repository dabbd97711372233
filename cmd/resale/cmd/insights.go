package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/BerylCAtieno/hdb-resale-agent/internal/app"
	"github.com/BerylCAtieno/hdb-resale-agent/internal/chart"
)

var insightsCmd = &cobra.Command{
	Use:     "insights <topic>",
	Short:   "Report on resale prices from the transactions dataset",
	Example: `  resale insights "How have 4 room prices in Queenstown changed since 2020?"`,
	Args:    cobra.MinimumNArgs(1),
	RunE:    runInsights,
}

var chartWidth int

func init() {
	rootCmd.AddCommand(insightsCmd)
	insightsCmd.Flags().IntVar(&chartWidth, "width", 80, "chart width in columns")
}

func runInsights(cmd *cobra.Command, args []string) error {
	a, err := app.New(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.Advisor.Explore(cmd.Context(), nil, strings.Join(args, " "))
	if err != nil {
		return userError(err, "topic/question")
	}
	if asJSON {
		return outputJSON(cmd.OutOrStdout(), res)
	}

	out := cmd.OutOrStdout()
	printMarkdown(out, res.Final())

	text, err := chart.RenderText(res.Chart(), chartWidth)
	if err != nil {
		text = chart.NoChartMessage
	}
	fmt.Fprintln(out, text)
	return nil
}
