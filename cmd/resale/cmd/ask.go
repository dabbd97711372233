package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/BerylCAtieno/hdb-resale-agent/internal/app"
	"github.com/BerylCAtieno/hdb-resale-agent/internal/models"
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a question about buying an HDB resale flat",
	Long: `Ask answers from the official HDB website. Supplying your age, monthly
household income or marital status tailors the answer to your situation.`,
	Example: `  resale ask "What grants am I eligible for?" --age 30 --income 7000 --marital Married`,
	Args:    cobra.MinimumNArgs(1),
	RunE:    runAsk,
}

var (
	askAge     int
	askIncome  int
	askMarital string
)

func init() {
	rootCmd.AddCommand(askCmd)
	askCmd.Flags().IntVar(&askAge, "age", 0, "your age (18-120)")
	askCmd.Flags().IntVar(&askIncome, "income", 0, "monthly household income in SGD (0-100000)")
	askCmd.Flags().StringVar(&askMarital, "marital", "", "marital status (Single or Married)")
}

func runAsk(cmd *cobra.Command, args []string) error {
	var age, income *int
	if cmd.Flags().Changed("age") {
		age = &askAge
	}
	if cmd.Flags().Changed("income") {
		income = &askIncome
	}
	profile, err := models.NewProfile(age, income, askMarital)
	if err != nil {
		return userError(err, "question")
	}

	a, err := app.New(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.Advisor.Ask(cmd.Context(), nil, strings.Join(args, " "), profile)
	if err != nil {
		return userError(err, "question")
	}
	if asJSON {
		return outputJSON(cmd.OutOrStdout(), res)
	}

	final, _ := res.Output(models.StageWrite)
	printMarkdown(cmd.OutOrStdout(), final.Text)
	printSources(cmd.OutOrStdout(), final.Sources)
	return nil
}
