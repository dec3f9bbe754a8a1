package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/abhisek/adaptest/internal/dataset"
	"github.com/abhisek/adaptest/internal/ui/components"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show dataset statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		dataPath, _ := cmd.Flags().GetString("data")
		if dataPath == "" {
			return fmt.Errorf("--data is required")
		}
		ds, err := dataset.LoadFile(dataPath)
		if err != nil {
			return fmt.Errorf("load dataset: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), renderStats(dataPath, ds.Stats()))
		return nil
	},
}

func init() {
	statsCmd.Flags().String("data", "", "Path to the dataset JSON file")
}

func renderStats(path string, st dataset.Stats) string {
	return components.Card(path,
		fmt.Sprintf("students   %d", st.Students),
		fmt.Sprintf("items      %d", st.Items),
		fmt.Sprintf("responses  %d", st.Responses),
		fmt.Sprintf("concepts   %d", st.Concepts),
		"",
		components.NewMetricBar("correct", st.PositiveRate, 40).View(),
	)
}
