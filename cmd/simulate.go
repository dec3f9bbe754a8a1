package cmd

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/abhisek/adaptest/internal/adaptive"
	"github.com/abhisek/adaptest/internal/irt"
	"github.com/abhisek/adaptest/internal/metrics"
	"github.com/abhisek/adaptest/internal/selection"
	"github.com/abhisek/adaptest/internal/session"
	"github.com/abhisek/adaptest/internal/train"
	"github.com/abhisek/adaptest/internal/ui/components"
	"github.com/abhisek/adaptest/internal/ui/theme"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a simulated adaptive test on the testing split",
	Long: "Load the item blocks of a checkpoint, then select items round by round for every testing " +
		"student, refitting abilities and reporting accuracy, AUC and concept coverage after each round.",
	RunE: runSimulate,
}

func init() {
	simulateCmd.Flags().String("data", "", "Path to the dataset JSON file")
	simulateCmd.Flags().String("name", "bank", "Checkpoint name")
	simulateCmd.Flags().String("strategy", "", "Selection strategy: random, mfi, kli or maat")
	simulateCmd.Flags().Int("length", 0, "Override test.length")
	simulateCmd.Flags().Int("update-every", 0, "Override test.update_every (0 disables updates)")
	simulateCmd.Flags().String("metrics-out", "", "Write Prometheus metrics to this textfile")
}

func runSimulate(cmd *cobra.Command, args []string) error {
	dataPath, _ := cmd.Flags().GetString("data")
	name, _ := cmd.Flags().GetString("name")
	metricsOut, _ := cmd.Flags().GetString("metrics-out")

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("strategy") {
		cfg.Test.Strategy, _ = cmd.Flags().GetString("strategy")
	}
	if cmd.Flags().Changed("length") {
		cfg.Test.Length, _ = cmd.Flags().GetInt("length")
	}
	if cmd.Flags().Changed("update-every") {
		cfg.Test.UpdateEvery, _ = cmd.Flags().GetInt("update-every")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	ds, _, testSet, err := loadSplit(dataPath, cfg)
	if err != nil {
		return err
	}

	s, err := openStore(cmd, cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := cmd.Context()
	params, ckpt, err := s.ParamRepo().Load(ctx, name)
	if err != nil {
		return fmt.Errorf("load checkpoint %q: %w", name, err)
	}
	// Testing students start from fresh abilities; only the item bank carries over.
	delete(params, irt.BlockAbility)

	m, err := irt.New(ds.NumStudents, ds.NumItems, ckpt.Dim, rand.NewPCG(cfg.Model.Seed, initStream))
	if err != nil {
		return fmt.Errorf("init model: %w", err)
	}
	if err := m.LoadParams(params); err != nil {
		return fmt.Errorf("checkpoint %q does not fit the dataset: %w", name, err)
	}

	strategy, err := selection.NewStrategy(cfg.Test.Strategy, selection.Options{
		Workers:  cfg.Test.Workers,
		Seed:     cfg.Test.Seed,
		Train:    cfg.Update.Config,
		Concepts: ds.Concepts,
		TopK:     cfg.Test.TopK,
	})
	if err != nil {
		return err
	}

	reg := metrics.New()
	runner := &adaptive.Runner{
		Model:    m,
		Trainer:  train.New(cfg.Update.Config, train.WithLogger(log), train.WithMetrics(reg)),
		Strategy: strategy,
		Session:  session.New(testSet.Data()),
		Concepts: ds.Concepts,
		Log:      log,
		Metrics:  reg,
	}
	res, err := runner.Run(ctx, adaptive.Config{
		Length:      cfg.Test.Length,
		UpdateEvery: cfg.Test.UpdateEvery,
		Mode:        cfg.TestedMode(),
	})
	if err != nil {
		return fmt.Errorf("simulate: %w", err)
	}

	if metricsOut != "" {
		if err := reg.WriteTextfile(metricsOut); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}

	fmt.Fprintln(cmd.OutOrStdout(), renderResult(res))
	return nil
}

func renderResult(res *adaptive.Result) string {
	tbl := components.NewTable("round", "selected", "acc", "auc", "cov", "elapsed")
	for _, rd := range res.Rounds {
		tbl.Add(
			strconv.Itoa(rd.Round),
			strconv.Itoa(rd.Selected),
			components.FormatMetric(rd.Report.Accuracy),
			components.FormatMetric(rd.Report.AUC),
			components.FormatMetric(rd.Report.Coverage),
			rd.Elapsed.Round(time.Millisecond).String(),
		)
	}
	final := res.Final()
	header := theme.Title.Render("Simulation "+res.ID) + "\n" +
		theme.Subtitle.Render(fmt.Sprintf("strategy %s, %d rounds", res.Strategy, len(res.Rounds)))
	return header + "\n\n" + tbl.View() + "\n\n" +
		components.NewMetricBar("accuracy", final.Accuracy, 40).View() + "\n" +
		components.NewMetricBar("auc", final.AUC, 40).View() + "\n" +
		components.NewMetricBar("coverage", final.Coverage, 40).View()
}
