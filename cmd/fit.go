package cmd

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/spf13/cobra"

	"github.com/abhisek/adaptest/internal/eval"
	"github.com/abhisek/adaptest/internal/irt"
	"github.com/abhisek/adaptest/internal/metrics"
	"github.com/abhisek/adaptest/internal/session"
	"github.com/abhisek/adaptest/internal/train"
	"github.com/abhisek/adaptest/internal/ui/components"
)

var fitCmd = &cobra.Command{
	Use:   "fit",
	Short: "Calibrate an item bank on the calibration split",
	Long:  "Batch-fit every parameter block on the calibration students and save the result as a named checkpoint.",
	RunE:  runFit,
}

func init() {
	fitCmd.Flags().String("data", "", "Path to the dataset JSON file")
	fitCmd.Flags().String("name", "bank", "Checkpoint name")
	fitCmd.Flags().Int("epochs", 0, "Override train.num_epochs")
	fitCmd.Flags().String("metrics-out", "", "Write Prometheus metrics to this textfile")
}

func runFit(cmd *cobra.Command, args []string) error {
	dataPath, _ := cmd.Flags().GetString("data")
	name, _ := cmd.Flags().GetString("name")
	metricsOut, _ := cmd.Flags().GetString("metrics-out")

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("epochs") {
		cfg.Train.NumEpochs, _ = cmd.Flags().GetInt("epochs")
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	ds, calib, _, err := loadSplit(dataPath, cfg)
	if err != nil {
		return err
	}
	m, err := irt.New(ds.NumStudents, ds.NumItems, cfg.Model.Dim, rand.NewPCG(cfg.Model.Seed, initStream))
	if err != nil {
		return fmt.Errorf("init model: %w", err)
	}

	ctx := cmd.Context()
	reg := metrics.New()
	tr := train.New(cfg.Train, train.WithLogger(log), train.WithMetrics(reg))
	stats, err := tr.Fit(ctx, m, calib.Responses)
	if err != nil {
		return fmt.Errorf("fit: %w", err)
	}

	report, err := eval.Evaluate(m, session.New(calib.Data()), nil)
	if err != nil && !errors.Is(err, eval.ErrDegenerateAUC) {
		return fmt.Errorf("evaluate: %w", err)
	}
	reg.Eval(report.Accuracy, report.AUC, report.Coverage)

	s, err := openStore(cmd, cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	ckpt, err := s.ParamRepo().Save(ctx, name, m.Params(), irt.Blocks...)
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	log.Info("checkpoint saved", "name", name, "id", ckpt.ID, "seq", ckpt.Seq)

	if metricsOut != "" {
		if err := reg.WriteTextfile(metricsOut); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}

	fmt.Fprintln(cmd.OutOrStdout(), renderFit(name, ckpt.ID, len(calib.Responses), stats, report))
	return nil
}

func renderFit(name, id string, responses int, stats train.Stats, report eval.Report) string {
	return components.Card("Calibrated "+name,
		fmt.Sprintf("checkpoint  %s", id),
		fmt.Sprintf("responses   %d", responses),
		fmt.Sprintf("epochs      %d (%d steps)", stats.Epochs, stats.Steps),
		fmt.Sprintf("loss        %.4f", stats.Loss),
		"",
		components.NewMetricBar("accuracy", report.Accuracy, 40).View(),
		components.NewMetricBar("auc", report.AUC, 40).View(),
	)
}
