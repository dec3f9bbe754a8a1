package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abhisek/adaptest/internal/store"
	"github.com/abhisek/adaptest/internal/ui/components"
	"github.com/abhisek/adaptest/internal/ui/theme"
)

var checkpointsCmd = &cobra.Command{
	Use:   "checkpoints",
	Short: "List stored parameter checkpoints",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		s, err := openStore(cmd, cfg)
		if err != nil {
			return err
		}
		defer s.Close()

		ckpts, err := s.ParamRepo().List(cmd.Context())
		if err != nil {
			return fmt.Errorf("list checkpoints: %w", err)
		}
		out := cmd.OutOrStdout()
		if len(ckpts) == 0 {
			fmt.Fprintln(out, theme.Hint.Render("No checkpoints found."))
			return nil
		}
		fmt.Fprintln(out, renderCheckpoints(ckpts))
		return nil
	},
}

var checkpointsPruneCmd = &cobra.Command{
	Use:   "prune <name>",
	Short: "Delete all but the newest checkpoints of a name",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		keep, _ := cmd.Flags().GetInt("keep")

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		s, err := openStore(cmd, cfg)
		if err != nil {
			return err
		}
		defer s.Close()

		n, err := s.ParamRepo().Prune(cmd.Context(), args[0], keep)
		if err != nil {
			return fmt.Errorf("prune %q: %w", args[0], err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d checkpoint(s) of %s.\n", n, args[0])
		return nil
	},
}

func init() {
	checkpointsPruneCmd.Flags().Int("keep", 1, "Number of newest checkpoints to keep")
	checkpointsCmd.AddCommand(checkpointsPruneCmd)
}

func renderCheckpoints(ckpts []store.Checkpoint) string {
	tbl := components.NewTable("name", "seq", "id", "blocks", "dim", "students", "items", "format", "created")
	for _, c := range ckpts {
		blocks := make([]string, len(c.Blocks))
		for i, b := range c.Blocks {
			blocks[i] = string(b)
		}
		tbl.Add(
			c.Name,
			strconv.FormatInt(c.Seq, 10),
			shortID(c.ID),
			strings.Join(blocks, ","),
			strconv.Itoa(c.Dim),
			strconv.Itoa(c.Students),
			strconv.Itoa(c.Items),
			c.FormatVersion,
			c.CreatedAt.Local().Format("2006-01-02 15:04:05"),
		)
	}
	return tbl.View()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
