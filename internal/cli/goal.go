package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/touchsync/touchsync/internal/app/engagement"
)

func init() {
	addProfileFlag(goalCmd)
	goalCmd.Flags().IntVar(&goalSeconds, "seconds", 0, "Touch duration for the quality goal")
	rootCmd.AddCommand(goalCmd)
}

var goalSeconds int

var goalCmd = &cobra.Command{
	Use:       "goal touch|response|quality",
	Short:     "Record progress toward today's goals",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"touch", "response", "quality"},
	RunE:      runGoal,
}

func runGoal(cmd *cobra.Command, args []string) error {
	d, err := localDaemon(cmd)
	if err != nil {
		return err
	}
	defer d.Close()

	ctx := cmd.Context()
	var upd engagement.GoalUpdate
	switch args[0] {
	case "touch":
		upd, err = d.Manager.RecordTouchSent(ctx, profileFlag)
	case "response":
		upd, err = d.Manager.RecordResponse(ctx, profileFlag)
	case "quality":
		upd, err = d.Manager.RecordQualityTouch(ctx, profileFlag, goalSeconds)
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%.0f%% connected %s (+%d XP)\n",
		upd.Goals.ConnectionPercentage, upd.Goals.ConnectionMessage, upd.XPAwarded)
	if upd.PerfectDay && upd.Streak != nil {
		fmt.Fprintf(out, "Perfect day! Streak now %d.\n", upd.Streak.Streak.CurrentStreak)
	}
	return nil
}
