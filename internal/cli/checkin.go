package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	addProfileFlag(checkinCmd)
	checkinCmd.Flags().BoolVar(&checkinMissed, "missed", false, "Record a day without all goals complete")
	rootCmd.AddCommand(checkinCmd)
}

var checkinMissed bool

var checkinCmd = &cobra.Command{
	Use:   "checkin",
	Short: "Run the daily streak check for a profile",
	RunE:  runCheckin,
}

func runCheckin(cmd *cobra.Command, args []string) error {
	d, err := localDaemon(cmd)
	if err != nil {
		return err
	}
	defer d.Close()

	res, err := d.Manager.CheckDailyStreak(cmd.Context(), profileFlag, !checkinMissed)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Streak %s: %d days (%d freeze tokens)\n",
		res.Outcome, res.Streak.CurrentStreak, res.Streak.FreezeTokens)
	for _, m := range res.Milestones {
		fmt.Fprintf(out, "%s %s unlocked: %s\n", m.Milestone.Icon, m.Milestone.Badge, m.Milestone.Reward)
	}
	return nil
}
