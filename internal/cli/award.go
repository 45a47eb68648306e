package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/touchsync/touchsync/internal/domain"
)

func init() {
	addProfileFlag(awardCmd)
	awardCmd.Flags().StringVar(&awardAction, "action", "", "XP action ("+actionNames()+")")
	awardCmd.Flags().Int64Var(&awardAmount, "amount", 0, "XP amount (defaults to the action's value)")
	_ = awardCmd.MarkFlagRequired("action")
	rootCmd.AddCommand(awardCmd)
}

var (
	awardAction string
	awardAmount int64
)

var awardCmd = &cobra.Command{
	Use:   "award",
	Short: "Grant XP to a profile",
	RunE:  runAward,
}

func runAward(cmd *cobra.Command, args []string) error {
	action, err := domain.ParseXPAction(awardAction)
	if err != nil {
		return fmt.Errorf("%w %q (want one of %s)", err, awardAction, actionNames())
	}

	d, err := localDaemon(cmd)
	if err != nil {
		return err
	}
	defer d.Close()

	res, err := d.Manager.AwardXP(cmd.Context(), profileFlag, action, awardAmount)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "+%d XP (%s). Total %d, level %d.\n",
		res.XPAwarded, action.Description(), res.Level.TotalXP, res.Level.CurrentLevel)
	if up := res.LevelUp; up != nil {
		info := res.Level.Tier
		fmt.Fprintf(out, "Level up! Now level %d %s %s\n", up.NewLevel, info.Icon, info.Name)
	}
	return nil
}

func actionNames() string {
	names := make([]string, 0, len(domain.XPActions))
	for _, a := range domain.XPActions {
		names = append(names, string(a))
	}
	return strings.Join(names, ", ")
}
