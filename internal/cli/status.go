package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/touchsync/touchsync/internal/domain"
)

func init() {
	addProfileFlag(statusCmd)
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Print the summary as JSON")
	rootCmd.AddCommand(statusCmd)
}

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show a profile's level, streak and today's goals",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	d, err := localDaemon(cmd)
	if err != nil {
		return err
	}
	defer d.Close()

	s, err := d.Manager.Summary(cmd.Context(), profileFlag)
	if err != nil {
		return err
	}
	if statusJSON {
		return printJSON(cmd.OutOrStdout(), s)
	}
	return printSummary(cmd.OutOrStdout(), s)
}

func printSummary(out io.Writer, s domain.Summary) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "PROFILE\t%s\n", s.ProfileID)
	fmt.Fprintf(w, "LEVEL\t%d %s %s (%d XP, %.0f%% to next)\n",
		s.Level.CurrentLevel, s.Level.Tier.Icon, s.Level.Tier.Name, s.Level.TotalXP, s.Level.Progress*100)
	fmt.Fprintf(w, "STREAK\t%d days (best %d, %d freeze tokens)\n",
		s.Streak.CurrentStreak, s.Streak.LongestStreak, s.Streak.FreezeTokens)
	fmt.Fprintf(w, "\t%s\n", s.Streak.Message)
	if next := s.Streak.NextMilestone; next != nil {
		fmt.Fprintf(w, "NEXT\t%s %s at %d days\n", next.Icon, next.Badge, next.Days)
	}
	g := s.Goals
	fmt.Fprintf(w, "TOUCHES\t%d/%d\n", g.Touches, g.Targets.Touches)
	fmt.Fprintf(w, "RESPONSES\t%d/%d\n", g.Responses, g.Targets.Responses)
	fmt.Fprintf(w, "QUALITY\t%d/%ds\n", g.QualitySeconds, g.Targets.QualitySeconds)
	fmt.Fprintf(w, "CONNECTION\t%.0f%% %s\n", g.ConnectionPercentage, g.ConnectionMessage)
	return w.Flush()
}
