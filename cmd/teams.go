package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/seedwise/kindred/internal/teams"
	"github.com/seedwise/kindred/internal/ui"
)

var (
	teamsVerify bool
	teamsDemo   bool
)

// teamsCmd lists the team map that scopes candidate retrieval.
var teamsCmd = &cobra.Command{
	Use:   "teams",
	Short: "List the team map used to scope retrieval",
	Long: `List the team map used to scope candidate retrieval.

Only verified entries contribute their area path to tracker queries;
unverified entries are listed but ignored at query time. With --verify, each
team name is checked against the tracker's team list.`,
	RunE: runTeams,
}

func init() {
	rootCmd.AddCommand(teamsCmd)
	teamsCmd.Flags().BoolVar(&teamsVerify, "verify", false, "Check team names against the tracker")
	teamsCmd.Flags().BoolVar(&teamsDemo, "demo", false, "Use the seeded demo corpus instead of the tracker")
}

func runTeams(cmd *cobra.Command, args []string) error {
	var m *teams.Map
	if teamsDemo {
		m = demoTeamsMap()
	} else {
		var err error
		m, err = loadTeamsMap()
		if err != nil {
			return err
		}
	}

	entries := m.Entries()
	if len(entries) == 0 {
		if isJSON() {
			return printJSON([]teams.Entry{})
		}
		fmt.Println("No team map configured.")
		fmt.Println(ui.StyleSubtle.Render(fmt.Sprintf("Create %s to scope retrieval by area path; without it, analyses return only the seed.", GetConfig().Project.TeamsFile)))
		return nil
	}

	// Optionally cross-check names against the tracker.
	known := map[string]bool{}
	if teamsVerify {
		client, err := buildTrackerClient(teamsDemo)
		if err != nil {
			return err
		}
		trackerTeams, err := client.GetTeams(cmd.Context())
		if err != nil {
			return fmt.Errorf("list tracker teams: %w", err)
		}
		for _, t := range trackerTeams {
			known[strings.ToLower(t.Name)] = true
		}
	}

	if isJSON() {
		return printJSON(entries)
	}

	table := &ui.Table{
		Headers:  []string{"Team", "Area Path", "Verified"},
		MaxWidth: 40,
	}
	if teamsVerify {
		table.Headers = append(table.Headers, "In Tracker")
	}

	for _, e := range entries {
		verified := "no"
		if e.Verified {
			verified = "yes"
		}
		row := []string{e.Team, e.AreaPath, verified}
		if teamsVerify {
			inTracker := "missing"
			if known[strings.ToLower(e.Team)] {
				inTracker = "ok"
			}
			row = append(row, inTracker)
		}
		table.Rows = append(table.Rows, row)
	}

	fmt.Print(table.Render())

	if unverified := m.Unverified(); len(unverified) > 0 {
		fmt.Println(ui.StyleSubtle.Render(fmt.Sprintf("Unverified (ignored at query time): %s", strings.Join(unverified, ", "))))
	}
	return nil
}
