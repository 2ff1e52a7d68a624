package cmd

import (
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/seedwise/kindred/internal/policy"
	"github.com/seedwise/kindred/internal/ui"
)

var policiesTest bool

// policiesCmd lists the admission policies and runs their Rego tests.
var policiesCmd = &cobra.Command{
	Use:   "policies",
	Short: "List candidate-admission policies",
	Long: `List the Rego policies that gate candidate admission.

Deny rules drop a candidate before embedding; warn rules only log. Policies
load from the project policies directory (project.policiesDir). With --test,
the *_test.rego rules found alongside them run the way "opa test" runs them.`,
	RunE: runPolicies,
}

func init() {
	rootCmd.AddCommand(policiesCmd)
	policiesCmd.Flags().BoolVar(&policiesTest, "test", false, "Run the Rego tests shipped alongside the policies")
}

func runPolicies(cmd *cobra.Command, args []string) error {
	dir := policiesDir()
	if policiesTest {
		return runPolicyTests(cmd, dir)
	}

	policies, err := policy.NewOsLoader(dir).LoadAll()
	if err != nil {
		return fmt.Errorf("load policies in %s: %w", dir, err)
	}

	if len(policies) == 0 {
		if isJSON() {
			return printJSON([]*policy.PolicyFile{})
		}
		fmt.Println("No admission policies configured.")
		fmt.Println(ui.StyleSubtle.Render(fmt.Sprintf("Drop .rego files under %s to filter candidates before ranking.", dir)))
		return nil
	}

	if isJSON() {
		return printJSON(policies)
	}

	table := &ui.Table{
		Headers:  []string{"Policy", "Path", "Syntax"},
		MaxWidth: 48,
	}
	broken := 0
	for _, p := range policies {
		status := "ok"
		if err := policy.ValidatePolicy(p.Content); err != nil {
			status = "invalid"
			broken++
		}
		table.Rows = append(table.Rows, []string{p.Name, p.Path, status})
	}
	fmt.Print(table.Render())

	if broken > 0 {
		return fmt.Errorf("%d of %d policy file(s) failed to parse", broken, len(policies))
	}
	return nil
}

func runPolicyTests(cmd *cobra.Command, dir string) error {
	runner := policy.NewTestRunner(afero.NewOsFs(), dir)
	hasTests, err := runner.HasTests()
	if err != nil {
		return fmt.Errorf("scan %s: %w", dir, err)
	}
	if !hasTests {
		fmt.Println("No policy tests found.")
		fmt.Println(ui.StyleSubtle.Render("Name them *_test.rego and keep them next to the policies."))
		return nil
	}

	summary, err := runner.Run(cmd.Context())
	if err != nil {
		return fmt.Errorf("run policy tests: %w", err)
	}

	if isJSON() {
		return printJSON(summary)
	}

	for _, r := range summary.Results {
		switch {
		case r.Passed:
			fmt.Printf("✅ %s\n", r.Name)
		case r.Skipped:
			fmt.Printf("⚠️  %s (skipped)\n", r.Name)
		case r.Error != "":
			fmt.Printf("❌ %s: %s\n", r.Name, r.Error)
		default:
			fmt.Printf("❌ %s\n", r.Name)
		}
		for _, line := range r.Output {
			fmt.Printf("   └─ %s\n", ui.StyleSubtle.Render(line))
		}
	}
	fmt.Print(summary.FormatSummary())

	if !summary.AllPassed() {
		return fmt.Errorf("policy tests failed")
	}
	return nil
}
