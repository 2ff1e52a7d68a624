package cmd

import (
	"fmt"
	"time"

	"github.com/seedwise/kindred/internal/teams"
	"github.com/seedwise/kindred/internal/tracker"
	"github.com/seedwise/kindred/internal/workitem"
)

// demoTrackerClient seeds an in-memory tracker with a small corpus so the
// pipeline can be exercised without credentials. Ids are stable, so demo
// output is reproducible.
func demoTrackerClient() *tracker.MemoryClient {
	now := time.Now()
	age := func(days int) time.Time { return now.AddDate(0, 0, -days) }

	items := []workitem.WorkItem{
		{
			ID: 101, Title: "Payment gateway timeout on checkout",
			Description:  "Checkout requests to the payment gateway intermittently exceed 30s and the order is dropped.",
			WorkItemType: "Bug", State: "Active", Priority: 1,
			AreaPath: `Demo\Payments`, Tags: "checkout; gateway",
			ReproSteps:  "Add an item to the cart, pay with a stored card, observe the spinner until the timeout.",
			CreatedDate: age(12), ChangedDate: age(2),
		},
		{
			ID: 102, Title: "Checkout payment fails with gateway timeout",
			Description:  "Same symptom as the October incident: the gateway closes the connection before responding.",
			WorkItemType: "Bug", State: "New", Priority: 2,
			AreaPath: `Demo\Payments`, Tags: "checkout",
			CreatedDate: age(5), ChangedDate: age(1),
		},
		{
			ID: 103, Title: "Retry policy for payment gateway calls",
			Description:  "Introduce exponential backoff with jitter for all outbound gateway calls so transient timeouts stop dropping orders.",
			WorkItemType: "User Story", State: "Active", Priority: 2,
			AreaPath: `Demo\Payments`, Tags: "resilience",
			AcceptanceCriteria: "Gateway calls retry up to 3 times; orders survive a single timeout.",
			CreatedDate:        age(30), ChangedDate: age(7),
		},
		{
			ID: 104, Title: "Refund ledger drifts after partial refunds",
			Description:  "Partial refunds post twice to the ledger when the gateway retries internally.",
			WorkItemType: "Bug", State: "Resolved", Priority: 2,
			AreaPath: `Demo\Payments`, Tags: "refunds; ledger",
			CreatedDate: age(60), ChangedDate: age(20),
		},
		{
			ID: 105, Title: "Login fails after password reset",
			Description:  "Users who reset their password cannot sign in until the session cache expires.",
			WorkItemType: "Bug", State: "Active", Priority: 1,
			AreaPath: `Demo\Identity`, Tags: "login; cache",
			ReproSteps:  "Reset password from the profile page, sign out, attempt to sign in with the new password.",
			CreatedDate: age(8), ChangedDate: age(3),
		},
		{
			ID: 106, Title: "Password reset emails delayed by queue backlog",
			Description:  "The notification queue backs up during business hours and reset emails arrive 20 minutes late.",
			WorkItemType: "Bug", State: "New", Priority: 3,
			AreaPath: `Demo\Identity`, Tags: "email",
			CreatedDate: age(15), ChangedDate: age(4),
		},
		{
			ID: 107, Title: "Single sign-on for enterprise tenants",
			Description:  "Support SAML-based single sign-on so enterprise tenants can bring their identity provider.",
			WorkItemType: "Feature", State: "Active", Priority: 2,
			AreaPath: `Demo\Identity`, Tags: "sso; enterprise",
			BusinessValue: "Unblocks three enterprise deals.",
			CreatedDate:   age(90), ChangedDate: age(10),
		},
		{
			ID: 108, Title: "Session tokens not invalidated on logout",
			Description:  "Logging out leaves the refresh token valid; a captured token keeps working for hours.",
			WorkItemType: "Bug", State: "Active", Priority: 1,
			AreaPath: `Demo\Identity`, Tags: "security; session",
			CreatedDate: age(6), ChangedDate: age(1),
		},
		{
			ID: 109, Title: "CSV export truncates unicode characters",
			Description:  "Exported reports replace non-latin characters with question marks because the writer forces latin-1.",
			WorkItemType: "Bug", State: "Active", Priority: 2,
			AreaPath: `Demo\Reporting`, Tags: "export; encoding",
			CreatedDate: age(25), ChangedDate: age(9),
		},
		{
			ID: 110, Title: "Scheduled report export to S3",
			Description:  "Let customers schedule nightly report exports delivered to their own S3 bucket.",
			WorkItemType: "Feature", State: "New", Priority: 3,
			AreaPath: `Demo\Reporting`, Tags: "export; scheduling",
			CreatedDate: age(45), ChangedDate: age(14),
		},
		{
			ID: 111, Title: "Export job hangs on reports over 1M rows",
			Description:  "The export worker loads the whole result set into memory and stalls on very large reports.",
			WorkItemType: "Bug", State: "New", Priority: 2,
			AreaPath: `Demo\Reporting`, Tags: "export; performance",
			CreatedDate: age(18), ChangedDate: age(6),
		},
		{
			ID: 112, Title: "Dashboard loads slowly for orgs with many projects",
			Description:  "Organizations with hundreds of projects see 10s dashboard loads; the project list query misses an index.",
			WorkItemType: "Bug", State: "Active", Priority: 2,
			AreaPath: `Demo\Reporting`, Tags: "performance",
			CreatedDate: age(40), ChangedDate: age(12),
		},
		{
			ID: 113, Title: "Upgrade payment gateway SDK to v4",
			Description:  "The v2 SDK is end of life; v4 changes the timeout and webhook signature APIs.",
			WorkItemType: "Task", State: "New", Priority: 3,
			AreaPath: `Demo\Payments`, Tags: "maintenance",
			CreatedDate: age(50), ChangedDate: age(16),
		},
		{
			ID: 114, Title: "Audit log for refund approvals",
			Description:  "Record who approved each refund and when, exportable for compliance reviews.",
			WorkItemType: "User Story", State: "New", Priority: 3,
			AreaPath: `Demo\Payments`, Tags: "compliance; refunds",
			CreatedDate: age(70), ChangedDate: age(21),
		},
	}

	return tracker.NewMemoryClient(items, []tracker.Team{
		{ID: "demo-payments", Name: "Payments"},
		{ID: "demo-identity", Name: "Identity"},
		{ID: "demo-reporting", Name: "Reporting"},
	})
}

// demoTeamsMap mirrors the demo corpus areas so team scoping works offline.
func demoTeamsMap() *teams.Map {
	return teams.New([]teams.Entry{
		{Team: "Payments", AreaPath: `Demo\Payments`, Verified: true},
		{Team: "Identity", AreaPath: `Demo\Identity`, Verified: true},
		{Team: "Reporting", AreaPath: `Demo\Reporting`, Verified: true},
	})
}

// demoSeedHint names a few good starting points for the demo corpus.
func demoSeedHint() string {
	return fmt.Sprintf("Try a seed id between %d and %d, e.g. 'kindred related 101 --demo'.", 101, 114)
}
