package ui

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTable_ColumnWidths(t *testing.T) {
	table := &Table{
		Headers: []string{"Team", "Area Path", "Verified"},
		Rows: [][]string{
			{"Payments", `Platform\Payments`, "yes"},
			{"Identity", `Platform\Identity\Auth`, "no"},
		},
	}

	widths := table.ColumnWidths()

	assert.Equal(t, 8, widths[0], `"Payments" and "Identity" tie at 8`)
	assert.Equal(t, 22, widths[1], `longest is Platform\Identity\Auth`)
	assert.Equal(t, 8, widths[2], `header "Verified" is wider than any cell`)
}

func TestTable_ColumnWidths_MaxWidth(t *testing.T) {
	table := &Table{
		Headers:  []string{"Team", "Area Path"},
		Rows:     [][]string{{"Core", `Org\Division\Group\Team\Subteam\Component`}},
		MaxWidth: 20,
	}

	widths := table.ColumnWidths()

	assert.Equal(t, 4, widths[0])
	assert.Equal(t, 20, widths[1], "cap should clamp the wide column")
}

func TestTable_Render(t *testing.T) {
	table := &Table{
		Headers: []string{"Team", "Verified"},
		Rows: [][]string{
			{"Payments", "yes"},
			{"Identity", "no"},
		},
	}

	output := table.Render()

	assert.Contains(t, output, "Team")
	assert.Contains(t, output, "Payments")
	assert.Contains(t, output, "Identity")
	assert.Contains(t, output, "─", "header separator should be drawn")
}

func TestTable_Render_Empty(t *testing.T) {
	output := (&Table{}).Render()
	assert.Empty(t, output)
}

func TestTable_Render_Truncation(t *testing.T) {
	table := &Table{
		Headers:  []string{"Area"},
		Rows:     [][]string{{`Platform\Payments\Settlement\Reconciliation`}},
		MaxWidth: 12,
	}

	output := table.Render()
	assert.Contains(t, output, "…", "overlong cells should be cut with an ellipsis")
}

func TestTable_Render_RowsHaveFewerColumns(t *testing.T) {
	table := &Table{
		Headers: []string{"Team", "Area Path", "Verified"},
		Rows: [][]string{
			{"Payments", `Platform\Payments`}, // verified column missing
		},
	}

	output := table.Render()

	assert.Contains(t, output, "Payments")
	lines := strings.Split(strings.TrimSpace(output), "\n")
	assert.Equal(t, 3, len(lines), "header, separator, one data row")
}

func TestPadRight(t *testing.T) {
	tests := []struct {
		input    string
		width    int
		expected string
	}{
		{"abc", 5, "abc  "},
		{"hello", 5, "hello"},
		{"longer", 3, "longer"},
		{"", 3, "   "},
	}

	for _, tc := range tests {
		assert.Equal(t, tc.expected, padRight(tc.input, tc.width))
	}
}
