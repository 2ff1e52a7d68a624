package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

func isJSON() bool {
	return viper.GetBool("json")
}

func isQuiet() bool {
	return viper.GetBool("quiet")
}

func isVerbose() bool {
	return viper.GetBool("verbose")
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// confirmOrAbort prompts on stdin for a yes. JSON mode auto-confirms so
// scripted callers are not blocked on a prompt they cannot answer.
func confirmOrAbort(prompt string) bool {
	if isJSON() {
		return true
	}
	fmt.Print(prompt)
	var response string
	if _, err := fmt.Fscanln(os.Stdin, &response); err != nil {
		fmt.Println("Cancelled.")
		return false
	}
	switch strings.ToLower(strings.TrimSpace(response)) {
	case "y", "yes":
		return true
	}
	fmt.Println("Cancelled.")
	return false
}
