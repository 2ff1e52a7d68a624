package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/viper"

	"github.com/seedwise/kindred/types"
)

// HandleFatalError handles unrecoverable errors that should terminate the application.
func HandleFatalError(userMsg string, technicalErr error) {
	PrintError(userMsg, technicalErr)
	os.Exit(1)
}

// PrintError prints an error message without exiting, allowing for recovery.
// It prints a user-friendly message by default. If the --verbose flag is set,
// it prints the full technical error.
func PrintError(userMsg string, technicalErr error) {
	if viper.GetBool("verbose") && technicalErr != nil {
		// In verbose mode, print the detailed, underlying technical error.
		fmt.Fprintf(os.Stderr, "Error: %v\n", technicalErr)
	} else {
		// By default, print the clean, user-friendly message.
		fmt.Fprintln(os.Stderr, userMsg)
	}
}

// LogError logs an error without printing to stderr if verbose mode is off.
func LogError(msg string, err error) {
	if viper.GetBool("verbose") {
		if err != nil {
			fmt.Fprintf(os.Stderr, "[DEBUG] %s: %v\n", msg, err)
		} else {
			fmt.Fprintf(os.Stderr, "[DEBUG] %s\n", msg)
		}
	}
}

// userMessageFor translates a pipeline error into a short actionable message.
// The kind taxonomy is closed, so unknown kinds read as internal errors.
func userMessageFor(err error) string {
	switch types.KindOf(err) {
	case types.ErrKindNotFound:
		return "Work item not found. Check the id and your tracker project."
	case types.ErrKindTrackerUnavailable:
		return "Could not reach the tracker. Check tracker.baseUrl, your token, and your network."
	case types.ErrKindEmbeddingUnavailable:
		return "Embedding provider unavailable and hash fallback is disabled. Set embedding.allowHashFallback: true or fix the provider."
	case types.ErrKindIndexCorrupt:
		return "The persisted index failed integrity checks. Run 'kindred index clear' and retry."
	case types.ErrKindTimeout:
		return "The request deadline expired before any results were ranked. Retry, or raise the timeout."
	default:
		return fmt.Sprintf("Analysis failed: %v", err)
	}
}
