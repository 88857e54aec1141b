package pollrun

import (
	"os"
)

// ShowHelp prints usage information for the poll tool.
func ShowHelp() {
	os.Stdout.WriteString(`Picklist Poll Tool
==================

Posts a synthetic roster to a running picklist service, polls the batched
run to completion and verifies the picklist.

Usage:
  go run ./cmd/picklist-poll [options]

Options:
  -url string
        Base URL of the service (default "http://localhost:9080")
  -teams int
        Synthetic roster size (default 60)
  -batch int
        Teams per batch, references included (default 20)
  -refs int
        Reference teams per batch (default 3)
  -concurrent int
        Identical generate calls posted at once (default 4)
  -poll duration
        Delay between status polls (default 5s)
  -timeout duration
        HTTP request timeout (default 30s)
  -seed int
        Roster generator seed (default 1)
  -log-format string
        text or json (default "text")
  -verbose
        Log every poll
  -help
        Show this help message

Examples:
  go run ./cmd/picklist-poll -teams 120 -batch 25
  go run ./cmd/picklist-poll -url http://localhost:8080 -poll 1s -verbose
`)
}
