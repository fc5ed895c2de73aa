package replay

import "os"

// ShowHelp prints usage information for the push-replay tool.
func ShowHelp() {
	_, _ = os.Stdout.WriteString(`Homework Push Replay
====================

Links synthetic participants, sends signed push deliveries for random
prefixes of the curriculum, then checks progress, leaderboard ordering and
that a redelivery changes nothing.

Usage:
  go run ./cmd/push-replay [options]

Options:
  -url string          Base URL of the service (default "http://localhost:9080")
  -participants int    Number of synthetic participants (default 100)
  -max-weeks int       Most weeks one participant completes (default 52)
  -top int             Leaderboard entries to check (default 20)
  -workers int         Concurrent workers (default CPU cores * 2)
  -timeout duration    HTTP request timeout (default 30s)
  -secret string       Webhook secret (default $HW_WEBHOOK_SECRET)
  -admin-key string    Admin API key (default $HW_ADMIN_API_KEY)
  -prefix string       Participant folder (default "participants/")
  -verbose             Enable verbose logging
  -help                Show this help message
`)
}
