package execution

import "strings"

// classifyError buckets a venue/network error; the executor retries a
// failed submission only when it classifies as "network". Grounded on the polymarket-arb executor's classifyError
// (internal/execution/executor.go in the pack's other_examples corpus).
func classifyError(err error) string {
	if err == nil {
		return "unknown"
	}
	msg := strings.ToLower(err.Error())

	switch {
	case containsAny(msg, "connection refused", "timeout", "dial", "eof", "network"):
		return "network"
	case containsAny(msg, "api error", "invalid", "bad request", "400", "403", "404", "500"):
		return "api"
	case containsAny(msg, "missing", "required", "not configured"):
		return "validation"
	case containsAny(msg, "insufficient", "balance", "funds"):
		return "funds"
	default:
		return "unknown"
	}
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
