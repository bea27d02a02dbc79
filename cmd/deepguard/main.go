// DeepGuard is an edge agent that turns deepfake detector scores into
// auditable decisions.
//
// Each score in [0, 1] is classified against two thresholds, adjusted by the
// configured policy rules, explained in plain language, and recorded as one
// audit event.
//
// Usage:
//
//	# Stream scores from a detector
//	detector --emit-scores | deepguard run --config deepguard.yaml
//
//	# Decide a few scores by hand
//	deepguard decide 0.92 0.10 --format json
//
//	# Preview an explanation
//	deepguard explain DEEPFAKE HIGH 0.92
//
//	# Review the audit trail
//	deepguard audit query --since 24h --verdict DEEPFAKE
//	deepguard audit export --format csv -o audit.csv
//
//	# Check configuration and rules
//	deepguard validate
package main

import "os"

func main() {
	os.Exit(Execute())
}
