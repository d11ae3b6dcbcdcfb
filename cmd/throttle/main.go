// Throttle drives workloads through in-process rate limiters defined in a
// YAML configuration file.
//
// It builds named fixed window and token bucket limiters, and groups that
// combine them, then:
//   - Runs a simulated workload of concurrent callers through one of them
//   - Validates configuration files
//   - Prints the limiters a configuration builds
//
// Usage:
//
//	# Drive 50 calls from 10 callers through the "api" group
//	throttle run --limiter api --callers 10 --calls 50
//
//	# Offer 100 calls per second instead of all at once
//	throttle run --limiter api --calls 500 --arrival-rate 100
//
//	# Validate a configuration file
//	throttle validate --config throttle.yaml
//
//	# Show the limiters a configuration builds
//	throttle inspect --format json
package main

func main() {
	Execute()
}
