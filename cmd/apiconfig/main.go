// apiconfig fetches gateway configuration from the remote configuration API,
// resolves provider secrets and prints the resulting configuration graph.
//
// Usage:
//
//	# Fetch using API_CONFIG_* from the environment
//	apiconfig fetch
//
//	# Load variables from a file and print YAML
//	apiconfig fetch --env-file .env --output yaml
//
//	# Fail when any entity was skipped, exporting metrics for node_exporter
//	apiconfig fetch --strict --metrics-textfile /var/lib/node_exporter/api_config.prom
package main

func main() {
	Execute()
}
