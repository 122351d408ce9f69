package main

import "strings"

// opts mirrors the teacher's cmd/server/opts.go grouped-struct shape: one
// nested struct per concern, each tagged for github.com/jessevdk/go-flags.
var opts struct {
	Cluster struct {
		SeedHosts      string `long:"seed-hosts" description:"comma-separated host:port list" env:"SEED_HOSTS" required:"true"`
		ClusterName    string `long:"cluster-name" description:"expected cluster name" env:"CLUSTER_NAME"`
		GossipBindAddr string `long:"gossip-bind-addr" description:"memberlist bind address" env:"GOSSIP_BIND_ADDR"`
	} `group:"cluster" namespace:"cluster" env-namespace:"CLUSTER"`

	Namespace string `long:"namespace" description:"namespace to probe" env:"NAMESPACE" default:"test"`
	Set       string `long:"set" description:"set to probe" env:"SET"`

	Verbose bool `long:"verbose" description:"verbose mode" env:"VERBOSE"`
}

func parseSeedHosts(raw string) []string {
	parts := strings.Split(raw, ",")
	hosts := make([]string, 0, len(parts))

	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			hosts = append(hosts, trimmed)
		}
	}

	return hosts
}
