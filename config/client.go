// Package config holds the client-facing configuration surface: the
// ClientPolicy knobs controlling cluster discovery, connection pooling,
// and gossip augmentation, plus the operation-level policies re-exported
// from package command for callers that don't want to import it directly.
// Grounded on the teacher's membership.DefaultConfig()/gossip.DefaultConfig()
// pattern -- a plain struct with a DefaultConfig constructor rather than a
// functional-options builder.
package config

import (
	"os"
	"time"

	kitlog "github.com/go-kit/log"
	"gopkg.in/yaml.v3"

	"github.com/aerospike/aerospike-client-go-teachable/cluster"
	"github.com/aerospike/aerospike-client-go-teachable/cluster/conn"
	"github.com/aerospike/aerospike-client-go-teachable/cluster/node"
	"github.com/aerospike/aerospike-client-go-teachable/command"
)

// ClientPolicy configures a Client's connection to the cluster: seed
// resolution, per-node pooling, and gossip augmentation (§4.2-§4.4).
type ClientPolicy struct {
	SeedHosts []string `yaml:"seed_hosts"`
	Username  string   `yaml:"username"`
	Password  string   `yaml:"password"`

	ClusterName    string        `yaml:"cluster_name"`
	TendInterval   time.Duration `yaml:"tend_interval"`
	GossipBindAddr string        `yaml:"gossip_bind_addr"`

	MaxConnsPerNode int           `yaml:"max_conns_per_node"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	SocketTimeout   time.Duration `yaml:"socket_timeout"`

	Verbose bool `yaml:"verbose"`
}

// DefaultClientPolicy mirrors the teacher's DefaultConfig pattern: a
// struct literal with reasonable non-zero defaults, overridden field by
// field by the caller before Connect.
func DefaultClientPolicy() ClientPolicy {
	return ClientPolicy{
		TendInterval:    time.Second,
		MaxConnsPerNode: 8,
		IdleTimeout:     55 * time.Second,
		SocketTimeout:   30 * time.Second,
	}
}

// LoadClientPolicy reads a YAML file into a ClientPolicy, starting from
// DefaultClientPolicy so unset fields in the file keep their defaults
// rather than zeroing out.
func LoadClientPolicy(path string) (ClientPolicy, error) {
	p := DefaultClientPolicy()

	b, err := os.ReadFile(path)
	if err != nil {
		return ClientPolicy{}, err
	}

	if err := yaml.Unmarshal(b, &p); err != nil {
		return ClientPolicy{}, err
	}

	return p, nil
}

// ClusterConfig builds the cluster.Config this policy describes, for the
// client facade to pass to cluster.New.
func (p ClientPolicy) ClusterConfig(logger kitlog.Logger) cluster.Config {
	var creds *conn.Credentials
	if p.Username != "" {
		creds = &conn.Credentials{Username: p.Username, Password: p.Password}
	}

	return cluster.Config{
		ClusterName:    p.ClusterName,
		TendInterval:   p.TendInterval,
		GossipBindAddr: p.GossipBindAddr,
		Logger:         logger,
		NodeConfig: node.Config{
			MaxConnsPerNode: p.MaxConnsPerNode,
			IdleTimeout:     p.IdleTimeout,
			SocketTimeout:   p.SocketTimeout,
			Credentials:     creds,
		},
	}
}

// Policy, BatchPolicy, ScanPolicy and QueryPolicy are re-exported from
// package command so callers configuring a Client don't need a second
// import for per-operation knobs.
type (
	Policy      = command.Policy
	BatchPolicy = command.BatchPolicy
	ScanPolicy  = command.ScanPolicy
	QueryPolicy = command.QueryPolicy
)

var (
	DefaultPolicy      = command.DefaultPolicy
	DefaultBatchPolicy = command.DefaultBatchPolicy
	DefaultScanPolicy  = command.DefaultScanPolicy
	DefaultQueryPolicy = command.DefaultQueryPolicy
)
