package config

import (
	"sort"
	"strings"
)

// Cluster names.
const (
	ClusterMainnet  = "mainnet"
	ClusterDevnet   = "devnet"
	ClusterLocalnet = "localnet"
)

// Cluster is a named RPC endpoint preset.
type Cluster struct {
	Name   string
	RPCURL string
}

var clusters = map[string]Cluster{
	ClusterMainnet:  {Name: ClusterMainnet, RPCURL: "https://api.mainnet-beta.solana.com"},
	ClusterDevnet:   {Name: ClusterDevnet, RPCURL: "https://api.devnet.solana.com"},
	ClusterLocalnet: {Name: ClusterLocalnet, RPCURL: "http://127.0.0.1:8899"},
}

var clusterAliases = map[string]string{
	"mainnet-beta": ClusterMainnet,
	"main":         ClusterMainnet,
	"dev":          ClusterDevnet,
	"local":        ClusterLocalnet,
	"localhost":    ClusterLocalnet,
}

// LookupCluster resolves a cluster name or alias, ignoring case.
func LookupCluster(name string) (Cluster, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	if canonical, ok := clusterAliases[name]; ok {
		name = canonical
	}
	c, ok := clusters[name]
	return c, ok
}

// ClusterNames returns the canonical cluster names, sorted.
func ClusterNames() []string {
	names := make([]string, 0, len(clusters))
	for n := range clusters {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
