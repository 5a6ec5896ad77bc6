package solana

import (
	"fmt"
	"net/url"
	"strings"
)

type Environment string

const (
	EnvironmentDev   Environment = "https://api.devnet.solana.com"
	EnvironmentTest  Environment = "https://api.testnet.solana.com"
	EnvironmentProd  Environment = "https://api.mainnet-beta.solana.com"
	EnvironmentLocal Environment = "http://127.0.0.1:8899"
)

// Cluster names a Solana cluster as understood by the explorer.
type Cluster string

const (
	ClusterDevnet  Cluster = "devnet"
	ClusterTestnet Cluster = "testnet"
	ClusterMainnet Cluster = "mainnet-beta"
	ClusterLocal   Cluster = "localnet"
)

const explorerBaseURL = "https://explorer.solana.com"

// Endpoint returns the public RPC endpoint for well known clusters. Any other
// value is assumed to already be an RPC URL.
func (c Cluster) Endpoint() string {
	switch c {
	case ClusterDevnet:
		return string(EnvironmentDev)
	case ClusterTestnet:
		return string(EnvironmentTest)
	case ClusterMainnet:
		return string(EnvironmentProd)
	case ClusterLocal:
		return string(EnvironmentLocal)
	default:
		return string(c)
	}
}

func (c Cluster) explorerQuery() string {
	switch c {
	case ClusterMainnet, "":
		return ""
	case ClusterDevnet, ClusterTestnet:
		return "?cluster=" + string(c)
	case ClusterLocal:
		return "?cluster=custom&customUrl=" + url.QueryEscape(string(EnvironmentLocal))
	default:
		return "?cluster=custom&customUrl=" + url.QueryEscape(string(c))
	}
}

// ParseCluster normalizes a configured cluster name, accepting the common
// aliases used by the Solana CLI.
func ParseCluster(s string) Cluster {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "devnet", "d":
		return ClusterDevnet
	case "testnet", "t":
		return ClusterTestnet
	case "mainnet", "mainnet-beta", "m":
		return ClusterMainnet
	case "localnet", "localhost", "l":
		return ClusterLocal
	default:
		return Cluster(strings.TrimSpace(s))
	}
}

// ExplorerTransactionURL returns a link to the transaction on the Solana explorer.
func ExplorerTransactionURL(sig Signature, cluster Cluster) string {
	return fmt.Sprintf("%s/tx/%s%s", explorerBaseURL, sig.ToBase58(), cluster.explorerQuery())
}

// ExplorerAddressURL returns a link to the account on the Solana explorer.
func ExplorerAddressURL(address string, cluster Cluster) string {
	return fmt.Sprintf("%s/address/%s%s", explorerBaseURL, address, cluster.explorerQuery())
}
