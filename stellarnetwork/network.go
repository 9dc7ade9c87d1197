package stellarnetwork

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/stellar/go/clients/horizonclient"
	"github.com/stellar/go/network"
)

// StellarNetwork names a stellar network, its passphrase and the horizon
// server used to reach it. The passphrase influences how a transaction is
// hashed for the purposes of signature generation.
type StellarNetwork struct {
	Name       string
	Passphrase string
	HorizonURL string
}

// ID returns the network ID derived from this struct's Passphrase
func (n *StellarNetwork) ID() [32]byte {
	return network.ID(n.Passphrase)
}

var (
	// PublicNetwork is the main public stellar network.
	PublicNetwork = StellarNetwork{
		Name:       "PUBLIC",
		Passphrase: network.PublicNetworkPassphrase,
		HorizonURL: horizonclient.DefaultPublicNetClient.HorizonURL,
	}

	// TestNetwork is the test stellar network (often called testnet).
	TestNetwork = StellarNetwork{
		Name:       "TESTNET",
		Passphrase: network.TestNetworkPassphrase,
		HorizonURL: horizonclient.DefaultTestNetClient.HorizonURL,
	}
)

// ByName returns the well-known network called name (case insensitive).
func ByName(name string) (StellarNetwork, error) {
	switch strings.ToUpper(name) {
	case PublicNetwork.Name, "MAINNET":
		return PublicNetwork, nil
	case TestNetwork.Name, "TEST":
		return TestNetwork, nil
	}
	return StellarNetwork{}, errors.Errorf("unknown stellar network %q", name)
}
