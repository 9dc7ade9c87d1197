package kinnet

import (
	"fmt"
	"strings"

	"github.com/stellar/go/txnbuild"
)

// NativeCode is the balance key used for the native asset.
const NativeCode = "XLM"

// Asset identifies an asset on the ledger. The zero value is the native
// asset.
type Asset struct {
	Code   string `toml:"code"`
	Issuer string `toml:"issuer"`
}

// NativeAsset returns the native asset.
func NativeAsset() Asset { return Asset{} }

// IsNative returns true for the native asset.
func (a Asset) IsNative() bool {
	return a.Issuer == "" && (a.Code == "" || strings.EqualFold(a.Code, NativeCode) || a.Code == "native")
}

// BalanceKey is the key of this asset in Balances.
func (a Asset) BalanceKey() string {
	if a.IsNative() {
		return NativeCode
	}
	return a.Code
}

func (a Asset) String() string {
	if a.IsNative() {
		return NativeCode
	}
	return fmt.Sprintf("%s/%s", a.Code, a.Issuer)
}

// Validate checks the code length and issuer address of a non-native asset.
func (a Asset) Validate() error {
	if a.IsNative() {
		return nil
	}
	if len(a.Code) == 0 || len(a.Code) > 12 {
		return invalidParam("asset", "code %q must be 1-12 characters", a.Code)
	}
	if _, err := NewAddressStr(a.Issuer); err != nil {
		return invalidParam("asset", "invalid issuer %q", a.Issuer)
	}
	return nil
}

func (a Asset) txnbuild() txnbuild.Asset {
	if a.IsNative() {
		return txnbuild.NativeAsset{}
	}
	return txnbuild.CreditAsset{Code: a.Code, Issuer: a.Issuer}
}
