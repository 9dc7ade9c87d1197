package kinnet

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// LedgerClient is everything the channel pool and the account facade need
// from the ledger. HorizonLedger implements it against a horizon server.
//
// Implementations report failures with the errors in errors.go:
// ErrAccountNotFound for missing accounts, ErrChannelUnderfunded when the
// transaction source can't pay the fee, and so on.
type LedgerClient interface {
	AccountSequence(ctx context.Context, address AddressStr) (int64, error)
	AccountBalances(ctx context.Context, address AddressStr) (Balances, error)
	AccountData(ctx context.Context, address AddressStr) (*AccountData, error)
	AccountExists(ctx context.Context, address AddressStr) (bool, error)
	SubmitTransaction(ctx context.Context, signed string) (SubmitResult, error)
	// StreamPayments calls handler for every payment touching address,
	// starting after cursor, until ctx is done or the stream fails.
	StreamPayments(ctx context.Context, address AddressStr, cursor string, handler func(PaymentRecord)) error
}

// Balances maps an asset code to its balance. The native asset is
// NativeCode.
type Balances map[string]decimal.Decimal

// AccountBalance is one trustline (or the native balance) of an account.
type AccountBalance struct {
	Asset   Asset
	Balance decimal.Decimal
	Limit   string
}

// AccountSigner is a key allowed to sign for an account.
type AccountSigner struct {
	Key    string
	Weight int32
}

// AccountData is the ledger state of an account.
type AccountData struct {
	ID            AddressStr
	Sequence      int64
	SubentryCount int32
	Balances      []AccountBalance
	Data          map[string]string
	Signers       []AccountSigner
	Thresholds    [3]byte
}

// Balance returns the balance of asset and whether a trustline exists.
func (a *AccountData) Balance(asset Asset) (decimal.Decimal, bool) {
	for _, b := range a.Balances {
		if b.Asset.IsNative() == asset.IsNative() && (asset.IsNative() || (b.Asset.Code == asset.Code && b.Asset.Issuer == asset.Issuer)) {
			return b.Balance, true
		}
	}
	return decimal.Zero, false
}

// SubmitResult is returned by a successful submission.
type SubmitResult struct {
	Hash   string
	Ledger int32
}

// PaymentRecord is a payment or account creation seen on the ledger.
type PaymentRecord struct {
	ID              string
	PagingToken     string
	TransactionHash string
	Type            string
	From            AddressStr
	To              AddressStr
	Asset           Asset
	Amount          string
	CreatedAt       time.Time
}

// AccountStatus is the state of an account with respect to an asset.
type AccountStatus int

const (
	AccountNotCreated AccountStatus = iota + 1
	AccountNotActivated
	AccountActivated
)

func (s AccountStatus) String() string {
	switch s {
	case AccountNotCreated:
		return "not created"
	case AccountNotActivated:
		return "not activated"
	case AccountActivated:
		return "activated"
	}
	return "unknown"
}
