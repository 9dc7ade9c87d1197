package kinnet

import (
	"context"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Account is an authenticated ledger account. Mutations go through its
// ChannelManager, reads go straight to the ledger.
type Account struct {
	keypair  *Keypair
	ledger   LedgerClient
	cfg      Config
	channels *ChannelManager
}

// NewAccount creates an Account for seed. The base account must exist on
// the ledger.
func NewAccount(ctx context.Context, seed string, ledger LedgerClient, cfg Config, opts ChannelOptions) (*Account, error) {
	kp, err := KeypairFromSeed(seed)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	exists, err := ledger.AccountExists(ctx, kp.Address())
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, errors.Wrapf(ErrAccountNotFound, "base account %s", kp.Address())
	}
	cm, err := NewChannelManager(ctx, kp.Seed(), ledger, cfg, opts)
	if err != nil {
		return nil, err
	}
	return &Account{
		keypair:  kp,
		ledger:   ledger,
		cfg:      cfg,
		channels: cm,
	}, nil
}

// Address returns the public address of the account.
func (a *Account) Address() AddressStr { return a.keypair.Address() }

// Channels returns the channel pool of the account.
func (a *Account) Channels() *ChannelManager { return a.channels }

// Balances returns the balances of the account keyed by asset code.
func (a *Account) Balances(ctx context.Context) (Balances, error) {
	return a.ledger.AccountBalances(ctx, a.Address())
}

// Data returns the ledger state of the account.
func (a *Account) Data(ctx context.Context) (*AccountData, error) {
	return a.ledger.AccountData(ctx, a.Address())
}

// Status reports whether the account exists and trusts asset.
func (a *Account) Status(ctx context.Context, asset Asset) (AccountStatus, error) {
	return AccountStatusFor(ctx, a.ledger, a.Address(), asset)
}

// AccountStatusFor reports whether address exists and trusts asset.
func AccountStatusFor(ctx context.Context, ledger LedgerClient, address AddressStr, asset Asset) (AccountStatus, error) {
	data, err := ledger.AccountData(ctx, address)
	if errors.Is(err, ErrAccountNotFound) {
		return AccountNotCreated, nil
	}
	if err != nil {
		return 0, err
	}
	if _, ok := data.Balance(asset); !ok {
		return AccountNotActivated, nil
	}
	return AccountActivated, nil
}

// CreateAccount creates the account at address with startingBalance of the
// native asset. An empty startingBalance uses the configured minimum
// account balance. It returns the transaction hash.
func (a *Account) CreateAccount(ctx context.Context, address, startingBalance, memoText string) (string, error) {
	to, err := NewAddressStr(address)
	if err != nil {
		return "", err
	}
	if startingBalance == "" {
		startingBalance = a.cfg.MinAccountBalance
	}
	bal, err := ParseAmount("starting balance", startingBalance, true)
	if err != nil {
		return "", err
	}
	memo, err := a.cfg.BuildMemo(memoText)
	if err != nil {
		return "", err
	}
	return a.channels.Submit(ctx, func(tx *Tx) {
		tx.AddCreateAccountOp(to, FormatAmount(bal))
	}, memo)
}

// SendAsset pays amount of asset to address. It returns the transaction
// hash.
func (a *Account) SendAsset(ctx context.Context, asset Asset, address, amount, memoText string) (string, error) {
	if err := asset.Validate(); err != nil {
		return "", err
	}
	to, err := NewAddressStr(address)
	if err != nil {
		return "", err
	}
	amt, err := ParseAmount("amount", amount, false)
	if err != nil {
		return "", err
	}
	memo, err := a.cfg.BuildMemo(memoText)
	if err != nil {
		return "", err
	}
	return a.channels.Submit(ctx, func(tx *Tx) {
		tx.AddPaymentOp(to, asset, FormatAmount(amt))
	}, memo)
}

// SendNative pays amount of the native asset to address.
func (a *Account) SendNative(ctx context.Context, address, amount, memoText string) (string, error) {
	return a.SendAsset(ctx, NativeAsset(), address, amount, memoText)
}

// SendToken pays amount of the configured token to address.
func (a *Account) SendToken(ctx context.Context, address, amount, memoText string) (string, error) {
	if a.cfg.Token.IsNative() {
		return "", configErrorf("no token asset configured")
	}
	return a.SendAsset(ctx, a.cfg.Token, address, amount, memoText)
}

// Activate adds a trustline for asset to the account so that it can hold
// and receive it.
func (a *Account) Activate(ctx context.Context, asset Asset) (string, error) {
	if asset.IsNative() {
		return "", invalidParam("asset", "the native asset needs no activation")
	}
	if err := asset.Validate(); err != nil {
		return "", err
	}
	memo, err := a.cfg.BuildMemo("")
	if err != nil {
		return "", err
	}
	return a.channels.Submit(ctx, func(tx *Tx) {
		tx.AddChangeTrustOp(asset, "")
	}, memo)
}

// HasBalance reports whether the account holds at least amount of asset.
func (a *Account) HasBalance(ctx context.Context, asset Asset, amount decimal.Decimal) (bool, error) {
	data, err := a.Data(ctx)
	if err != nil {
		return false, err
	}
	bal, ok := data.Balance(asset)
	if !ok {
		return false, nil
	}
	return bal.Cmp(amount) >= 0, nil
}
