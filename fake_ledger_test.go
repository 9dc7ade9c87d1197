package kinnet

import (
	"context"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stellar/go/keypair"
	"github.com/stellar/go/txnbuild"
	"github.com/stretchr/testify/require"
)

type fakeAccount struct {
	seq       int64
	native    decimal.Decimal
	trusts    map[string]decimal.Decimal
	broke     bool // can't pay fees
	stayBroke bool // a top-up doesn't help
}

type streamEvent struct {
	rec PaymentRecord
	err error
}

// fakeLedger is an in-memory LedgerClient. It checks sequence numbers the
// way the network does, so two transactions built on the same sequence
// number can't both succeed.
type fakeLedger struct {
	mu       sync.Mutex
	pass     string
	accounts map[AddressStr]*fakeAccount
	calls    map[string]int

	submitted   []string
	payments    map[AddressStr]int // native payments received, by destination
	inflight    int
	maxInflight int
	gate        chan struct{}

	streamEvents chan streamEvent
	cursors      []string
}

var _ LedgerClient = (*fakeLedger)(nil)

func newFakeLedger(pass string) *fakeLedger {
	return &fakeLedger{
		pass:         pass,
		accounts:     make(map[AddressStr]*fakeAccount),
		calls:        make(map[string]int),
		payments:     make(map[AddressStr]int),
		streamEvents: make(chan streamEvent),
	}
}

func (f *fakeLedger) addAccount(addr AddressStr, native string) *fakeAccount {
	f.mu.Lock()
	defer f.mu.Unlock()
	acct := &fakeAccount{
		seq:    100,
		native: dec(native),
		trusts: make(map[string]decimal.Decimal),
	}
	f.accounts[addr] = acct
	return acct
}

func (f *fakeLedger) account(addr AddressStr) *fakeAccount {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.accounts[addr]
}

func (f *fakeLedger) setBroke(addr AddressStr, stay bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accounts[addr].broke = true
	f.accounts[addr].stayBroke = stay
}

func (f *fakeLedger) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int
	for _, c := range f.calls {
		n += c
	}
	return n
}

func (f *fakeLedger) paymentsTo(addr AddressStr) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.payments[addr]
}

func (f *fakeLedger) submitCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls["SubmitTransaction"]
}

func (f *fakeLedger) addTrust(addr AddressStr, asset Asset, bal string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accounts[addr].trusts[asset.Code+"/"+asset.Issuer] = dec(bal)
}

func (f *fakeLedger) numSubmitted() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.submitted)
}

func (f *fakeLedger) inflightNow() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inflight
}

func (f *fakeLedger) lookup(method string, addr AddressStr) (*fakeAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[method]++
	acct, ok := f.accounts[addr]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return acct, nil
}

func (f *fakeLedger) AccountSequence(ctx context.Context, addr AddressStr) (int64, error) {
	acct, err := f.lookup("AccountSequence", addr)
	if err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return acct.seq, nil
}

func (f *fakeLedger) AccountBalances(ctx context.Context, addr AddressStr) (Balances, error) {
	data, err := f.AccountData(ctx, addr)
	if err != nil {
		return nil, err
	}
	res := make(Balances)
	for _, b := range data.Balances {
		res[b.Asset.BalanceKey()] = b.Balance
	}
	return res, nil
}

func (f *fakeLedger) AccountData(ctx context.Context, addr AddressStr) (*AccountData, error) {
	acct, err := f.lookup("AccountData", addr)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	data := &AccountData{
		ID:       addr,
		Sequence: acct.seq,
		Balances: []AccountBalance{{Asset: NativeAsset(), Balance: acct.native}},
	}
	for key, bal := range acct.trusts {
		data.Balances = append(data.Balances, AccountBalance{Asset: assetFromKey(key), Balance: bal})
	}
	return data, nil
}

func (f *fakeLedger) AccountExists(ctx context.Context, addr AddressStr) (bool, error) {
	_, err := f.lookup("AccountExists", addr)
	if errors.Is(err, ErrAccountNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (f *fakeLedger) SubmitTransaction(ctx context.Context, signed string) (SubmitResult, error) {
	f.mu.Lock()
	f.calls["SubmitTransaction"]++
	f.inflight++
	if f.inflight > f.maxInflight {
		f.maxInflight = f.inflight
	}
	gate := f.gate
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inflight--
		f.mu.Unlock()
	}()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return SubmitResult{}, &TransactionFailedError{Err: ctx.Err()}
		}
	}

	generic, err := txnbuild.TransactionFromXDR(signed)
	if err != nil {
		return SubmitResult{}, &TransactionFailedError{TxCode: "tx_malformed", Err: err}
	}
	tx, ok := generic.Transaction()
	if !ok {
		return SubmitResult{}, &TransactionFailedError{TxCode: "tx_malformed"}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	src := tx.SourceAccount()
	source := AddressStr(src.AccountID)
	acct, ok := f.accounts[source]
	if !ok {
		return SubmitResult{}, TranslateResultCodes("tx_no_source_account", nil)
	}
	if src.Sequence != acct.seq+1 {
		return SubmitResult{}, TranslateResultCodes("tx_bad_seq", nil)
	}
	if acct.broke {
		return SubmitResult{}, TranslateResultCodes("tx_insufficient_balance", nil)
	}
	if err := f.checkSignatures(tx, source); err != nil {
		return SubmitResult{}, err
	}

	if code := f.checkOps(tx, source); code != "" {
		acct.seq++
		return SubmitResult{}, TranslateResultCodes("tx_failed", []string{code})
	}
	acct.seq++
	f.applyOps(tx, source)

	hash, err := tx.HashHex(f.pass)
	if err != nil {
		return SubmitResult{}, err
	}
	f.submitted = append(f.submitted, signed)
	return SubmitResult{Hash: hash, Ledger: int32(len(f.submitted))}, nil
}

// checkSignatures requires a signature from the transaction source and from
// every operation source.
func (f *fakeLedger) checkSignatures(tx *txnbuild.Transaction, source AddressStr) error {
	hash, err := tx.Hash(f.pass)
	if err != nil {
		return err
	}
	need := map[string]bool{source.String(): true}
	for _, op := range tx.Operations() {
		if s := op.GetSourceAccount(); s != "" {
			need[s] = true
		}
	}
	for addr := range need {
		kp, err := keypair.ParseAddress(addr)
		if err != nil {
			return err
		}
		var found bool
		for _, sig := range tx.Signatures() {
			if sig.Hint == kp.Hint() && kp.Verify(hash[:], sig.Signature) == nil {
				found = true
			}
		}
		if !found {
			return TranslateResultCodes("tx_bad_auth", nil)
		}
	}
	return nil
}

func opSource(op txnbuild.Operation, source AddressStr) AddressStr {
	if s := op.GetSourceAccount(); s != "" {
		return AddressStr(s)
	}
	return source
}

func (f *fakeLedger) checkOps(tx *txnbuild.Transaction, source AddressStr) string {
	for _, op := range tx.Operations() {
		from := f.accounts[opSource(op, source)]
		if from == nil {
			return "op_no_account"
		}
		switch o := op.(type) {
		case *txnbuild.CreateAccount:
			if _, ok := f.accounts[AddressStr(o.Destination)]; ok {
				return "op_already_exists"
			}
			if from.native.Cmp(dec(o.Amount)) < 0 {
				return "op_underfunded"
			}
		case *txnbuild.Payment:
			to, ok := f.accounts[AddressStr(o.Destination)]
			if !ok {
				return "op_no_destination"
			}
			amt := dec(o.Amount)
			if o.Asset.IsNative() {
				if from.native.Cmp(amt) < 0 {
					return "op_underfunded"
				}
				continue
			}
			key := o.Asset.GetCode() + "/" + o.Asset.GetIssuer()
			if _, ok := to.trusts[key]; !ok && o.Asset.GetIssuer() != o.Destination {
				return "op_no_trust"
			}
			if o.Asset.GetIssuer() != opSource(op, source).String() && from.trusts[key].Cmp(amt) < 0 {
				return "op_underfunded"
			}
		case *txnbuild.ChangeTrust:
		default:
			return "op_not_supported"
		}
	}
	return ""
}

func (f *fakeLedger) applyOps(tx *txnbuild.Transaction, source AddressStr) {
	for _, op := range tx.Operations() {
		from := f.accounts[opSource(op, source)]
		switch o := op.(type) {
		case *txnbuild.CreateAccount:
			amt := dec(o.Amount)
			from.native = from.native.Sub(amt)
			f.accounts[AddressStr(o.Destination)] = &fakeAccount{
				seq:    int64(len(f.accounts)+1) << 32,
				native: amt,
				trusts: make(map[string]decimal.Decimal),
			}
		case *txnbuild.Payment:
			to := f.accounts[AddressStr(o.Destination)]
			amt := dec(o.Amount)
			if o.Asset.IsNative() {
				from.native = from.native.Sub(amt)
				to.native = to.native.Add(amt)
				if !to.stayBroke {
					to.broke = false
				}
				f.payments[AddressStr(o.Destination)]++
				continue
			}
			// issuers have no trustline for their own asset
			key := o.Asset.GetCode() + "/" + o.Asset.GetIssuer()
			if o.Asset.GetIssuer() != opSource(op, source).String() {
				from.trusts[key] = from.trusts[key].Sub(amt)
			}
			if o.Asset.GetIssuer() != o.Destination {
				to.trusts[key] = to.trusts[key].Add(amt)
			}
		case *txnbuild.ChangeTrust:
			key := o.Line.GetCode() + "/" + o.Line.GetIssuer()
			if _, ok := from.trusts[key]; !ok {
				from.trusts[key] = decimal.Zero
			}
		}
	}
}

func (f *fakeLedger) StreamPayments(ctx context.Context, addr AddressStr, cursor string, handler func(PaymentRecord)) error {
	f.mu.Lock()
	f.calls["StreamPayments"]++
	f.cursors = append(f.cursors, cursor)
	f.mu.Unlock()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-f.streamEvents:
			if ev.err != nil {
				return ev.err
			}
			handler(ev.rec)
		}
	}
}

func (f *fakeLedger) streamCursors() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.cursors...)
}

func assetFromKey(key string) Asset {
	for i := 0; i < len(key); i++ {
		if key[i] == '/' {
			return Asset{Code: key[:i], Issuer: key[i+1:]}
		}
	}
	return Asset{Code: key}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Network = "TESTNET"
	cfg.NetworkPassphrase = testNetPassphrase
	cfg.AppID = "test"
	return cfg
}

const testNetPassphrase = "Test SDF Network ; September 2015"

func randomSeed(t *testing.T) SeedStr {
	kp, err := NewKeyPair()
	require.NoError(t, err)
	return SeedStr(kp.Seed())
}

func randomAddress(t *testing.T) AddressStr {
	kp, err := NewKeyPair()
	require.NoError(t, err)
	return AddressStr(kp.Address())
}

func mustAddress(t *testing.T, s SeedStr) AddressStr {
	addr, err := s.Address()
	require.NoError(t, err)
	return addr
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}
