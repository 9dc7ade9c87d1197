package kinnet

import (
	"time"

	"github.com/stellar/go/keypair"
	"github.com/stellar/go/txnbuild"
)

// MaxOperations is the most operations a transaction can carry.
const MaxOperations = 100

// Tx is a data structure used for making a Stellar transaction.
// After creating one with NewBaseTx(), add to it with the various
// Add* functions, and finally, Sign() it.
//
// Any errors that occur during Add* functions are delayed to return
// when the Sign() function is called in order to make the transaction
// building code cleaner.
type Tx struct {
	from     AddressStr
	opSource AddressStr
	ops      []txnbuild.Operation
	memo     txnbuild.Memo
	bounds   *txnbuild.Timebounds
	baseFee  int64
	netPass  string
	err      error

	seqnoProv SequenceProvider
}

// NewBaseTx creates a Tx with the common transaction elements.
func NewBaseTx(from AddressStr, seqnoProvider SequenceProvider, baseFee int64, netPass string) *Tx {
	if baseFee < txnbuild.MinBaseFee {
		baseFee = txnbuild.MinBaseFee
	}
	return &Tx{
		from:      from,
		baseFee:   baseFee,
		netPass:   netPass,
		seqnoProv: seqnoProvider,
	}
}

// Source returns the transaction source account.
func (t *Tx) Source() AddressStr { return t.from }

// SetOperationSource makes every operation added afterwards act on behalf
// of addr. The account pays nothing but must sign.
func (t *Tx) SetOperationSource(addr AddressStr) {
	if addr == t.from {
		addr = ""
	}
	t.opSource = addr
}

func (t *Tx) addOp(op txnbuild.Operation) {
	if t.err != nil {
		return
	}
	if t.IsFull() {
		t.err = ErrTxOpFull
		return
	}
	t.ops = append(t.ops, op)
}

// AddPaymentOp adds a payment operation to the transaction.
func (t *Tx) AddPaymentOp(to AddressStr, asset Asset, amt string) {
	t.addOp(&txnbuild.Payment{
		Destination:   to.String(),
		Amount:        amt,
		Asset:         asset.txnbuild(),
		SourceAccount: t.opSource.String(),
	})
}

// AddCreateAccountOp adds a create_account operation to the transaction.
func (t *Tx) AddCreateAccountOp(to AddressStr, amt string) {
	t.addOp(&txnbuild.CreateAccount{
		Destination:   to.String(),
		Amount:        amt,
		SourceAccount: t.opSource.String(),
	})
}

// AddChangeTrustOp adds a change_trust operation for asset. An empty limit
// means the maximum.
func (t *Tx) AddChangeTrustOp(asset Asset, limit string) {
	if t.err != nil {
		return
	}
	if asset.IsNative() {
		t.err = invalidParam("asset", "can't trust the native asset")
		return
	}
	if limit == "" {
		limit = txnbuild.MaxTrustlineLimit
	}
	line, err := asset.txnbuild().ToChangeTrustAsset()
	if err != nil {
		t.err = err
		return
	}
	t.addOp(&txnbuild.ChangeTrust{
		Line:          line,
		Limit:         limit,
		SourceAccount: t.opSource.String(),
	})
}

func (t *Tx) haveMemo() bool {
	return t.memo != nil
}

// AddMemoText adds a text memo to the transaction.  There can only
// be one memo.
func (t *Tx) AddMemoText(memo string) {
	if t.err != nil {
		return
	}
	if memo == "" {
		return
	}
	if t.haveMemo() {
		t.err = ErrMemoExists
		return
	}
	t.memo = txnbuild.MemoText(memo)
}

// AddTimebounds adds time bounds to the transaction.
func (t *Tx) AddTimebounds(min, max int64) {
	if t.err != nil {
		return
	}
	if t.bounds != nil {
		t.err = ErrTimeboundsExist
		return
	}
	tb := txnbuild.NewTimebounds(min, max)
	t.bounds = &tb
}

// AddTimeout makes the transaction expire d from now.
func (t *Tx) AddTimeout(d time.Duration) {
	if d <= 0 {
		return
	}
	if t.err != nil {
		return
	}
	if t.bounds != nil {
		t.err = ErrTimeboundsExist
		return
	}
	tb := txnbuild.NewTimeout(int64(d / time.Second))
	t.bounds = &tb
}

// IsFull returns true if there are already MaxOperations operations in the transaction.
func (t *Tx) IsFull() bool {
	return len(t.ops) >= MaxOperations
}

// NumOperations returns the number of operations added so far.
func (t *Tx) NumOperations() int {
	return len(t.ops)
}

// SignResult contains the result of signing a transaction.
type SignResult struct {
	Seqno  uint64
	Signed string // signed transaction (base64)
	TxHash string // transaction hash (hex)
}

// Sign fetches the source sequence number, builds the transaction and signs
// it with every signer. Duplicate signers sign once.
func (t *Tx) Sign(signers ...SeedStr) (SignResult, error) {
	if t.err != nil {
		return SignResult{}, t.err
	}
	if len(t.ops) == 0 {
		return SignResult{}, ErrNoOps
	}

	seqno, err := t.seqnoProv.SequenceForAccount(t.from.String())
	if err != nil {
		return SignResult{}, err
	}

	bounds := txnbuild.NewInfiniteTimeout()
	if t.bounds != nil {
		bounds = *t.bounds
	}
	tx, err := txnbuild.NewTransaction(txnbuild.TransactionParams{
		SourceAccount:        &txnbuild.SimpleAccount{AccountID: t.from.String(), Sequence: int64(seqno)},
		IncrementSequenceNum: true,
		Operations:           t.ops,
		BaseFee:              t.baseFee,
		Memo:                 t.memo,
		Timebounds:           bounds,
	})
	if err != nil {
		return SignResult{}, err
	}

	kps, err := signingKeys(signers)
	if err != nil {
		return SignResult{}, err
	}
	tx, err = tx.Sign(t.netPass, kps...)
	if err != nil {
		return SignResult{}, err
	}

	signed, err := tx.Base64()
	if err != nil {
		return SignResult{}, err
	}
	txHashHex, err := tx.HashHex(t.netPass)
	if err != nil {
		return SignResult{}, err
	}

	return SignResult{
		Seqno:  uint64(tx.SequenceNumber()),
		Signed: signed,
		TxHash: txHashHex,
	}, nil
}

func signingKeys(signers []SeedStr) ([]*keypair.Full, error) {
	seen := make(map[SeedStr]bool, len(signers))
	kps := make([]*keypair.Full, 0, len(signers))
	for _, s := range signers {
		if seen[s] {
			continue
		}
		seen[s] = true
		kp, err := s.full()
		if err != nil {
			return nil, err
		}
		kps = append(kps, kp)
	}
	return kps, nil
}
