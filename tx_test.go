package kinnet

import (
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stellar/go/txnbuild"
	"github.com/stellar/go/xdr"
	"github.com/stretchr/testify/require"
)

type fixedSeq int64

func (s fixedSeq) SequenceForAccount(string) (xdr.SequenceNumber, error) {
	return xdr.SequenceNumber(s), nil
}

type failingSeq struct{}

func (failingSeq) SequenceForAccount(string) (xdr.SequenceNumber, error) {
	return 0, ErrAccountNotFound
}

func parseSigned(t *testing.T, signed string) *txnbuild.Transaction {
	generic, err := txnbuild.TransactionFromXDR(signed)
	require.NoError(t, err)
	tx, ok := generic.Transaction()
	require.True(t, ok)
	return tx
}

func TestMultipleOps(t *testing.T) {
	alice := randomSeed(t)
	bob := randomAddress(t)
	charlie := randomAddress(t)

	tx := NewBaseTx(mustAddress(t, alice), fixedSeq(7), txnbuild.MinBaseFee*2, testNetPassphrase)
	tx.AddCreateAccountOp(bob, "10")
	tx.AddCreateAccountOp(charlie, "20")
	r, err := tx.Sign(alice)
	require.NoError(t, err)
	require.Equal(t, uint64(8), r.Seqno)
	require.Len(t, r.TxHash, 64)

	parsed := parseSigned(t, r.Signed)
	require.Len(t, parsed.Operations(), 2)
	require.Len(t, parsed.Signatures(), 1)
	require.Equal(t, int64(txnbuild.MinBaseFee*2*2), parsed.MaxFee())

	tx = NewBaseTx(mustAddress(t, alice), fixedSeq(7), txnbuild.MinBaseFee, testNetPassphrase)
	for i := 0; i < 50; i++ {
		tx.AddPaymentOp(bob, NativeAsset(), "1")
		tx.AddPaymentOp(charlie, NativeAsset(), "2")
	}
	require.True(t, tx.IsFull())
	_, err = tx.Sign(alice)
	require.NoError(t, err)

	tx.AddPaymentOp(bob, NativeAsset(), "1")
	_, err = tx.Sign(alice)
	require.Equal(t, ErrTxOpFull, err)
}

func TestTxErrors(t *testing.T) {
	alice := randomSeed(t)
	from := mustAddress(t, alice)
	bob := randomAddress(t)

	tx := NewBaseTx(from, fixedSeq(1), 0, testNetPassphrase)
	tx.AddPaymentOp(bob, NativeAsset(), "1")
	tx.AddMemoText("memo 1")
	tx.AddMemoText("memo 2")
	_, err := tx.Sign(alice)
	require.Equal(t, ErrMemoExists, err)

	tx = NewBaseTx(from, fixedSeq(1), 0, testNetPassphrase)
	tx.AddPaymentOp(bob, NativeAsset(), "1")
	tx.AddTimebounds(1000, 5000)
	tx.AddTimebounds(4000, 5000)
	_, err = tx.Sign(alice)
	require.Equal(t, ErrTimeboundsExist, err)

	tx = NewBaseTx(from, fixedSeq(1), 0, testNetPassphrase)
	tx.AddTimebounds(1000, 5000)
	tx.AddMemoText("memo 1")
	_, err = tx.Sign(alice)
	require.Equal(t, ErrNoOps, err)

	tx = NewBaseTx(from, fixedSeq(1), 0, testNetPassphrase)
	tx.AddChangeTrustOp(NativeAsset(), "")
	_, err = tx.Sign(alice)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))

	tx = NewBaseTx(from, failingSeq{}, 0, testNetPassphrase)
	tx.AddPaymentOp(bob, NativeAsset(), "1")
	_, err = tx.Sign(alice)
	require.ErrorIs(t, err, ErrAccountNotFound)
}

func TestTxOperationSource(t *testing.T) {
	channel := randomSeed(t)
	base := randomSeed(t)
	to := randomAddress(t)
	issuer := randomAddress(t)

	tx := NewBaseTx(mustAddress(t, channel), fixedSeq(1), 0, testNetPassphrase)
	require.Equal(t, mustAddress(t, channel), tx.Source())
	tx.SetOperationSource(mustAddress(t, base))
	tx.AddPaymentOp(to, Asset{Code: "KIN", Issuer: issuer.String()}, "3")
	tx.AddChangeTrustOp(Asset{Code: "KIN", Issuer: issuer.String()}, "")
	tx.AddMemoText("1-test-hi")
	tx.AddTimeout(time.Minute)
	require.Equal(t, 2, tx.NumOperations())

	summary := TxSummary(tx)
	require.True(t, strings.HasPrefix(summary, "Pay 3 KIN/"+issuer.String()), summary)
	require.Contains(t, summary, "Trust KIN/"+issuer.String())
	require.Contains(t, summary, "on behalf of "+mustAddress(t, base).String())

	r, err := tx.Sign(channel, base, channel)
	require.NoError(t, err)
	parsed := parseSigned(t, r.Signed)
	require.Len(t, parsed.Signatures(), 2)
	require.Equal(t, txnbuild.MemoText("1-test-hi"), parsed.Memo())
	bounds := parsed.Timebounds()
	require.NotZero(t, bounds.MaxTime)
	for _, op := range parsed.Operations() {
		require.Equal(t, mustAddress(t, base).String(), op.GetSourceAccount())
	}
	trust, ok := parsed.Operations()[1].(*txnbuild.ChangeTrust)
	require.True(t, ok)
	require.Equal(t, txnbuild.MaxTrustlineLimit, trust.Limit)

	// the transaction source needs no operation source
	tx = NewBaseTx(mustAddress(t, base), fixedSeq(1), 0, testNetPassphrase)
	tx.SetOperationSource(mustAddress(t, base))
	tx.AddCreateAccountOp(to, "2")
	require.Equal(t, "Create account "+to.String()+" with starting balance of 2 XLM", TxSummary(tx))
}
