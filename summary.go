package kinnet

import (
	"fmt"
	"strings"

	"github.com/stellar/go/txnbuild"
)

// OpSummary returns a string summary of an operation.
func OpSummary(op txnbuild.Operation) string {
	var s string
	switch o := op.(type) {
	case *txnbuild.CreateAccount:
		s = fmt.Sprintf("Create account %s with starting balance of %s %s", o.Destination, o.Amount, NativeCode)
	case *txnbuild.Payment:
		s = fmt.Sprintf("Pay %s %s to account %s", o.Amount, txnbuildAssetSummary(o.Asset), o.Destination)
	case *txnbuild.ChangeTrust:
		if o.Limit == "0" {
			s = fmt.Sprintf("Remove trustline for %s", txnbuildAssetSummary(o.Line))
		} else {
			s = fmt.Sprintf("Trust %s", txnbuildAssetSummary(o.Line))
		}
	default:
		return fmt.Sprintf("%T", op)
	}
	if src := op.GetSourceAccount(); src != "" {
		s += " on behalf of " + src
	}
	return s
}

// TxSummary joins the summaries of the operations in t.
func TxSummary(t *Tx) string {
	sums := make([]string, len(t.ops))
	for i, op := range t.ops {
		sums[i] = OpSummary(op)
	}
	return strings.Join(sums, "; ")
}

type assetLike interface {
	IsNative() bool
	GetCode() string
	GetIssuer() string
}

func txnbuildAssetSummary(a assetLike) string {
	if a == nil || a.IsNative() {
		return NativeCode
	}
	return fmt.Sprintf("%s/%s", a.GetCode(), a.GetIssuer())
}
