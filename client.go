package kinnet

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stellar/go/clients/horizonclient"
	hProtocol "github.com/stellar/go/protocols/horizon"
	"github.com/stellar/go/protocols/horizon/base"
	"github.com/stellar/go/protocols/horizon/operations"
)

// HorizonAPI is the part of horizonclient.ClientInterface that HorizonLedger
// uses. *horizonclient.Client and *horizonclient.MockClient implement it.
type HorizonAPI interface {
	AccountDetail(request horizonclient.AccountRequest) (hProtocol.Account, error)
	SubmitTransactionXDR(transactionXdr string) (hProtocol.Transaction, error)
	StreamPayments(ctx context.Context, request horizonclient.OperationRequest, handler horizonclient.OperationHandler) error
}

// HorizonLedger is a LedgerClient backed by a horizon server.
type HorizonLedger struct {
	url    string
	client HorizonAPI
}

var _ LedgerClient = (*HorizonLedger)(nil)

// NewHorizonLedger creates a HorizonLedger talking to the horizon server at url.
func NewHorizonLedger(url string) *HorizonLedger {
	return &HorizonLedger{
		url:    url,
		client: &horizonclient.Client{HorizonURL: url},
	}
}

// NewHorizonLedgerWithClient wraps an existing horizon client.
func NewHorizonLedgerWithClient(client HorizonAPI) *HorizonLedger {
	h := &HorizonLedger{client: client}
	if hc, ok := client.(*horizonclient.Client); ok {
		h.url = hc.HorizonURL
	}
	return h
}

// URL returns the horizon url, if known.
func (h *HorizonLedger) URL() string { return h.url }

func (h *HorizonLedger) loadAccount(ctx context.Context, address AddressStr) (hProtocol.Account, error) {
	if err := ctx.Err(); err != nil {
		return hProtocol.Account{}, err
	}
	acct, err := h.client.AccountDetail(horizonclient.AccountRequest{AccountID: address.String()})
	if err != nil {
		return hProtocol.Account{}, errMapAccount(err)
	}
	return acct, nil
}

// AccountSequence implements LedgerClient.
func (h *HorizonLedger) AccountSequence(ctx context.Context, address AddressStr) (int64, error) {
	acct, err := h.loadAccount(ctx, address)
	if err != nil {
		return 0, err
	}
	seq, err := acct.GetSequenceNumber()
	if err != nil {
		return 0, errors.Wrapf(err, "parse sequence of %s", address)
	}
	return seq, nil
}

// AccountBalances implements LedgerClient.
func (h *HorizonLedger) AccountBalances(ctx context.Context, address AddressStr) (Balances, error) {
	data, err := h.AccountData(ctx, address)
	if err != nil {
		return nil, err
	}
	res := make(Balances, len(data.Balances))
	for _, b := range data.Balances {
		res[b.Asset.BalanceKey()] = b.Balance
	}
	return res, nil
}

// AccountData implements LedgerClient.
func (h *HorizonLedger) AccountData(ctx context.Context, address AddressStr) (*AccountData, error) {
	acct, err := h.loadAccount(ctx, address)
	if err != nil {
		return nil, err
	}
	seq, err := acct.GetSequenceNumber()
	if err != nil {
		return nil, errors.Wrapf(err, "parse sequence of %s", address)
	}
	data := &AccountData{
		ID:            AddressStr(acct.AccountID),
		Sequence:      seq,
		SubentryCount: acct.SubentryCount,
		Data:          acct.Data,
		Thresholds: [3]byte{
			acct.Thresholds.LowThreshold,
			acct.Thresholds.MedThreshold,
			acct.Thresholds.HighThreshold,
		},
	}
	for _, s := range acct.Signers {
		data.Signers = append(data.Signers, AccountSigner{Key: s.Key, Weight: s.Weight})
	}
	for _, b := range acct.Balances {
		asset, ok := assetFromBase(b.Asset)
		if !ok {
			// liquidity pool shares
			continue
		}
		amt, err := decimal.NewFromString(b.Balance)
		if err != nil {
			return nil, errors.Wrapf(err, "parse balance %q of %s", b.Balance, address)
		}
		data.Balances = append(data.Balances, AccountBalance{Asset: asset, Balance: amt, Limit: b.Limit})
	}
	return data, nil
}

// AccountExists implements LedgerClient.
func (h *HorizonLedger) AccountExists(ctx context.Context, address AddressStr) (bool, error) {
	_, err := h.loadAccount(ctx, address)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ErrAccountNotFound) {
		return false, nil
	}
	return false, err
}

// SubmitTransaction implements LedgerClient.
func (h *HorizonLedger) SubmitTransaction(ctx context.Context, signed string) (SubmitResult, error) {
	if err := ctx.Err(); err != nil {
		return SubmitResult{}, &TransactionFailedError{Err: err}
	}
	tx, err := h.client.SubmitTransactionXDR(signed)
	if err != nil {
		return SubmitResult{}, errMapSubmit(err)
	}
	return SubmitResult{Hash: tx.Hash, Ledger: tx.Ledger}, nil
}

// StreamPayments implements LedgerClient.
func (h *HorizonLedger) StreamPayments(ctx context.Context, address AddressStr, cursor string, handler func(PaymentRecord)) error {
	req := horizonclient.OperationRequest{
		ForAccount: address.String(),
		Cursor:     cursor,
	}
	err := h.client.StreamPayments(ctx, req, func(op operations.Operation) {
		if rec, ok := paymentRecord(op); ok {
			handler(rec)
		}
	})
	if err != nil {
		return errors.Wrapf(err, "stream payments of %s", address)
	}
	return nil
}

func paymentRecord(op operations.Operation) (PaymentRecord, bool) {
	switch o := op.(type) {
	case operations.Payment:
		if !o.Base.TransactionSuccessful {
			return PaymentRecord{}, false
		}
		asset, ok := assetFromBase(o.Asset)
		if !ok {
			return PaymentRecord{}, false
		}
		return PaymentRecord{
			ID:              o.Base.ID,
			PagingToken:     o.Base.PT,
			TransactionHash: o.Base.TransactionHash,
			Type:            o.Base.Type,
			From:            AddressStr(o.From),
			To:              AddressStr(o.To),
			Asset:           asset,
			Amount:          o.Amount,
			CreatedAt:       o.Base.LedgerCloseTime,
		}, true
	case operations.CreateAccount:
		if !o.Base.TransactionSuccessful {
			return PaymentRecord{}, false
		}
		return PaymentRecord{
			ID:              o.Base.ID,
			PagingToken:     o.Base.PT,
			TransactionHash: o.Base.TransactionHash,
			Type:            o.Base.Type,
			From:            AddressStr(o.Funder),
			To:              AddressStr(o.Account),
			Asset:           NativeAsset(),
			Amount:          o.StartingBalance,
			CreatedAt:       o.Base.LedgerCloseTime,
		}, true
	}
	return PaymentRecord{}, false
}

func assetFromBase(a base.Asset) (Asset, bool) {
	switch a.Type {
	case "native":
		return NativeAsset(), true
	case "credit_alphanum4", "credit_alphanum12":
		return Asset{Code: a.Code, Issuer: a.Issuer}, true
	}
	return Asset{}, false
}

func horizonError(err error) *horizonclient.Error {
	var herr *horizonclient.Error
	if errors.As(err, &herr) {
		return herr
	}
	return nil
}

func errMapAccount(err error) error {
	if herr := horizonError(err); herr != nil && herr.Problem.Status == http.StatusNotFound {
		return ErrAccountNotFound
	}
	return errors.Wrap(err, "horizon account request")
}

// resultCodes mirrors the result_codes extra of a transaction_failed problem.
type resultCodes struct {
	TransactionCode      string   `json:"transaction"`
	InnerTransactionCode string   `json:"inner_transaction"`
	OperationCodes       []string `json:"operations"`
}

func errMapSubmit(err error) error {
	herr := horizonError(err)
	if herr == nil {
		return &TransactionFailedError{Err: err}
	}
	if rc, rerr := herr.ResultCodes(); rerr == nil && rc != nil {
		txCode := rc.TransactionCode
		if rc.InnerTransactionCode != "" {
			txCode = rc.InnerTransactionCode
		}
		return TranslateResultCodes(txCode, rc.OperationCodes)
	}
	// problems without a type, e.g. from proxies
	raw, ok := herr.Problem.Extras["result_codes"]
	if !ok {
		return &TransactionFailedError{Err: err}
	}
	b, merr := json.Marshal(raw)
	if merr != nil {
		return &TransactionFailedError{Err: err}
	}
	var codes resultCodes
	if uerr := json.Unmarshal(b, &codes); uerr != nil {
		return &TransactionFailedError{Err: err}
	}
	txCode := codes.TransactionCode
	if codes.InnerTransactionCode != "" {
		txCode = codes.InnerTransactionCode
	}
	return TranslateResultCodes(txCode, codes.OperationCodes)
}

// TranslateResultCodes maps ledger result codes to the errors in errors.go.
func TranslateResultCodes(txCode string, opCodes []string) error {
	switch txCode {
	case "tx_insufficient_balance":
		return errors.Wrap(ErrChannelUnderfunded, txCode)
	case "tx_no_source_account", "tx_no_account":
		return errors.Wrap(ErrAccountNotFound, txCode)
	case "tx_failed":
		for _, op := range opCodes {
			switch op {
			case "op_no_destination", "op_no_account":
				return errors.Wrap(ErrAccountNotFound, op)
			case "op_no_trust", "op_src_no_trust", "op_not_authorized", "op_src_not_authorized", "op_no_issuer":
				return errors.Wrap(ErrAccountNotActivated, op)
			case "op_underfunded", "op_low_reserve":
				return errors.Wrap(ErrLowBalance, op)
			case "op_already_exists":
				return errors.Wrap(ErrAccountExists, op)
			}
		}
	}
	return &TransactionFailedError{TxCode: txCode, OpCodes: opCodes}
}
