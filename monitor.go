package kinnet

import (
	"context"
	"sync"
	"time"

	"github.com/stellar/go/support/log"
)

const maxMonitorBackoff = 60 * time.Second

// PaymentCallback is called once per payment received by a monitored
// account.
type PaymentCallback func(source AddressStr, payment PaymentRecord)

// PaymentMonitor streams payments to one account until cancelled.
type PaymentMonitor struct {
	address  AddressStr
	ledger   LedgerClient
	callback PaymentCallback
	backoff  time.Duration
	log      *log.Entry

	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	cursor string
	err    error
}

// MonitorPayments starts calling callback for every payment to the
// account, beginning with the next one. Stop it with Cancel.
func (a *Account) MonitorPayments(ctx context.Context, callback PaymentCallback) (*PaymentMonitor, error) {
	return StartPaymentMonitor(ctx, a.ledger, a.Address(), a.cfg.MonitorBackoff.Duration, callback, a.channels.log)
}

// StartPaymentMonitor streams payments to address from cursor "now". A
// failed stream is reopened after backoff, doubling up to a minute.
func StartPaymentMonitor(ctx context.Context, ledger LedgerClient, address AddressStr, backoff time.Duration, callback PaymentCallback, logger *log.Entry) (*PaymentMonitor, error) {
	if callback == nil {
		return nil, invalidParam("callback", "nil payment callback")
	}
	if backoff <= 0 {
		backoff = time.Second
	}
	if logger == nil {
		logger = log.DefaultLogger
	}
	ctx, cancel := context.WithCancel(ctx)
	pm := &PaymentMonitor{
		address:  address,
		ledger:   ledger,
		callback: callback,
		backoff:  backoff,
		log:      logger.WithField("monitor", address.String()),
		cancel:   cancel,
		done:     make(chan struct{}),
		cursor:   "now",
	}
	go pm.run(ctx)
	return pm, nil
}

func (pm *PaymentMonitor) run(ctx context.Context) {
	defer close(pm.done)

	backoff := pm.backoff
	for {
		err := pm.ledger.StreamPayments(ctx, pm.address, pm.Cursor(), func(rec PaymentRecord) {
			backoff = pm.backoff
			pm.mu.Lock()
			pm.cursor = rec.PagingToken
			pm.mu.Unlock()
			if rec.To != pm.address {
				return
			}
			pm.callback(rec.From, rec)
		})
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			// stream closed by the server
			err = context.Canceled
		}
		pm.mu.Lock()
		pm.err = err
		pm.mu.Unlock()
		pm.log.WithField("retry_in", backoff.String()).Warnf("payment stream failed: %v", err)

		t := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
		backoff *= 2
		if backoff > maxMonitorBackoff {
			backoff = maxMonitorBackoff
		}
	}
}

// Cursor returns the paging token of the last payment seen.
func (pm *PaymentMonitor) Cursor() string {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return pm.cursor
}

// Err returns the last stream error, if any.
func (pm *PaymentMonitor) Err() error {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return pm.err
}

// Done is closed once the monitor has stopped.
func (pm *PaymentMonitor) Done() <-chan struct{} { return pm.done }

// Cancel stops the monitor and waits for it to finish.
func (pm *PaymentMonitor) Cancel() {
	pm.cancel()
	<-pm.done
}
