package workers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"trtlbridge/SOLRPC"
	"trtlbridge/amqp"
	"trtlbridge/config"
	"trtlbridge/metrics"
	"trtlbridge/retry"
	"trtlbridge/types"
)

const (
	passLockName = "payout"
	// ledger writes get their own deadline, a payout already signed must be recorded
	// even when the pass runs out of time
	ledgerWriteTimeout = 10 * time.Second
)

var ErrPassInProgress = errors.New("payout pass already in progress")

// PayoutChain sends the bridged token on the destination chain.
type PayoutChain interface {
	ResolveTokenAccount(ctx context.Context, owner string) (string, error)
	SignTransfer(ctx context.Context, destAccount string, amount uint64) (*SOLRPC.SignedTransfer, error)
	Broadcast(ctx context.Context, transfer *SOLRPC.SignedTransfer) error
	WaitForConfirmation(ctx context.Context, signature string, interval time.Duration, maxAttempts int) error
	SignatureStatus(ctx context.Context, signature string) (SOLRPC.TxStatus, error)
	BlockhashExpired(ctx context.Context, lastValidBlockHeight uint64) (bool, error)
}

// Lease is a lock shared by every replica.
type Lease interface {
	AcquireLock(ctx context.Context, name string, ttl time.Duration) (string, bool, error)
	ReleaseLock(ctx context.Context, name, token string) error
}

// Ledger is the bridge record store as seen by the dispatcher.
type Ledger interface {
	FindPayable(ctx context.Context, limit int) ([]*types.BridgeRecord, error)
	MarkSubmitted(ctx context.Context, id, signature string, validUntil uint64) error
	MarkCompleted(ctx context.Context, id, signature string) error
	MarkPending(ctx context.Context, id, message string) error
	MarkFailed(ctx context.Context, id, message string) error
}

// PassResult counts what happened to the records of one pass.
type PassResult struct {
	Scanned   int `json:"scanned"`
	Completed int `json:"completed"`
	Submitted int `json:"submitted"` // signed and recorded, confirmation still pending
	Requeued  int `json:"requeued"`  // cannot land anymore, paid again next pass
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeCompleted
	outcomeSubmitted
	outcomeRequeued
	outcomeFailed
)

func (o outcome) String() string {
	switch o {
	case outcomeCompleted:
		return "completed"
	case outcomeSubmitted:
		return "submitted"
	case outcomeRequeued:
		return "requeued"
	case outcomeFailed:
		return "failed"
	default:
		return "skipped"
	}
}

func (r *PassResult) add(o outcome) {
	switch o {
	case outcomeCompleted:
		r.Completed++
	case outcomeSubmitted:
		r.Submitted++
	case outcomeRequeued:
		r.Requeued++
	case outcomeFailed:
		r.Failed++
	default:
		r.Skipped++
	}
}

// Dispatcher pays out not completed bridge records, one record at a time.
// Every payout is signed once and its signature stored before it is sent, so at most one
// transaction per record can be in flight. A record is signed again only after the chain
// proves the previous transaction can no longer land.
type Dispatcher struct {
	chain  PayoutChain
	lease  Lease
	ledger Ledger
	events amqp.Publisher
	cfg    config.PayoutConfig
	logger *zap.Logger
	now    func() time.Time

	mu sync.Mutex
}

func NewDispatcher(chain PayoutChain, lease Lease, ledger Ledger, events amqp.Publisher, cfg config.PayoutConfig, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		chain:  chain,
		lease:  lease,
		ledger: ledger,
		events: events,
		cfg:    cfg,
		logger: logger.With(zap.String("component", "dispatcher")),
		now:    time.Now,
	}
}

func (d *Dispatcher) policy() retry.Policy {
	return retry.Policy{
		MaxAttempts:    d.cfg.MaxAttempts,
		InitialBackoff: d.cfg.InitialBackoff,
		MaxBackoff:     d.cfg.MaxBackoff,
		Multiplier:     2,
	}
}

func (d *Dispatcher) writeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), ledgerWriteTimeout)
}

// RunPass scans payable records in insertion order and settles each of them.
// Only one pass runs at a time across all replicas, a concurrent call gets ErrPassInProgress.
// A record that cannot be settled never stops the pass.
func (d *Dispatcher) RunPass(ctx context.Context) (res PassResult, err error) {
	if !d.mu.TryLock() {
		metrics.PassesTotal.WithLabelValues("busy").Inc()
		return res, ErrPassInProgress
	}
	defer d.mu.Unlock()

	token, ok, err := d.lease.AcquireLock(ctx, passLockName, d.cfg.LockTTL)
	if err != nil {
		metrics.PassesTotal.WithLabelValues("error").Inc()
		return res, fmt.Errorf("cannot acquire payout lease: %w", err)
	}
	if !ok {
		metrics.PassesTotal.WithLabelValues("busy").Inc()
		return res, ErrPassInProgress
	}
	defer func() {
		// the pass context may be done already
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := d.lease.ReleaseLock(releaseCtx, passLockName, token); err != nil {
			d.logger.Warn("cannot release payout lease", zap.Error(err))
		}
	}()

	start := time.Now()
	defer func() {
		metrics.PassDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.PassesTotal.WithLabelValues("error").Inc()
		} else {
			metrics.PassesTotal.WithLabelValues("ok").Inc()
		}
	}()

	if d.cfg.PassTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.PassTimeout)
		defer cancel()
	}

	records, err := d.ledger.FindPayable(ctx, d.cfg.BatchSize)
	if err != nil {
		return res, fmt.Errorf("cannot list payable records: %w", err)
	}
	res.Scanned = len(records)
	metrics.PendingRecords.Set(float64(len(records)))

	for i, rec := range records {
		if ctx.Err() != nil {
			res.Skipped += len(records) - i
			d.logger.Warn("payout pass ran out of time", zap.Int("skipped", len(records)-i))
			break
		}

		var o outcome
		if rec.Status == types.StatusSubmitted {
			o = d.recheck(ctx, rec)
		} else {
			o = d.pay(ctx, rec)
		}
		res.add(o)
		metrics.PayoutsTotal.WithLabelValues(o.String()).Inc()
	}

	if res.Scanned > 0 {
		d.logger.Info("payout pass done",
			zap.Int("scanned", res.Scanned),
			zap.Int("completed", res.Completed),
			zap.Int("submitted", res.Submitted),
			zap.Int("requeued", res.Requeued),
			zap.Int("failed", res.Failed),
			zap.Int("skipped", res.Skipped),
			zap.Duration("took", time.Since(start)))
	}
	return res, nil
}

// recheck settles a payout signed by an earlier pass.
func (d *Dispatcher) recheck(ctx context.Context, rec *types.BridgeRecord) outcome {
	if rec.PendingTxHash == "" {
		return d.fail(ctx, rec, "submitted without a payout signature")
	}

	o := d.confirm(ctx, rec, rec.PendingTxHash)
	if o != outcomeSubmitted {
		return o
	}

	if rec.PendingValidUntil == 0 {
		// no known validity, sending again could pay twice if the first transfer lands late
		if d.cfg.SubmittedTimeout > 0 && d.now().Sub(rec.UpdatedAt) > d.cfg.SubmittedTimeout {
			return d.fail(ctx, rec, fmt.Sprintf("payout %s unconfirmed since %s", rec.PendingTxHash, rec.UpdatedAt.UTC().Format(time.RFC3339)))
		}
		return o
	}
	return d.expire(ctx, rec)
}

// expire requeues a submitted payout once it can no longer land.
func (d *Dispatcher) expire(ctx context.Context, rec *types.BridgeRecord) outcome {
	logger := d.logger.With(zap.String("id", rec.ID), zap.String("signature", rec.PendingTxHash))

	expired, err := d.chain.BlockhashExpired(ctx, rec.PendingValidUntil)
	if err != nil {
		logger.Info("cannot check payout validity", zap.Error(err))
		return outcomeSubmitted
	}
	if !expired {
		return outcomeSubmitted
	}

	// read after expiry, an unknown signature now stays unknown
	status, err := d.chain.SignatureStatus(ctx, rec.PendingTxHash)
	if err != nil {
		logger.Info("cannot check payout status", zap.Error(err))
		return outcomeSubmitted
	}
	switch status {
	case SOLRPC.TxUnknown:
		return d.requeue(ctx, rec, fmt.Sprintf("payout %s expired before landing", rec.PendingTxHash))
	case SOLRPC.TxFailed:
		return d.requeue(ctx, rec, fmt.Sprintf("payout %s failed on chain", rec.PendingTxHash))
	default:
		// landed, confirmation follows
		return outcomeSubmitted
	}
}

func (d *Dispatcher) pay(ctx context.Context, rec *types.BridgeRecord) outcome {
	logger := d.logger.With(zap.String("id", rec.ID), zap.String("sourceTxHash", rec.SourceTxHash))
	policy := d.policy()

	account, err := retry.DoValue(ctx, policy, logger, func(ctx context.Context) (string, error) {
		account, err := d.chain.ResolveTokenAccount(ctx, rec.DestinationAddress)
		if errors.Is(err, SOLRPC.ErrInvalidAddress) {
			return "", retry.Permanent(err)
		}
		return account, err
	})
	if err != nil {
		if ctx.Err() != nil {
			return outcomeSkipped
		}
		return d.fail(ctx, rec, fmt.Sprintf("cannot resolve token account of %s: %v", rec.DestinationAddress, err))
	}

	// nothing is sent yet, retrying the signing step cannot pay twice
	transfer, err := retry.DoValue(ctx, policy, logger, func(ctx context.Context) (*SOLRPC.SignedTransfer, error) {
		transfer, err := d.chain.SignTransfer(ctx, account, rec.DestinationAmount)
		if err != nil && !errors.Is(err, SOLRPC.ErrBroadcast) {
			return nil, retry.Permanent(err)
		}
		return transfer, err
	})
	if err != nil {
		if ctx.Err() != nil {
			return outcomeSkipped
		}
		return d.fail(ctx, rec, fmt.Sprintf("cannot sign payout of %d to %s: %v", rec.DestinationAmount, account, err))
	}

	wctx, cancel := d.writeContext(ctx)
	err = d.ledger.MarkSubmitted(wctx, rec.ID, transfer.Signature, transfer.LastValidBlockHeight)
	cancel()
	if err != nil {
		logger.Error("cannot record payout signature, payout not sent",
			zap.String("signature", transfer.Signature),
			zap.Error(err))
		metrics.ErrorsTotal.WithLabelValues("dispatcher", "record_submitted").Inc()
		return outcomeSkipped
	}
	rec.Status = types.StatusSubmitted
	rec.PendingTxHash = transfer.Signature
	rec.PendingValidUntil = transfer.LastValidBlockHeight
	rec.Attempts++

	// every attempt resends the same signed bytes
	err = retry.Do(ctx, policy, logger, func(ctx context.Context) error {
		err := d.chain.Broadcast(ctx, transfer)
		if err != nil && !errors.Is(err, SOLRPC.ErrBroadcast) {
			return retry.Permanent(err)
		}
		return err
	})
	if err != nil {
		// an earlier attempt may have reached the cluster anyway
		logger.Warn("payout broadcast failed", zap.String("signature", transfer.Signature), zap.Error(err))
		metrics.ErrorsTotal.WithLabelValues("dispatcher", "broadcast").Inc()
	}

	return d.confirm(ctx, rec, transfer.Signature)
}

// confirm waits for signature and moves rec to its final state when the chain has one.
func (d *Dispatcher) confirm(ctx context.Context, rec *types.BridgeRecord, signature string) outcome {
	logger := d.logger.With(zap.String("id", rec.ID), zap.String("signature", signature))

	err := d.chain.WaitForConfirmation(ctx, signature, d.cfg.ConfirmInterval, d.cfg.ConfirmMaxAttempts)
	switch {
	case err == nil:
		wctx, cancel := d.writeContext(ctx)
		defer cancel()
		if err = d.ledger.MarkCompleted(wctx, rec.ID, signature); err != nil {
			// the signature is stored, the next pass completes the record
			logger.Error("cannot complete record", zap.Error(err))
			metrics.ErrorsTotal.WithLabelValues("dispatcher", "record_completed").Inc()
			return outcomeSubmitted
		}
		rec.Status = types.StatusCompleted
		rec.Completed = true
		rec.DestinationTxHash = signature
		rec.PendingTxHash = ""
		rec.PendingValidUntil = 0

		logger.Info("payout completed", zap.Uint64("amount", rec.DestinationAmount), zap.String("to", rec.DestinationAddress))
		metrics.PayoutAmount.Observe(float64(rec.DestinationAmount))
		d.publish(wctx, amqp.KeyCompleted, rec, "")
		return outcomeCompleted

	case errors.Is(err, SOLRPC.ErrTransactionFailed):
		return d.requeue(ctx, rec, fmt.Sprintf("payout %s failed on chain", signature))

	default:
		// unconfirmed or RPC unreachable, the signature is kept for the next pass
		logger.Info("payout not confirmed yet", zap.Error(err))
		return outcomeSubmitted
	}
}

// requeue puts rec back to pending after its payout provably cannot land,
// or parks it once the attempts are used up.
func (d *Dispatcher) requeue(ctx context.Context, rec *types.BridgeRecord, reason string) outcome {
	if d.cfg.MaxAttempts > 0 && rec.Attempts >= d.cfg.MaxAttempts {
		return d.fail(ctx, rec, fmt.Sprintf("%s, %d attempts made", reason, rec.Attempts))
	}

	logger := d.logger.With(zap.String("id", rec.ID), zap.String("sourceTxHash", rec.SourceTxHash))
	logger.Warn("payout requeued", zap.String("reason", reason))

	wctx, cancel := d.writeContext(ctx)
	defer cancel()
	if err := d.ledger.MarkPending(wctx, rec.ID, appended(rec, reason)); err != nil {
		// still submitted, the next pass sees the same state again
		logger.Error("cannot requeue record", zap.Error(err))
		return outcomeSubmitted
	}
	rec.Status = types.StatusPending
	rec.PendingTxHash = ""
	rec.PendingValidUntil = 0
	rec.AppendMessage(reason)
	return outcomeRequeued
}

// fail parks rec for manual review.
func (d *Dispatcher) fail(ctx context.Context, rec *types.BridgeRecord, reason string) outcome {
	logger := d.logger.With(zap.String("id", rec.ID), zap.String("sourceTxHash", rec.SourceTxHash))
	logger.Warn("payout failed, manual review required", zap.String("reason", reason))

	wctx, cancel := d.writeContext(ctx)
	defer cancel()
	if err := d.ledger.MarkFailed(wctx, rec.ID, appended(rec, reason)); err != nil {
		logger.Error("cannot mark record failed", zap.Error(err))
		return outcomeSkipped
	}
	rec.Status = types.StatusFailed
	rec.AppendMessage(reason)
	d.publish(wctx, amqp.KeyFailed, rec, reason)
	return outcomeFailed
}

// appended is rec's message with msg joined, the store keeps the whole history.
func appended(rec *types.BridgeRecord, msg string) string {
	r := types.BridgeRecord{Message: rec.Message}
	r.AppendMessage(msg)
	return r.Message
}

func (d *Dispatcher) publish(ctx context.Context, key string, rec *types.BridgeRecord, reason string) {
	if err := d.events.Publish(ctx, key, rec, reason); err != nil {
		d.logger.Warn("cannot publish bridge event", zap.String("key", key), zap.String("id", rec.ID), zap.Error(err))
	}
}
