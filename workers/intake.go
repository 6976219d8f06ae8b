package workers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"trtlbridge/SOLRPC"
	"trtlbridge/amqp"
	"trtlbridge/apperrors"
	"trtlbridge/blockfrost"
	"trtlbridge/config"
	"trtlbridge/metrics"
	"trtlbridge/mongo"
	"trtlbridge/retry"
	"trtlbridge/settlement"
	"trtlbridge/types"
)

var txHashRe = regexp.MustCompile(`^[0-9a-f]{64}$`)

// Indexer resolves Cardano transactions and asset supply.
type Indexer interface {
	TransactionUTXOs(ctx context.Context, txHash string) (*types.TxUTXOs, error)
	Asset(ctx context.Context, assetID string) (*blockfrost.Asset, error)
}

// WalletFinder looks up linked wallets by address.
type WalletFinder interface {
	FindWalletLinks(ctx context.Context, cardano, solana string) ([]*types.WalletLink, error)
}

// RecordInserter stores bridge records idempotently on their source hash.
type RecordInserter interface {
	FindBySourceTxHash(ctx context.Context, txHash string) (*types.BridgeRecord, error)
	InsertIfAbsent(ctx context.Context, rec *types.BridgeRecord) (*types.BridgeRecord, bool, error)
}

// Intake turns a submitted Cardano transaction into a pending bridge record.
type Intake struct {
	indexer Indexer
	wallets WalletFinder
	records RecordInserter
	events  amqp.Publisher
	bridge  config.BridgeConfig
	policy  retry.Policy
	logger  *zap.Logger
}

func NewIntake(indexer Indexer, wallets WalletFinder, records RecordInserter, events amqp.Publisher, bridge config.BridgeConfig, policy retry.Policy, logger *zap.Logger) *Intake {
	return &Intake{
		indexer: indexer,
		wallets: wallets,
		records: records,
		events:  events,
		bridge:  bridge,
		policy:  policy,
		logger:  logger.With(zap.String("component", "intake")),
	}
}

// Submit validates txHash and records its payout. A hash that was already submitted
// returns the existing record with created=false.
func (in *Intake) Submit(ctx context.Context, txHash string) (rec *types.BridgeRecord, created bool, err error) {
	defer func() {
		switch {
		case err == nil && created:
			metrics.SubmissionsTotal.WithLabelValues("created").Inc()
		case err == nil:
			metrics.SubmissionsTotal.WithLabelValues("duplicate").Inc()
		case apperrors.Is(err, apperrors.CategoryDataError):
			metrics.SubmissionsTotal.WithLabelValues("rejected").Inc()
		default:
			metrics.SubmissionsTotal.WithLabelValues("error").Inc()
		}
	}()

	txHash = strings.ToLower(strings.TrimSpace(txHash))
	if !txHashRe.MatchString(txHash) {
		return nil, false, apperrors.BadRequest(nil, "Invalid transaction hash")
	}

	existing, err := in.records.FindBySourceTxHash(ctx, txHash)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, mongo.ErrNotFound) {
		return nil, false, apperrors.General(err)
	}

	utxos, err := retry.DoValue(ctx, in.policy, in.logger, func(ctx context.Context) (*types.TxUTXOs, error) {
		return indexerCall(in.indexer.TransactionUTXOs(ctx, txHash))
	})
	if err != nil {
		return nil, false, indexerError(err, "Transaction not found yet, try again later")
	}

	match, err := settlement.MatchSettlement(utxos.Inputs, utxos.Outputs, in.bridge.ReceivingAddress, in.bridge.CardanoAssetID)
	if err != nil {
		var rej *settlement.Rejection
		if errors.As(err, &rej) {
			return nil, false, apperrors.BadRequest(err, rej.Reason)
		}
		return nil, false, apperrors.General(err)
	}

	solAddress, err := in.linkedWallet(ctx, match.Sender)
	if err != nil {
		return nil, false, err
	}

	sourceCirculating, err := in.cardanoCirculating(ctx)
	if err != nil {
		return nil, false, err
	}
	conv := types.Conversion{
		SourceDecimals:    in.bridge.CardanoDecimals,
		DestDecimals:      in.bridge.SolanaDecimals,
		SourceCirculating: sourceCirculating,
		DestCirculating:   in.bridge.SolanaCirculating,
	}
	destAmount, err := settlement.Convert(match.Amount, conv.SourceDecimals, conv.DestDecimals, conv.SourceCirculating, conv.DestCirculating)
	switch {
	case errors.Is(err, settlement.ErrConversionOverflow):
		return nil, false, apperrors.BadRequest(err, "TX amount cannot be bridged")
	case err != nil:
		return nil, false, apperrors.General(err)
	case destAmount == 0:
		return nil, false, apperrors.BadRequest(nil, "TX amount is too small to bridge")
	}

	rec, created, err = in.records.InsertIfAbsent(ctx, &types.BridgeRecord{
		SourceTxHash:       txHash,
		SourceAddress:      match.Sender,
		SourceAmount:       match.Amount,
		DestinationAddress: solAddress,
		DestinationAmount:  destAmount,
		Conversion:         conv,
	})
	if err != nil {
		return nil, false, apperrors.General(err)
	}

	if created {
		in.logger.Info("bridge record created",
			zap.String("id", rec.ID),
			zap.String("sourceTxHash", txHash),
			zap.String("sender", match.Sender),
			zap.Uint64("sourceAmount", match.Amount),
			zap.Uint64("destinationAmount", destAmount))
		if err := in.events.Publish(ctx, amqp.KeyCreated, rec, ""); err != nil {
			in.logger.Warn("cannot publish created event", zap.String("id", rec.ID), zap.Error(err))
		}
	}
	return rec, created, nil
}

func (in *Intake) linkedWallet(ctx context.Context, sender string) (string, error) {
	links, err := in.wallets.FindWalletLinks(ctx, sender, "")
	if err != nil {
		return "", apperrors.Temporary(err, "Wallet registry temporarily unavailable")
	}
	if len(links) > 1 {
		return "", apperrors.BadRequest(nil, "Sender has too many linked wallets")
	}
	if len(links) == 0 || links[0].Solana == "" {
		return "", apperrors.BadRequest(nil, "Sender does not have a linked wallet")
	}
	if _, err := SOLRPC.ParseAddress(links[0].Solana); err != nil {
		return "", apperrors.BadRequest(err, "Sender's linked Solana wallet is invalid")
	}
	return links[0].Solana, nil
}

func (in *Intake) cardanoCirculating(ctx context.Context) (uint64, error) {
	if !in.bridge.LiveCardanoSupply {
		return in.bridge.CardanoCirculating, nil
	}

	asset, err := retry.DoValue(ctx, in.policy, in.logger, func(ctx context.Context) (*blockfrost.Asset, error) {
		return indexerCall(in.indexer.Asset(ctx, in.bridge.CardanoAssetID))
	})
	if err != nil {
		return 0, indexerError(err, "Bridged asset not found")
	}
	// the indexer reports smallest units, Convert takes whole tokens
	return settlement.WholeTokens(asset.Quantity, in.bridge.CardanoDecimals), nil
}

// indexerCall marks indexer errors that retrying cannot fix as permanent.
func indexerCall[T any](v T, err error) (T, error) {
	if err != nil && !blockfrost.IsTransient(err) && !errors.Is(err, blockfrost.ErrNotFound) {
		return v, retry.Permanent(err)
	}
	return v, err
}

func indexerError(err error, notFoundMessage string) error {
	var apiErr *blockfrost.APIError
	switch {
	case errors.Is(err, blockfrost.ErrNotFound):
		return apperrors.Temporary(err, notFoundMessage)
	case blockfrost.IsTransient(err), errors.Is(err, context.DeadlineExceeded):
		return apperrors.Temporary(err, "Cardano indexer temporarily unavailable")
	case errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusBadRequest:
		return apperrors.BadRequest(err, "Invalid transaction hash")
	}
	return apperrors.General(fmt.Errorf("indexer: %w", err))
}
