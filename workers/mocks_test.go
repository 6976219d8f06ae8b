package workers

import (
	"context"
	"sync"
	"time"

	"trtlbridge/SOLRPC"
	"trtlbridge/blockfrost"
	"trtlbridge/types"
)

// MockIndexer is a mock implementation of Indexer
type MockIndexer struct {
	TransactionUTXOsFunc func(ctx context.Context, txHash string) (*types.TxUTXOs, error)
	AssetFunc            func(ctx context.Context, assetID string) (*blockfrost.Asset, error)
}

func (m *MockIndexer) TransactionUTXOs(ctx context.Context, txHash string) (*types.TxUTXOs, error) {
	if m.TransactionUTXOsFunc != nil {
		return m.TransactionUTXOsFunc(ctx, txHash)
	}
	return nil, nil
}

func (m *MockIndexer) Asset(ctx context.Context, assetID string) (*blockfrost.Asset, error) {
	if m.AssetFunc != nil {
		return m.AssetFunc(ctx, assetID)
	}
	return nil, nil
}

// MockWalletFinder is a mock implementation of WalletFinder
type MockWalletFinder struct {
	FindWalletLinksFunc func(ctx context.Context, cardano, solana string) ([]*types.WalletLink, error)
}

func (m *MockWalletFinder) FindWalletLinks(ctx context.Context, cardano, solana string) ([]*types.WalletLink, error) {
	if m.FindWalletLinksFunc != nil {
		return m.FindWalletLinksFunc(ctx, cardano, solana)
	}
	return nil, nil
}

// MockChain is a mock implementation of PayoutChain
type MockChain struct {
	ResolveTokenAccountFunc func(ctx context.Context, owner string) (string, error)
	SignTransferFunc        func(ctx context.Context, destAccount string, amount uint64) (*SOLRPC.SignedTransfer, error)
	BroadcastFunc           func(ctx context.Context, transfer *SOLRPC.SignedTransfer) error
	WaitForConfirmationFunc func(ctx context.Context, signature string, interval time.Duration, maxAttempts int) error
	SignatureStatusFunc     func(ctx context.Context, signature string) (SOLRPC.TxStatus, error)
	BlockhashExpiredFunc    func(ctx context.Context, lastValidBlockHeight uint64) (bool, error)
}

func (m *MockChain) ResolveTokenAccount(ctx context.Context, owner string) (string, error) {
	if m.ResolveTokenAccountFunc != nil {
		return m.ResolveTokenAccountFunc(ctx, owner)
	}
	return "ata-" + owner, nil
}

func (m *MockChain) SignTransfer(ctx context.Context, destAccount string, amount uint64) (*SOLRPC.SignedTransfer, error) {
	if m.SignTransferFunc != nil {
		return m.SignTransferFunc(ctx, destAccount, amount)
	}
	return &SOLRPC.SignedTransfer{Signature: "sig-" + destAccount, LastValidBlockHeight: 100}, nil
}

func (m *MockChain) Broadcast(ctx context.Context, transfer *SOLRPC.SignedTransfer) error {
	if m.BroadcastFunc != nil {
		return m.BroadcastFunc(ctx, transfer)
	}
	return nil
}

func (m *MockChain) WaitForConfirmation(ctx context.Context, signature string, interval time.Duration, maxAttempts int) error {
	if m.WaitForConfirmationFunc != nil {
		return m.WaitForConfirmationFunc(ctx, signature, interval, maxAttempts)
	}
	return nil
}

func (m *MockChain) SignatureStatus(ctx context.Context, signature string) (SOLRPC.TxStatus, error) {
	if m.SignatureStatusFunc != nil {
		return m.SignatureStatusFunc(ctx, signature)
	}
	return SOLRPC.TxUnknown, nil
}

func (m *MockChain) BlockhashExpired(ctx context.Context, lastValidBlockHeight uint64) (bool, error) {
	if m.BlockhashExpiredFunc != nil {
		return m.BlockhashExpiredFunc(ctx, lastValidBlockHeight)
	}
	return false, nil
}

// MockLease is a mock implementation of Lease
type MockLease struct {
	AcquireLockFunc func(ctx context.Context, name string, ttl time.Duration) (string, bool, error)
	ReleaseLockFunc func(ctx context.Context, name, token string) error
}

func (m *MockLease) AcquireLock(ctx context.Context, name string, ttl time.Duration) (string, bool, error) {
	if m.AcquireLockFunc != nil {
		return m.AcquireLockFunc(ctx, name, ttl)
	}
	return "token", true, nil
}

func (m *MockLease) ReleaseLock(ctx context.Context, name, token string) error {
	if m.ReleaseLockFunc != nil {
		return m.ReleaseLockFunc(ctx, name, token)
	}
	return nil
}

// recordingPublisher keeps the routing keys of published events.
type recordingPublisher struct {
	mu   sync.Mutex
	keys []string
	ids  []string
}

func (p *recordingPublisher) Publish(_ context.Context, routingKey string, rec *types.BridgeRecord, _ string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, routingKey)
	p.ids = append(p.ids, rec.ID)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) published() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.keys...)
}
