package SOLRPC

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"
)

// ErrBroadcast marks failures to reach the cluster while signing or sending.
var ErrBroadcast = errors.New("broadcast failed")

func (c *Client) accountExists(ctx context.Context, account solana.PublicKey) (bool, error) {
	return WithClient(c, func(client *rpc.Client) (bool, error) {
		_, err := client.GetAccountInfoWithOpts(ctx, account, &rpc.GetAccountInfoOpts{Commitment: rpc.CommitmentConfirmed})
		if errors.Is(err, rpc.ErrNotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		return true, nil
	})
}

// ResolveTokenAccount returns the owner's associated token account for the bridged mint,
// creating it at the application's expense when missing.
func (c *Client) ResolveTokenAccount(ctx context.Context, owner string) (string, error) {
	ownerKey, err := ParseAddress(owner)
	if err != nil {
		return "", err
	}
	ata, _, err := solana.FindAssociatedTokenAddress(ownerKey, c.mint)
	if err != nil {
		return "", fmt.Errorf("%w: cannot derive token account of %s: %v", ErrInvalidAddress, owner, err)
	}

	exists, err := c.accountExists(ctx, ata)
	if err != nil {
		return "", fmt.Errorf("cannot read token account %s: %w", ata, err)
	}
	if exists {
		return ata.String(), nil
	}

	c.logger.Info("creating associated token account", zap.String("owner", owner), zap.String("account", ata.String()))
	ix := associatedtokenaccount.NewCreateInstruction(c.key.PublicKey(), ownerKey, c.mint).Build()
	sig, err := c.signAndSend(ctx, ix)
	if err != nil {
		return "", fmt.Errorf("cannot create token account %s: %w", ata, err)
	}
	if err = c.WaitForConfirmation(ctx, sig, c.confirmInterval, c.confirmAttempts); err != nil {
		return "", fmt.Errorf("token account %s creation %s: %w", ata, sig, err)
	}
	return ata.String(), nil
}

// SignedTransfer is a transaction signed once. Its signature identifies it on chain and
// the same bytes can be sent again until the cluster passes LastValidBlockHeight.
type SignedTransfer struct {
	Signature            string
	LastValidBlockHeight uint64

	tx *solana.Transaction
}

// SignTransfer builds and signs a transfer of amount smallest units from the application's
// token account to destAccount. Nothing is sent.
func (c *Client) SignTransfer(ctx context.Context, destAccount string, amount uint64) (*SignedTransfer, error) {
	dest, err := ParseAddress(destAccount)
	if err != nil {
		return nil, err
	}
	source, err := c.AppTokenAccount()
	if err != nil {
		return nil, err
	}

	ix := token.NewTransferCheckedInstruction(
		amount,
		c.decimals,
		source,
		c.mint,
		dest,
		c.key.PublicKey(),
		[]solana.PublicKey{},
	).Build()

	return c.sign(ctx, ix)
}

// Broadcast sends the signed bytes of transfer. Calling it again resends the same transaction,
// the cluster lands it at most once.
func (c *Client) Broadcast(ctx context.Context, transfer *SignedTransfer) error {
	if transfer == nil || transfer.tx == nil {
		return errors.New("transfer was not signed by this client")
	}

	sig, err := WithClient(c, func(client *rpc.Client) (solana.Signature, error) {
		return client.SendTransactionWithOpts(ctx, transfer.tx, rpc.TransactionOpts{
			SkipPreflight:       false,
			PreflightCommitment: rpc.CommitmentConfirmed,
		})
	})
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrBroadcast, transfer.Signature, err)
	}
	if sig.String() != transfer.Signature {
		c.logger.Warn("node returned another signature", zap.String("signature", transfer.Signature), zap.String("returned", sig.String()))
	}
	c.logger.Info("transaction sent", zap.String("signature", transfer.Signature))
	return nil
}

// BlockhashExpired reports whether the finalized block height is past lastValidBlockHeight.
// A transaction signed with that validity and still unknown afterwards can never land.
func (c *Client) BlockhashExpired(ctx context.Context, lastValidBlockHeight uint64) (bool, error) {
	height, err := WithClient(c, func(client *rpc.Client) (uint64, error) {
		return client.GetBlockHeight(ctx, rpc.CommitmentFinalized)
	})
	if err != nil {
		return false, fmt.Errorf("cannot get block height: %w", err)
	}
	return height > lastValidBlockHeight, nil
}

func (c *Client) sign(ctx context.Context, instructions ...solana.Instruction) (*SignedTransfer, error) {
	latest, err := WithClient(c, func(client *rpc.Client) (*rpc.GetLatestBlockhashResult, error) {
		res, err := client.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
		if err == nil && (res == nil || res.Value == nil) {
			err = errors.New("empty blockhash response")
		}
		return res, err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: cannot get latest blockhash: %v", ErrBroadcast, err)
	}

	payer := c.key.PublicKey()
	tx, err := solana.NewTransaction(instructions, latest.Value.Blockhash, solana.TransactionPayer(payer))
	if err != nil {
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}
	sigs, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(payer) {
			return &c.key
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}

	return &SignedTransfer{
		Signature:            sigs[0].String(),
		LastValidBlockHeight: latest.Value.LastValidBlockHeight,
		tx:                   tx,
	}, nil
}

func (c *Client) signAndSend(ctx context.Context, instructions ...solana.Instruction) (string, error) {
	signed, err := c.sign(ctx, instructions...)
	if err != nil {
		return "", err
	}
	if err = c.Broadcast(ctx, signed); err != nil {
		return "", err
	}
	return signed.Signature, nil
}
