package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/gomodule/redigo/redis"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"trtlbridge/types"
)

const walletsAllKey = "wallets:all"

func walletKey(id string) string { return "wallet:" + id }

// cardano addresses are bech32, canonical form is lower case
func cardanoIndexKey(addr string) string { return "wallets:cardano:" + strings.ToLower(addr) }

// solana addresses are base58 and case sensitive
func solanaIndexKey(addr string) string { return "wallets:solana:" + addr }

// UpsertWalletLink stores rec and moves its address indexes to the new values.
func (s *Store) UpsertWalletLink(ctx context.Context, rec *types.WalletLink) error {
	if rec == nil {
		return errors.New("null object to store")
	}
	if rec.Cardano == "" && rec.Solana == "" {
		return errors.New("wallet link cannot have both addresses empty")
	}

	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.TsCreated == 0 {
		rec.TsCreated = time.Now().Unix()
	}

	prev, err := s.GetWalletLink(ctx, rec.ID)
	if err != nil {
		return err
	}

	recJSON, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("cannot marshal wallet link to JSON: %w", err)
	}

	conn, err := s.conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	conn.Send("MULTI")
	if prev != nil {
		if prev.Cardano != "" {
			conn.Send("SREM", cardanoIndexKey(prev.Cardano), rec.ID)
		}
		if prev.Solana != "" {
			conn.Send("SREM", solanaIndexKey(prev.Solana), rec.ID)
		}
	}
	conn.Send("SET", walletKey(rec.ID), recJSON)
	conn.Send("SADD", walletsAllKey, rec.ID)
	if rec.Cardano != "" {
		conn.Send("SADD", cardanoIndexKey(rec.Cardano), rec.ID)
	}
	if rec.Solana != "" {
		conn.Send("SADD", solanaIndexKey(rec.Solana), rec.ID)
	}

	if _, err = redis.DoContext(conn, ctx, "EXEC"); err != nil {
		s.logger.Error("error Redis EXEC", zap.Error(err))
		return err
	}

	return nil
}

// GetWalletLink returns nil without error when the link does not exist.
func (s *Store) GetWalletLink(ctx context.Context, id string) (*types.WalletLink, error) {
	conn, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	return getWalletLink(ctx, conn, id)
}

func getWalletLink(ctx context.Context, conn redis.Conn, id string) (*types.WalletLink, error) {
	raw, err := redis.Bytes(redis.DoContext(conn, ctx, "GET", walletKey(id)))
	if errors.Is(err, redis.ErrNil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var rec types.WalletLink
	if err = json.Unmarshal(raw, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// FindWalletLinks returns links matching every non-empty address given.
func (s *Store) FindWalletLinks(ctx context.Context, cardano, solana string) ([]*types.WalletLink, error) {
	var keys []interface{}
	if cardano != "" {
		keys = append(keys, cardanoIndexKey(cardano))
	}
	if solana != "" {
		keys = append(keys, solanaIndexKey(solana))
	}
	if len(keys) == 0 {
		return nil, errors.New("empty search address")
	}

	conn, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	ids, err := redis.Strings(redis.DoContext(conn, ctx, "SINTER", keys...))
	if err != nil {
		return nil, err
	}

	return loadWalletLinks(ctx, conn, ids)
}

// ListWalletLinks scans every link present in the registry.
func (s *Store) ListWalletLinks(ctx context.Context) ([]*types.WalletLink, error) {
	conn, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	var (
		cursor int64
		ids    []string
	)
	for {
		values, err := redis.Values(redis.DoContext(conn, ctx, "SSCAN", walletsAllKey, cursor))
		if err != nil {
			return nil, err
		}

		var keys []string
		if _, err = redis.Scan(values, &cursor, &keys); err != nil {
			return nil, err
		}
		ids = append(ids, keys...)

		if cursor == 0 {
			break
		}
	}

	return loadWalletLinks(ctx, conn, ids)
}

func loadWalletLinks(ctx context.Context, conn redis.Conn, ids []string) ([]*types.WalletLink, error) {
	links := make([]*types.WalletLink, 0, len(ids))
	for _, id := range ids {
		rec, err := getWalletLink(ctx, conn, id)
		if err != nil {
			return nil, err
		}
		// index can point to a link deleted meanwhile
		if rec != nil {
			links = append(links, rec)
		}
	}

	sort.Slice(links, func(i, j int) bool {
		if links[i].TsCreated != links[j].TsCreated {
			return links[i].TsCreated < links[j].TsCreated
		}
		return links[i].ID < links[j].ID
	})
	return links, nil
}

// DeleteWalletLink removes the link and its indexes, reporting whether it existed.
func (s *Store) DeleteWalletLink(ctx context.Context, id string) (bool, error) {
	prev, err := s.GetWalletLink(ctx, id)
	if err != nil || prev == nil {
		return false, err
	}

	conn, err := s.conn(ctx)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	conn.Send("MULTI")
	conn.Send("DEL", walletKey(id))
	conn.Send("SREM", walletsAllKey, id)
	if prev.Cardano != "" {
		conn.Send("SREM", cardanoIndexKey(prev.Cardano), id)
	}
	if prev.Solana != "" {
		conn.Send("SREM", solanaIndexKey(prev.Solana), id)
	}
	if _, err = redis.DoContext(conn, ctx, "EXEC"); err != nil {
		s.logger.Error("error Redis EXEC", zap.Error(err))
		return false, err
	}

	return true, nil
}
