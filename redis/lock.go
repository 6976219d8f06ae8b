package redis

import (
	"context"
	"errors"
	"time"

	"github.com/gomodule/redigo/redis"
	"github.com/google/uuid"
)

// only the holder of the token may release the lease
var releaseScript = redis.NewScript(1, `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

func lockKey(name string) string { return "lock:" + name }

// AcquireLock takes a lease on name for ttl. ok is false when someone else holds it.
func (s *Store) AcquireLock(ctx context.Context, name string, ttl time.Duration) (token string, ok bool, err error) {
	conn, err := s.conn(ctx)
	if err != nil {
		return "", false, err
	}
	defer conn.Close()

	token = uuid.New().String()
	_, err = redis.String(redis.DoContext(conn, ctx, "SET", lockKey(name), token, "NX", "PX", ttl.Milliseconds()))
	if errors.Is(err, redis.ErrNil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return token, true, nil
}

func (s *Store) ReleaseLock(ctx context.Context, name, token string) error {
	conn, err := s.conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	_, err = releaseScript.Do(conn, lockKey(name), token)
	return err
}
