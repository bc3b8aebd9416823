package chain

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
)

type staticHeaders struct {
	header *types.Header
	err    error
}

func (s staticHeaders) LatestHeader(context.Context) (*types.Header, error) {
	return s.header, s.err
}

func TestBlockClock(t *testing.T) {
	clock := BlockClock{Source: staticHeaders{header: &types.Header{Time: 1700000000}}}
	now, err := clock.Now(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !now.Equal(time.Unix(1700000000, 0)) {
		t.Fatalf("time mismatch: %s", now)
	}

	failing := BlockClock{Source: staticHeaders{err: errors.New("rpc down")}}
	if _, err := failing.Now(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
}
