package fetcher

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// UsersPage is one cursor page of borrowers
type UsersPage struct {
	HasMore bool
	Users   []common.Address
	LastID  string
}

// Fetcher lists borrowers page by page. Calls with the same cursor are
// idempotent and the listing eventually reports HasMore == false.
type Fetcher interface {
	FetchUsers(ctx context.Context, lastID string) (*UsersPage, error)
}

// MarketFetcher is implemented by fetchers that can also list markets
type MarketFetcher interface {
	FetchMarkets(ctx context.Context) ([]common.Address, error)
}

// StaticFetcher serves a fixed user list as a single page
type StaticFetcher struct {
	Users   []common.Address
	Markets []common.Address
}

func (s *StaticFetcher) FetchUsers(ctx context.Context, lastID string) (*UsersPage, error) {
	if lastID != "" {
		return &UsersPage{}, nil
	}
	users := make([]common.Address, len(s.Users))
	copy(users, s.Users)
	return &UsersPage{Users: users}, nil
}

func (s *StaticFetcher) FetchMarkets(ctx context.Context) ([]common.Address, error) {
	return s.Markets, nil
}
