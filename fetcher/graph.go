package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/liquidator/types"
)

const (
	contentTypeJSON  = "application/json"
	DefaultBatchSize = 1000
)

// graphQuery is a GraphQL document and the top level field holding its rows
type graphQuery struct {
	name  string
	field string
	text  string
}

var (
	accountsQuery = graphQuery{
		name:  "accounts",
		field: "accounts",
		text: `query Accounts($first: Int, $lastId: String) {
  accounts(
    where: {positionCount_gt: 0, openPositionCount_gt: 0, id_gt: $lastId}
    orderBy: id
    orderDirection: asc
    first: $first
  ) {
    id
  }
}`,
	}

	usersQuery = graphQuery{
		name:  "users",
		field: "users",
		text: `query Users($first: Int, $lastId: String) {
  users(
    where: {id_gt: $lastId, borrowHistory_: {amount_gt: "0"}}
    orderBy: id
    orderDirection: asc
    first: $first
  ) {
    id
  }
}`,
	}

	marketsQuery = graphQuery{
		name:  "markets",
		field: "markets",
		text: `query Markets {
  markets(where: {isActive: true}) {
    id
  }
}`,
	}

	poolsQuery = graphQuery{
		name:  "pools",
		field: "pools",
		text: `query Pools {
  pools {
    id
  }
}`,
	}
)

type graphRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables,omitempty"`
}

type graphResponse struct {
	Data   map[string]json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

type graphEntity struct {
	ID string `json:"id"`
}

// GraphFetcher pages borrowers out of a subgraph. Each query has a fallback
// query against an alternative schema that is tried once on failure.
type GraphFetcher struct {
	httpClient *http.Client
	url        string
	batchSize  int
	logger     *zap.Logger
}

// NewGraphFetcher creates a fetcher for the subgraph at url
func NewGraphFetcher(url string, batchSize int, logger *zap.Logger) (*GraphFetcher, error) {
	if url == "" {
		return nil, fmt.Errorf("graph url cannot be empty")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &GraphFetcher{
		httpClient: &http.Client{
			Timeout: time.Second * 30,
		},
		url:       url,
		batchSize: batchSize,
		logger:    logger,
	}, nil
}

// FetchUsers returns the page of borrowers after lastID
func (f *GraphFetcher) FetchUsers(ctx context.Context, lastID string) (*UsersPage, error) {
	variables := map[string]interface{}{
		"lastId": lastID,
		"first":  f.batchSize,
	}
	rows, err := f.queryWithFallback(ctx, accountsQuery, usersQuery, variables)
	if err != nil {
		return nil, err
	}

	page := &UsersPage{
		HasMore: len(rows) == f.batchSize,
		Users:   make([]common.Address, 0, len(rows)),
	}
	if len(rows) > 0 {
		page.LastID = rows[len(rows)-1].ID
	}
	for _, row := range rows {
		if !common.IsHexAddress(row.ID) {
			f.logger.Debug("Skipping non-address user id", zap.String("id", row.ID))
			continue
		}
		page.Users = append(page.Users, common.HexToAddress(row.ID))
	}
	return page, nil
}

// FetchMarkets lists the active markets of the subgraph
func (f *GraphFetcher) FetchMarkets(ctx context.Context) ([]common.Address, error) {
	rows, err := f.queryWithFallback(ctx, marketsQuery, poolsQuery, nil)
	if err != nil {
		return nil, err
	}

	markets := make([]common.Address, 0, len(rows))
	for _, row := range rows {
		// composite ids are "<market>-<pool>"
		id := strings.SplitN(row.ID, "-", 2)[0]
		if !common.IsHexAddress(id) {
			f.logger.Debug("Skipping non-address market id", zap.String("id", row.ID))
			continue
		}
		markets = append(markets, common.HexToAddress(id))
	}
	return markets, nil
}

func (f *GraphFetcher) queryWithFallback(ctx context.Context, primary, fallback graphQuery, variables map[string]interface{}) ([]graphEntity, error) {
	rows, err := f.query(ctx, primary, variables)
	if err == nil {
		return rows, nil
	}
	if ctx.Err() != nil {
		return nil, &types.DataSourceError{Query: primary.name, Err: err}
	}

	f.logger.Warn("Graph query failed, trying fallback",
		zap.String("query", primary.name),
		zap.String("fallback", fallback.name),
		zap.Error(err))

	rows, fallbackErr := f.query(ctx, fallback, variables)
	if fallbackErr != nil {
		return nil, &types.DataSourceError{
			Query: fallback.name,
			Err:   errors.Join(err, fallbackErr),
		}
	}
	return rows, nil
}

func (f *GraphFetcher) query(ctx context.Context, q graphQuery, variables map[string]interface{}) ([]graphEntity, error) {
	payload, err := json.Marshal(graphRequest{Query: q.text, Variables: variables})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Add("Content-Type", contentTypeJSON)
	req.Header.Add("Accept", contentTypeJSON)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("graph request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var result graphResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(result.Errors) > 0 {
		messages := make([]string, len(result.Errors))
		for i, e := range result.Errors {
			messages[i] = e.Message
		}
		return nil, fmt.Errorf("graph errors: %s", strings.Join(messages, "; "))
	}

	raw, ok := result.Data[q.field]
	if !ok {
		return nil, fmt.Errorf("graph response has no %q field", q.field)
	}
	var rows []graphEntity
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", q.field, err)
	}
	return rows, nil
}
