package flashbots

import (
	"context"
	"encoding/json"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/michaelpento.lv/liquidator/handler"
)

var (
	_ handler.TxSender   = (*Client)(nil)
	_ handler.TxCanceler = (*Client)(nil)
)

type relayRequest struct {
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

func signedTx(t *testing.T) *types.Transaction {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	tx := types.NewTransaction(0, common.HexToAddress("0x01"), big.NewInt(0), 21000, big.NewInt(1), nil)
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(big.NewInt(1)), key)
	require.NoError(t, err)
	return signed
}

func TestSendTransaction(t *testing.T) {
	authKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	tx := signedTx(t)

	var got relayRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		parts := strings.SplitN(r.Header.Get(flashbotsXHeader), ":", 2)
		require.Len(t, parts, 2)
		sig, err := hexutil.Decode(parts[1])
		require.NoError(t, err)
		pub, err := crypto.SigToPub(accounts.TextHash([]byte(hexutil.Encode(crypto.Keccak256(body)))), sig)
		require.NoError(t, err)
		assert.Equal(t, crypto.PubkeyToAddress(authKey.PublicKey).Hex(), parts[0])
		assert.Equal(t, crypto.PubkeyToAddress(*pub).Hex(), parts[0])

		require.NoError(t, json.Unmarshal(body, &got))
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":"` + tx.Hash().Hex() + `"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, authKey, zaptest.NewLogger(t))
	client.BlockNumber = func(context.Context) (uint64, error) { return 100, nil }

	require.NoError(t, client.SendTransaction(context.Background(), tx))
	assert.Equal(t, methodSendPrivateTx, got.Method)

	var params privateTxParams
	require.Len(t, got.Params, 1)
	require.NoError(t, json.Unmarshal(got.Params[0], &params))
	raw, err := tx.MarshalBinary()
	require.NoError(t, err)
	assert.Equal(t, hexutil.Encode(raw), params.Tx)
	assert.Equal(t, "0x7d", params.MaxBlockNumber)
}

func TestRelayErrors(t *testing.T) {
	authKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	tx := signedTx(t)

	t.Run("RPCError", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-32000,"message":"nonce too low"}}`))
		}))
		defer server.Close()

		client := NewClient(server.URL, authKey, zaptest.NewLogger(t))
		err := client.SendTransaction(context.Background(), tx)
		assert.ErrorContains(t, err, "nonce too low")
	})

	t.Run("HTTPStatus", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "forbidden", http.StatusForbidden)
		}))
		defer server.Close()

		client := NewClient(server.URL, authKey, zaptest.NewLogger(t))
		err := client.SendTransaction(context.Background(), tx)
		assert.ErrorContains(t, err, "flashbots request failed")
	})
}

func TestCancelTransaction(t *testing.T) {
	authKey, err := crypto.GenerateKey()
	require.NoError(t, err)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req relayRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, methodCancelPrivateTx, req.Method)
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":true}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, authKey, zaptest.NewLogger(t))
	cancelled, err := client.CancelTransaction(context.Background(), common.HexToHash("0xabc"))
	require.NoError(t, err)
	assert.True(t, cancelled)
}
