package nearescrow

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fusionbridge/swapd/adapter"
	"github.com/fusionbridge/swapd/htlc"
	"github.com/stretchr/testify/require"
	"lukechampine.com/uint128"
)

func newTestServer(t *testing.T, handler func(method string, params json.RawMessage) (interface{}, *rpcError)) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		rawParams := json.RawMessage{}
		req.Params = &rawParams
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		result, rpcErr := handler(req.Method, rawParams)

		resp := rpcResponse{Error: rpcErr}
		if result != nil {
			b, err := json.Marshal(result)
			require.NoError(t, err)
			resp.Result = b
		}

		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
}

func TestCreateClaimLifecycle(t *testing.T) {
	srv := newTestServer(t, func(method string, _ json.RawMessage) (interface{}, *rpcError) {
		switch method {
		case "create_escrow":
			return map[string]string{"escrow_id": "ns/1"}, nil
		case "claim_escrow":
			return map[string]string{}, nil
		}
		return nil, &rpcError{Name: "unknown_method", Message: method}
	})
	defer srv.Close()

	c := NewClient(srv.URL)

	id, err := c.CreateEscrow(context.Background(), adapter.EscrowParams{
		Resolver:    "resolver.near",
		Beneficiary: "beneficiary.near",
		Principal:   uint128.From64(1_000),
	})
	require.NoError(t, err)
	require.Equal(t, "ns/1", id)

	status, err := c.FetchStatus(context.Background(), id)
	require.NoError(t, err)
	require.True(t, status.Exists)
	require.False(t, status.Claimed)

	var secret htlc.Secret
	require.NoError(t, c.ClaimEscrow(context.Background(), id, secret))

	status, err = c.FetchStatus(context.Background(), id)
	require.NoError(t, err)
	require.True(t, status.Claimed)
}

func TestCancelEscrow(t *testing.T) {
	srv := newTestServer(t, func(method string, _ json.RawMessage) (interface{}, *rpcError) {
		switch method {
		case "create_escrow":
			return map[string]string{"escrow_id": "ns/2"}, nil
		case "cancel_escrow":
			return map[string]string{}, nil
		}
		return nil, &rpcError{Name: "unknown_method", Message: method}
	})
	defer srv.Close()

	c := NewClient(srv.URL)
	id, err := c.CreateEscrow(context.Background(), adapter.EscrowParams{Resolver: "r.near", Beneficiary: "b.near"})
	require.NoError(t, err)

	require.NoError(t, c.CancelEscrow(context.Background(), id))

	status, err := c.FetchStatus(context.Background(), id)
	require.NoError(t, err)
	require.True(t, status.Cancelled)
}

func TestRPCErrorPropagates(t *testing.T) {
	srv := newTestServer(t, func(method string, _ json.RawMessage) (interface{}, *rpcError) {
		return nil, &rpcError{Name: "invalid_params", Message: "bad request"}
	})
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.CreateEscrow(context.Background(), adapter.EscrowParams{})
	require.Error(t, err)
}

func TestYoctoFromPrincipal(t *testing.T) {
	got, err := YoctoFromPrincipal(5, 24)
	require.NoError(t, err)

	want := uint128.From64(5)
	for i := 0; i < 24; i++ {
		want = want.Mul(uint128.From64(10))
	}
	require.Equal(t, 0, got.Cmp(want))
}
