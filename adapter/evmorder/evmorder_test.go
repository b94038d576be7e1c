package evmorder

import (
	"context"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/fusionbridge/swapd/adapter"
	"github.com/fusionbridge/swapd/events"
	"github.com/fusionbridge/swapd/htlc"
	"github.com/stretchr/testify/require"
)

func testOrder(hash htlc.Hash) Order {
	return Order{
		Maker:        "0xmaker",
		SellToken:    "0xsell",
		BuyToken:     "0xbuy",
		Principal:    1_000_000,
		MinBuyAmount: 500_000,
		SecretHash:   hash,
		Nonce:        1,
		Expiry:       2_000_000_000,
	}
}

func TestOrderHashIsDeterministic(t *testing.T) {
	var hash htlc.Hash
	o := testOrder(hash)

	require.Equal(t, o.Hash(), o.Hash())

	o2 := o
	o2.Nonce = 2
	require.NotEqual(t, o.Hash(), o2.Hash())
}

func TestSignAndVerify(t *testing.T) {
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	var hash htlc.Hash
	o := testOrder(hash)

	sig := Sign(o, priv)
	require.True(t, VerifySignature(o, sig, priv.PubKey()))

	o2 := o
	o2.Principal = 2
	require.False(t, VerifySignature(o2, sig, priv.PubKey()))
}

func TestSubmitCancelFetchStatus(t *testing.T) {
	c := NewClient()
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	var hash htlc.Hash
	o := testOrder(hash)
	sig := Sign(o, priv)

	id, err := c.SubmitOrder(context.Background(), adapter.SignedOrder{Payload: o, Signature: sig})
	require.NoError(t, err)

	status, err := c.FetchStatus(context.Background(), id)
	require.NoError(t, err)
	require.True(t, status.Exists)
	require.False(t, status.Claimed)

	require.NoError(t, c.CancelOrder(context.Background(), id))

	status, err = c.FetchStatus(context.Background(), id)
	require.NoError(t, err)
	require.True(t, status.Cancelled)
}

func TestObserveFillEmitsEvent(t *testing.T) {
	c := NewClient()
	ch := make(chan events.Event, 1)
	require.NoError(t, c.Start(context.Background(), events.Checkpoint{}, ch))

	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	secret, hash := htlc.Secret{0x01}, htlc.Hash{}
	o := testOrder(hash)
	sig := Sign(o, priv)

	id, err := c.SubmitOrder(context.Background(), adapter.SignedOrder{Payload: o, Signature: sig})
	require.NoError(t, err)

	require.NoError(t, c.ObserveFill(id, secret, events.Checkpoint{BlockHeight: 5}))

	e := <-ch
	require.Equal(t, events.KindOrderFilled, e.Kind)
	require.Equal(t, id, e.SwapKey)
}
