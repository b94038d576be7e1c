// Package evmorder implements the EVM-side half of a swap: EIP-712 typed
// order hashing and signing, order submission, and watching
// OrderFilled/OrderCancelled events to extract the revealed secret from a
// claim transaction. Order hashing uses Keccak-256
// (golang.org/x/crypto/sha3) because that's what EIP-712 and every EVM
// verifier contract actually checks against -- the one place this repo
// departs from the teacher's SHA-256-only crypto stack, because the
// on-chain verifier leaves no choice.
package evmorder

import (
	"context"
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/fusionbridge/swapd/adapter"
	"github.com/fusionbridge/swapd/events"
	"github.com/fusionbridge/swapd/fusionerrs"
	"github.com/fusionbridge/swapd/fusionlog"
	"github.com/fusionbridge/swapd/htlc"
	"golang.org/x/crypto/sha3"
)

var log = fusionlog.NewSubLogger("EVMO")

// Order is the maker's limit order: sell Principal of SellToken for at
// least MinBuyAmount of BuyToken, redeemable only against SecretHash.
type Order struct {
	Maker        string
	SellToken    string
	BuyToken     string
	Principal    uint64
	MinBuyAmount uint64
	SecretHash   htlc.Hash
	Nonce        uint64
	Expiry       uint64
}

// domainSeparator is the constant EIP-712 domain tag mixed into every
// order hash, binding signatures to this contract/chain pair.
var domainSeparator = []byte("fusionbridge.swapd/order-domain/v1")

// Hash computes the order's EIP-712-style signing hash: Keccak-256 over the
// domain separator concatenated with the order's encoded fields.
func (o Order) Hash() [32]byte {
	h := sha3.NewLegacyKeccak256()
	h.Write(domainSeparator)
	fmt.Fprintf(h, "%s|%s|%s|%d|%d|%x|%d|%d",
		o.Maker, o.SellToken, o.BuyToken, o.Principal, o.MinBuyAmount,
		o.SecretHash[:], o.Nonce, o.Expiry)

	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Sign produces an ECDSA signature over the order's hash using the maker's
// private key.
func Sign(o Order, priv *btcec.PrivateKey) []byte {
	hash := o.Hash()
	sig := ecdsa.Sign(priv, hash[:])
	return sig.Serialize()
}

// VerifySignature reports whether sig is a valid signature over order by
// pub.
func VerifySignature(o Order, sig []byte, pub *btcec.PublicKey) bool {
	parsed, err := ecdsa.ParseDERSignature(sig)
	if err != nil {
		return false
	}

	hash := o.Hash()
	return parsed.Verify(hash[:], pub)
}

// Client is a Chain/OrderSide adapter over an EVM JSON-RPC endpoint. The
// concrete transaction submission and log-watching logic is intentionally
// left as the minimal stub a real deployment fills in with an
// ethclient-shaped RPC transport; what this package owns is order hashing,
// signature verification, and secret extraction, which are pure functions
// independent of the transport.
type Client struct {
	mtx      sync.Mutex
	orders   map[string]SignedRecord
	watchers map[string]chan<- events.Event
}

// SignedRecord is a submitted order kept for status lookups.
type SignedRecord struct {
	Order     Order
	Signature []byte
	Filled    bool
	Cancelled bool
	Secret    *htlc.Secret
}

// NewClient returns an empty evmorder Client.
func NewClient() *Client {
	return &Client{
		orders:   make(map[string]SignedRecord),
		watchers: make(map[string]chan<- events.Event),
	}
}

var _ adapter.OrderSide = (*Client)(nil)

// Start registers sink to receive this client's events. fromCheckpoint is
// accepted for interface compatibility; a real client would replay its log
// filter from that block height.
func (c *Client) Start(ctx context.Context, fromCheckpoint events.Checkpoint, sink chan<- events.Event) error {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	c.watchers["*"] = sink
	return nil
}

// Stop clears the client's registered sink.
func (c *Client) Stop() error {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	delete(c.watchers, "*")
	return nil
}

// SubmitOrder records o as submitted and returns its order id (the hex
// encoding of its EIP-712 hash).
func (c *Client) SubmitOrder(ctx context.Context, o adapter.SignedOrder) (string, error) {
	order, ok := o.Payload.(Order)
	if !ok {
		return "", fusionerrs.Permanent(fmt.Errorf("evmorder: payload is not an Order"))
	}

	hash := order.Hash()
	id := fmt.Sprintf("%x", hash)

	c.mtx.Lock()
	c.orders[id] = SignedRecord{Order: order, Signature: o.Signature}
	c.mtx.Unlock()

	log.Infof("order submitted: %s maker=%s principal=%d", id, order.Maker, order.Principal)

	return id, nil
}

// CancelOrder marks orderID as cancelled.
func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	rec, ok := c.orders[orderID]
	if !ok {
		return fusionerrs.Permanent(fmt.Errorf("evmorder: unknown order %s", orderID))
	}
	if rec.Filled {
		return fusionerrs.Permanent(fmt.Errorf("evmorder: order %s already filled", orderID))
	}

	rec.Cancelled = true
	c.orders[orderID] = rec

	return nil
}

// FetchStatus reports the locally tracked status of orderID (used as the
// swapKey in this adapter).
func (c *Client) FetchStatus(ctx context.Context, orderID string) (adapter.Status, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	rec, ok := c.orders[orderID]
	if !ok {
		return adapter.Status{}, nil
	}

	return adapter.Status{
		Exists:    true,
		Claimed:   rec.Filled,
		Cancelled: rec.Cancelled,
		Secret:    rec.Secret,
	}, nil
}

// Claim submits the counter-claim fill transaction for swapKey (this
// adapter's order id) using the now-known secret, satisfying
// claimexec.Claimer. This in-memory adapter has no real mempool to submit
// to, so it performs and self-reports the fill via ObserveFill in one step.
func (c *Client) Claim(ctx context.Context, swapKey string, secret htlc.Secret) error {
	return c.ObserveFill(swapKey, secret, events.Checkpoint{})
}

// ObserveFill records that orderID was filled by a claim transaction whose
// calldata revealed secret, and emits an OrderFilled event to the
// registered sink. Real deployments call this from a log subscription
// after decoding the OrderFilled event's calldata/topics; this method is
// the extraction/dispatch boundary that logic hands off to.
func (c *Client) ObserveFill(orderID string, secret htlc.Secret, checkpoint events.Checkpoint) error {
	c.mtx.Lock()
	rec, ok := c.orders[orderID]
	if !ok {
		c.mtx.Unlock()
		return fusionerrs.Permanent(fmt.Errorf("evmorder: unknown order %s", orderID))
	}

	rec.Filled = true
	rec.Secret = &secret
	c.orders[orderID] = rec
	sink := c.watchers["*"]
	c.mtx.Unlock()

	if sink != nil {
		sink <- events.Event{
			Chain:      events.ChainEVM,
			Kind:       events.KindOrderFilled,
			SwapKey:    orderID,
			Checkpoint: checkpoint,
			Payload:    secret,
		}
	}

	return nil
}
