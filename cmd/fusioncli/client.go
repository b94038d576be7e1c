package main

import (
	"context"
	"fmt"

	"github.com/fusionbridge/swapd/fusionrpc"
	"github.com/urfave/cli"
	"google.golang.org/grpc"
)

// rpcClient is a thin wrapper invoking fusiond's hand-registered gRPC
// methods directly rather than through generated stubs -- this CLI plays
// the same role generated *_client.go files would, but calls grpc.Invoke
// against the JSON-coded methods by name.
type rpcClient struct {
	conn *grpc.ClientConn
}

func getClient(ctx *cli.Context) (*rpcClient, func(), error) {
	conn, err := grpc.Dial(
		ctx.GlobalString("rpcserver"),
		grpc.WithInsecure(),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype("json")),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("fusioncli: dial %s: %w", ctx.GlobalString("rpcserver"), err)
	}

	client := &rpcClient{conn: conn}
	return client, func() { conn.Close() }, nil
}

func (c *rpcClient) ProposeSwap(swapKey, resolver, beneficiary, secretHashHex string) (*fusionrpc.ProposeSwapResponse, error) {
	req := &fusionrpc.ProposeSwapRequest{
		SwapKey:       swapKey,
		Resolver:      resolver,
		Beneficiary:   beneficiary,
		SecretHashHex: secretHashHex,
	}
	resp := new(fusionrpc.ProposeSwapResponse)

	if err := c.conn.Invoke(context.Background(), "/fusionbridge.swapd.Coordinator/ProposeSwap", req, resp); err != nil {
		return nil, err
	}

	return resp, nil
}

func (c *rpcClient) GetSwap(swapKey string) (*fusionrpc.GetSwapResponse, error) {
	req := &fusionrpc.GetSwapRequest{SwapKey: swapKey}
	resp := new(fusionrpc.GetSwapResponse)

	if err := c.conn.Invoke(context.Background(), "/fusionbridge.swapd.Coordinator/GetSwap", req, resp); err != nil {
		return nil, err
	}

	return resp, nil
}

func (c *rpcClient) AbortSwap(swapKey string) (*fusionrpc.AbortSwapResponse, error) {
	req := &fusionrpc.AbortSwapRequest{SwapKey: swapKey}
	resp := new(fusionrpc.AbortSwapResponse)

	if err := c.conn.Invoke(context.Background(), "/fusionbridge.swapd.Coordinator/AbortSwap", req, resp); err != nil {
		return nil, err
	}

	return resp, nil
}

func (c *rpcClient) Drain() (*fusionrpc.DrainResponse, error) {
	req := &fusionrpc.DrainRequest{}
	resp := new(fusionrpc.DrainResponse)

	if err := c.conn.Invoke(context.Background(), "/fusionbridge.swapd.Coordinator/Drain", req, resp); err != nil {
		return nil, err
	}

	return resp, nil
}
