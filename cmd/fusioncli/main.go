// Command fusioncli is the operator's command-line client for fusiond's
// RPC surface: propose, inspect, and abort swaps, and request a graceful
// drain. The command-table shape (one urfave/cli.Command per RPC, a
// shared --rpcserver flag, JSON-printed responses) is grounded on the
// teacher's cmd/lncli command-table convention.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/urfave/cli"
)

func main() {
	app := cli.NewApp()
	app.Name = "fusioncli"
	app.Usage = "command line tool for interacting with fusiond"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "rpcserver",
			Value: "localhost:10821",
			Usage: "host:port of fusiond's RPC listener",
		},
	}
	app.Commands = []cli.Command{
		proposeSwapCommand,
		getSwapCommand,
		abortSwapCommand,
		drainCommand,
	}

	if err := app.Run(os.Args); err != nil {
		b, _ := json.Marshal(map[string]string{"error": err.Error()})
		fmt.Fprintln(os.Stderr, string(b))
		os.Exit(1)
	}
}

var proposeSwapCommand = cli.Command{
	Name:      "proposeswap",
	Usage:     "propose a new cross-chain swap",
	ArgsUsage: "swap_key resolver beneficiary secret_hash_hex",
	Action:    proposeSwap,
}

func proposeSwap(ctx *cli.Context) error {
	if ctx.NArg() != 4 {
		return cli.ShowCommandHelp(ctx, "proposeswap")
	}

	client, cleanup, err := getClient(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	resp, err := client.ProposeSwap(ctx.Args().Get(0), ctx.Args().Get(1), ctx.Args().Get(2), ctx.Args().Get(3))
	if err != nil {
		return err
	}

	return printJSON(resp)
}

var getSwapCommand = cli.Command{
	Name:      "getswap",
	Usage:     "fetch a swap's current coordinator state",
	ArgsUsage: "swap_key",
	Action:    getSwap,
}

func getSwap(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return cli.ShowCommandHelp(ctx, "getswap")
	}

	client, cleanup, err := getClient(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	resp, err := client.GetSwap(ctx.Args().Get(0))
	if err != nil {
		return err
	}

	return printJSON(resp)
}

var abortSwapCommand = cli.Command{
	Name:      "abortswap",
	Usage:     "abort a swap that hasn't reached a point of no return",
	ArgsUsage: "swap_key",
	Action:    abortSwap,
}

func abortSwap(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return cli.ShowCommandHelp(ctx, "abortswap")
	}

	client, cleanup, err := getClient(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	resp, err := client.AbortSwap(ctx.Args().Get(0))
	if err != nil {
		return err
	}

	return printJSON(resp)
}

var drainCommand = cli.Command{
	Name:   "drain",
	Usage:  "stop accepting new swap proposals and report how many are in flight",
	Action: drain,
}

func drain(ctx *cli.Context) error {
	client, cleanup, err := getClient(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	resp, err := client.Drain()
	if err != nil {
		return err
	}

	return printJSON(resp)
}

func printJSON(v interface{}) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	fmt.Println(string(b))
	return nil
}
