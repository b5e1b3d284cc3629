package main

import (
	"encoding/hex"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/system76/pihsm/internal/frame"
	"github.com/system76/pihsm/internal/store"
)

var commandTail = &cli.Command{
	Name:      "tail",
	Usage:     "print the published chain tip",
	ArgsUsage: "<tail-file-path>",
	Action:    runTail,
}

func runTail(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		return cli.Exit("pihsmctl tail: a tail file path is required", 1)
	}

	b, err := store.Read(path)
	if err != nil {
		return fmt.Errorf("read tail file: %w", err)
	}

	switch len(b) {
	case 0:
		fmt.Println("no tip (signer not yet provisioned, or tail file missing)")
	case frame.GenesisSize:
		fmt.Println("kind: genesis")
		fmt.Println("pubkey:", hex.EncodeToString(frame.Pubkey(b)))
		fmt.Println("signature:", hex.EncodeToString(frame.Signature(b)))
	case frame.ResponseSize:
		fmt.Println("kind: response")
		fmt.Println("counter:", frame.Counter(b))
		fmt.Println("timestamp:", frame.Timestamp(b))
		fmt.Println("pubkey:", hex.EncodeToString(frame.Pubkey(b)))
		fmt.Println("signature:", hex.EncodeToString(frame.Signature(b)))
	default:
		return fmt.Errorf("unrecognized tail length %d", len(b))
	}
	return nil
}
