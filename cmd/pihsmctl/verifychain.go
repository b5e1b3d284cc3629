package main

import (
	"encoding/hex"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/system76/pihsm/internal/store"
	"github.com/system76/pihsm/internal/verify"
)

var commandVerifyChain = &cli.Command{
	Name:  "verify-chain",
	Usage: "walk a chain store from a tail signature back to Genesis, verifying every link",
	Flags: []cli.Flag{
		storeDirFlag,
		&cli.StringFlag{Name: "tail-signature", Usage: "hex-encoded 64-byte tail signature", Required: true},
		&cli.StringFlag{Name: "pubkey", Usage: "hex-encoded 32-byte expected signer pubkey", Required: true},
	},
	Action: runVerifyChain,
}

func runVerifyChain(c *cli.Context) error {
	tailSig, err := hex.DecodeString(c.String("tail-signature"))
	if err != nil {
		return fmt.Errorf("decode tail-signature: %w", err)
	}
	pubkey, err := hex.DecodeString(c.String("pubkey"))
	if err != nil {
		return fmt.Errorf("decode pubkey: %w", err)
	}

	cs, err := store.OpenChainStore(c.String("store-dir"))
	if err != nil {
		return fmt.Errorf("open chain store: %w", err)
	}

	walked, err := verify.VerifyChain(tailSig, pubkey, cs.Loader())
	if err != nil {
		switch err {
		case verify.ErrBreakFreshKey:
			fmt.Println("chain walk stopped: unreached frame is consistent with an unused fresh key, not tampering")
		case verify.ErrBreakAdversarial:
			fmt.Println("chain walk stopped: missing frame is NOT explained by a fresh key; treat as a break")
		}
		return fmt.Errorf("verify chain: %w", err)
	}

	fmt.Printf("ok: walked %d frames back to Genesis\n", walked)
	return nil
}
