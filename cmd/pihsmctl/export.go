package main

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/system76/pihsm/internal/manifest"
	"github.com/system76/pihsm/internal/store"
)

var manifestDSNFlag = &cli.StringFlag{
	Name:     "manifest-db",
	Usage:    "sqlite DSN for the manifest store",
	Required: true,
}

var commandExport = &cli.Command{
	Name:  "export",
	Usage: "export a chain segment (tail back to Genesis) into the manifest store",
	Flags: []cli.Flag{
		storeDirFlag,
		manifestDSNFlag,
		&cli.StringFlag{Name: "pubkey", Usage: "hex-encoded 32-byte signer pubkey", Required: true},
		&cli.StringFlag{Name: "tail", Usage: "hex-encoded tail frame (96 or 400 bytes)", Required: true},
	},
	Action: runExport,
}

func runExport(c *cli.Context) error {
	pubkey, err := hex.DecodeString(c.String("pubkey"))
	if err != nil {
		return fmt.Errorf("decode pubkey: %w", err)
	}
	tail, err := hex.DecodeString(c.String("tail"))
	if err != nil {
		return fmt.Errorf("decode tail: %w", err)
	}

	cs, err := store.OpenChainStore(c.String("store-dir"))
	if err != nil {
		return fmt.Errorf("open chain store: %w", err)
	}
	ms, err := store.OpenManifestStore(c.String("manifest-db"))
	if err != nil {
		return fmt.Errorf("open manifest store: %w", err)
	}
	defer ms.Close()

	hash, err := manifest.Export(context.Background(), cs, ms, pubkey, tail)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}

	fmt.Println("manifest:", hex.EncodeToString(hash[:]))
	return nil
}
