package main

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/system76/pihsm/internal/manifest"
	"github.com/system76/pihsm/internal/store"
)

var commandImport = &cli.Command{
	Name:  "import",
	Usage: "verify a manifest end to end and replay it into a chain store",
	Flags: []cli.Flag{
		storeDirFlag,
		manifestDSNFlag,
		&cli.StringFlag{Name: "manifest", Usage: "hex-encoded SHA-384 manifest key", Required: true},
	},
	Action: runImport,
}

func runImport(c *cli.Context) error {
	raw, err := hex.DecodeString(c.String("manifest"))
	if err != nil {
		return fmt.Errorf("decode manifest: %w", err)
	}
	if len(raw) != 48 {
		return fmt.Errorf("manifest key must be 48 bytes, got %d", len(raw))
	}
	var hash [48]byte
	copy(hash[:], raw)

	cs, err := store.OpenChainStore(c.String("store-dir"))
	if err != nil {
		return fmt.Errorf("open chain store: %w", err)
	}
	ms, err := store.OpenManifestStore(c.String("manifest-db"))
	if err != nil {
		return fmt.Errorf("open manifest store: %w", err)
	}
	defer ms.Close()

	env, err := manifest.Import(context.Background(), ms, cs, hash)
	if err != nil {
		return fmt.Errorf("import: %w", err)
	}

	fmt.Printf("ok: imported %d frames\n", len(env.Frames))
	return nil
}
