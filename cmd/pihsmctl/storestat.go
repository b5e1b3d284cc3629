package main

import (
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/system76/pihsm/internal/frame"
)

var commandStoreStat = &cli.Command{
	Name:  "store-stat",
	Usage: "report layout and permission statistics for a chain store",
	Flags: []cli.Flag{storeDirFlag},
	Action: func(c *cli.Context) error {
		return runStoreStat(c.String("store-dir"))
	},
}

func runStoreStat(base string) error {
	root := filepath.Join(base, "store")

	var total, badMode, badSize int
	sizes := map[int]int{}

	tmpDir := filepath.Join(root, "tmp")
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == tmpDir {
			return fs.SkipDir
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total++
		sizes[int(info.Size())]++
		if info.Mode().Perm() != 0444 {
			badMode++
		}
		switch info.Size() {
		case frame.GenesisSize, frame.ResponseSize:
		default:
			badSize++
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("walk store: %w", err)
	}

	fmt.Printf("total entries: %d\n", total)
	for sz, n := range sizes {
		fmt.Printf("  size %d: %d entries\n", sz, n)
	}
	fmt.Printf("entries with unexpected permissions: %d\n", badMode)
	fmt.Printf("entries with unexpected size: %d\n", badSize)
	if badMode > 0 || badSize > 0 {
		return fmt.Errorf("store layout invariant violated")
	}
	return nil
}
