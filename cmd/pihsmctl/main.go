// Command pihsmctl is an operator tool for inspecting and exchanging
// chain state (spec §5's recovered operator tooling): reading the
// published tip, walking and verifying a chain store end to end, and
// exporting/importing manifests of a chain segment.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

var app *cli.App

func init() {
	app = &cli.App{
		Name:  "pihsmctl",
		Usage: "inspect and exchange pihsm chain state",
		Commands: []*cli.Command{
			commandTail,
			commandVerifyChain,
			commandStoreStat,
			commandExport,
			commandImport,
		},
	}
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var storeDirFlag = &cli.StringFlag{
	Name:     "store-dir",
	Usage:    "chain store base directory",
	Required: true,
}
