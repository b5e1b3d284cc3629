// Command pihsm-proxy is the online-device daemon (spec §2): it holds
// its own per-request signing chain, relays application digests to the
// offline signer over the serial line, and persists every verified
// response.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/system76/pihsm/internal/chainsigner"
	"github.com/system76/pihsm/internal/config"
	"github.com/system76/pihsm/internal/ipc"
	"github.com/system76/pihsm/internal/logging"
	"github.com/system76/pihsm/internal/serialline"
	"github.com/system76/pihsm/internal/store"
)

var app *cli.App

func init() {
	app = &cli.App{
		Name:  "pihsm-proxy",
		Usage: "run the application-facing signing proxy daemon",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "path to a proxy TOML config file"},
			&cli.StringFlag{Name: "serial-port", Usage: "override serial_port"},
			&cli.StringFlag{Name: "store-dir", Usage: "override store_dir"},
			&cli.BoolFlag{Name: "text-log", Usage: "emit logs as text instead of JSON"},
			&cli.BoolFlag{Name: "debug", Usage: "enable debug logging"},
		},
		Action: run,
	}
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg := config.DefaultProxy()
	if p := c.String("config"); p != "" {
		if err := config.Load(p, &cfg); err != nil {
			return err
		}
	}
	if p := c.String("serial-port"); p != "" {
		cfg.SerialPort = p
	}
	if d := c.String("store-dir"); d != "" {
		cfg.StoreDir = d
	}

	log := logging.New(os.Stderr, "proxy", c.Bool("text-log"), c.Bool("debug"))

	cs, err := store.OpenChainStore(cfg.StoreDir)
	if err != nil {
		return fmt.Errorf("open response store: %w", err)
	}

	proxySigner, err := chainsigner.NewProxySigner(cs)
	if err != nil {
		return fmt.Errorf("initialize proxy signer: %w", err)
	}

	port, err := serialline.OpenTTY(cfg.SerialPort, cfg.Baud, cfg.SerialTimeout)
	if err != nil {
		return fmt.Errorf("open serial port: %w", err)
	}
	serialCfg := serialline.Config{Retries: cfg.SerialRetries, Timeout: cfg.SerialTimeout}
	serialClient := serialline.NewClient(port, serialCfg, log)

	stop := make(chan struct{})

	clientLn, err := ipc.Listen("client", cfg.ClientSocket)
	if err != nil {
		return fmt.Errorf("listen client-ipc: %w", err)
	}
	clientServer := ipc.NewClientServer(proxySigner, serialClient, cs, log)
	go func() {
		if err := clientServer.Serve(clientLn, stop); err != nil {
			log.Error("client-ipc server exited", "err", err)
		}
	}()
	log.Info("client-ipc listening", "address", cfg.ClientSocket)

	waitForSignal()
	close(stop)
	return nil
}

func waitForSignal() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
}
