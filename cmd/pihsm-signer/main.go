// Command pihsm-signer is the offline signer daemon (spec §2): it owns
// the signing key, the counter, and the chain tip, and serves requests
// over the serial line and over a local socket, pushing every produced
// frame on to the display daemon.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/system76/pihsm/internal/chainsigner"
	"github.com/system76/pihsm/internal/config"
	"github.com/system76/pihsm/internal/frame"
	"github.com/system76/pihsm/internal/ipc"
	"github.com/system76/pihsm/internal/logging"
	"github.com/system76/pihsm/internal/serialline"
	"github.com/system76/pihsm/internal/store"
)

var app *cli.App

func init() {
	app = &cli.App{
		Name:  "pihsm-signer",
		Usage: "run the offline hash-chain signing daemon",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "path to a signer TOML config file"},
			&cli.StringFlag{Name: "serial-port", Usage: "override serial_port"},
			&cli.StringFlag{Name: "store-dir", Usage: "override store_dir"},
			&cli.BoolFlag{Name: "text-log", Usage: "emit logs as text instead of JSON"},
			&cli.BoolFlag{Name: "debug", Usage: "override debug"},
			&cli.BoolFlag{Name: "no-serial", Usage: "don't open a real serial port (Private-IPC only)"},
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
	cfg := config.DefaultSigner()
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
	if c.Bool("debug") {
		cfg.Debug = true
	}

	log := logging.New(os.Stderr, "signer", c.Bool("text-log"), cfg.Debug)

	cs, err := store.OpenChainStore(cfg.StoreDir)
	if err != nil {
		return fmt.Errorf("open chain store: %w", err)
	}

	publisher := store.NewTailPublisher(cfg.TailPublishPath)

	signer, err := chainsigner.New(cs)
	if err != nil {
		return fmt.Errorf("initialize signer: %w", err)
	}
	if err := publisher.Publish(signer.Genesis()); err != nil {
		log.Error("publish genesis tip failed", "err", err)
	}

	displayClient := ipc.NewClient(cfg.DisplaySocket, frame.DigestSize, cfg.IPCTimeout)
	pushToDisplay := func(tip []byte) {
		go func() {
			if _, err := displayClient.Call(tip); err != nil {
				log.Debug("display push failed", "err", err)
			}
		}()
	}

	onTip := func(tip []byte) {
		pushToDisplay(tip)
		if err := publisher.Publish(tip); err != nil {
			log.Error("publish tip failed", "err", err)
		}
	}

	stop := make(chan struct{})

	privateLn, err := ipc.Listen("private", cfg.PrivateSocket)
	if err != nil {
		return fmt.Errorf("listen private-ipc: %w", err)
	}
	privateServer := ipc.NewPrivateServer(signer, pushToDisplay, log)
	if cfg.IPCTimeout > 0 {
		privateServer.Timeout = cfg.IPCTimeout
	}
	go func() {
		if err := privateServer.Serve(privateLn, stop); err != nil {
			log.Error("private-ipc server exited", "err", err)
		}
	}()
	log.Info("private-ipc listening", "address", cfg.PrivateSocket)

	var serialDone chan struct{}
	if !c.Bool("no-serial") {
		port, err := serialline.OpenTTY(cfg.SerialPort, cfg.Baud, cfg.SerialTimeout)
		if err != nil {
			return fmt.Errorf("open serial port: %w", err)
		}
		srv := serialline.NewServer(port, signer, onTip, log)
		srv.DebugAbortProbability = cfg.DebugAbortProbability
		serialDone = make(chan struct{})
		go func() {
			defer close(serialDone)
			if err := srv.ServeForever(stop); err != nil {
				log.Error("serial server exited", "err", err)
			}
		}()
		log.Info("serial server listening", "port", cfg.SerialPort, "baud", cfg.Baud)
	}

	waitForSignal()
	close(stop)
	if serialDone != nil {
		select {
		case <-serialDone:
		case <-time.After(5 * time.Second):
		}
	}
	return nil
}

func waitForSignal() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
}
