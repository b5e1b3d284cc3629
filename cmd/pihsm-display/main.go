// Command pihsm-display is the offline-device LCD daemon (spec §2,
// §4.6): it keeps an operator-visible rendering of the signer's most
// recent chain tip, fed either by Display-IPC pushes from the signer or
// by polling the signer's published tail file.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/system76/pihsm/internal/config"
	"github.com/system76/pihsm/internal/display"
	"github.com/system76/pihsm/internal/ipc"
	"github.com/system76/pihsm/internal/logging"
)

var app *cli.App

func init() {
	app = &cli.App{
		Name:  "pihsm-display",
		Usage: "run the LCD tip-display daemon",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "path to a display TOML config file"},
			&cli.BoolFlag{Name: "text-log", Usage: "emit logs as text instead of JSON"},
			&cli.BoolFlag{Name: "debug", Usage: "enable debug logging"},
			&cli.BoolFlag{Name: "poll-only", Usage: "don't run the Display-IPC server, only poll the tail file"},
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
	cfg := config.DefaultDisplay()
	if p := c.String("config"); p != "" {
		if err := config.Load(p, &cfg); err != nil {
			return err
		}
	}

	log := logging.New(os.Stderr, "display", c.Bool("text-log"), c.Bool("debug"))

	var lcd *display.LCD
	if cfg.UseHardware {
		bus, err := display.OpenLinuxI2CBus(cfg.I2CBus)
		if err != nil {
			return fmt.Errorf("open i2c bus: %w", err)
		}
		lcd = display.NewLCD(bus)
		lcd.Addr = byte(cfg.I2CAddress)
	} else {
		lcd = display.NewLCD(nullBus{})
	}

	manager := display.NewManager(lcd, nil, nil, log)

	stop := make(chan struct{})

	if !c.Bool("poll-only") {
		ln, err := ipc.Listen("display", cfg.DisplaySocket)
		if err != nil {
			return fmt.Errorf("listen display-ipc: %w", err)
		}
		srv := ipc.NewDisplayServer(manager, log)
		go func() {
			if err := srv.Serve(ln, stop); err != nil {
				log.Error("display-ipc server exited", "err", err)
			}
		}()
		log.Info("display-ipc listening", "address", cfg.DisplaySocket)
	}

	go manager.RunPoller(cfg.TailPollPath, stop)

	go func() {
		if err := manager.Run(stop); err != nil {
			log.Error("display loop exited", "err", err)
		}
	}()

	waitForSignal()
	close(stop)
	return nil
}

// nullBus discards writes; used when a config disables real hardware
// (development, or a headless signer box with no LCD attached).
type nullBus struct{}

func (nullBus) WriteByte(addr byte, data byte) error { return nil }

func waitForSignal() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
}
