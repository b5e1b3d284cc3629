// Package config loads per-daemon TOML configuration (spec §1 calls
// "configuration-file loading... trivial glue", carried here the way
// the wider pack's go-ethereum-derived CLI loads node config: a
// naoina/toml decode into a typed struct, with flag overrides applied
// after load).
package config

import (
	"bufio"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/naoina/toml"
)

// tomlSettings matches the field-name convention the wider gtos-derived
// tooling uses for its own TOML config (lowercase-with-underscore keys
// mapped onto CamelCase Go fields), so an operator already used to that
// project's config files finds the same shape here.
var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string {
		return key
	},
	FieldToKey: func(rt reflect.Type, field string) string {
		return strings.ToLower(field)
	},
	MissingField: func(rt reflect.Type, field string) error {
		return nil
	},
}

// Signer holds pihsm-signer's tunables.
type Signer struct {
	SerialPort            string        `toml:"serial_port"`
	Baud                  int           `toml:"baud"`
	SerialTimeout         time.Duration `toml:"serial_timeout"`
	StoreDir              string        `toml:"store_dir"`
	TailPublishPath       string        `toml:"tail_publish_path"`
	PrivateSocket         string        `toml:"private_socket"`
	DisplaySocket         string        `toml:"display_socket"`
	IPCTimeout            time.Duration `toml:"ipc_timeout"`
	Debug                 bool          `toml:"debug"`
	DebugAbortProbability int           `toml:"debug_abort_probability"`
}

// DefaultSigner mirrors spec §6's reference tunables.
func DefaultSigner() Signer {
	return Signer{
		SerialPort:            "/dev/ttyAMA0",
		Baud:                  57600,
		SerialTimeout:         2 * time.Second,
		StoreDir:              "/var/lib/pihsm-signer",
		TailPublishPath:       "/run/pihsm-private/tail",
		PrivateSocket:         "/run/pihsm-private/private.sock",
		DisplaySocket:         "/run/pihsm-private/display.sock",
		IPCTimeout:            12 * time.Second,
		Debug:                 false,
		DebugAbortProbability: 0,
	}
}

// Proxy holds pihsm-proxy's tunables.
type Proxy struct {
	SerialPort    string        `toml:"serial_port"`
	Baud          int           `toml:"baud"`
	SerialTimeout time.Duration `toml:"serial_timeout"`
	SerialRetries int           `toml:"serial_retries"`
	StoreDir      string        `toml:"store_dir"`
	ClientSocket  string        `toml:"client_socket"`
}

// DefaultProxy mirrors spec §6's reference tunables.
func DefaultProxy() Proxy {
	return Proxy{
		SerialPort:    "/dev/ttyUSB0",
		Baud:          57600,
		SerialTimeout: 2 * time.Second,
		SerialRetries: 3,
		StoreDir:      "/var/lib/pihsm-proxy",
		ClientSocket:  "/run/pihsm-proxy/client.sock",
	}
}

// Display holds pihsm-display's tunables.
type Display struct {
	I2CBus        int    `toml:"i2c_bus"`
	I2CAddress    int    `toml:"i2c_address"`
	UseHardware   bool   `toml:"use_hardware"`
	DisplaySocket string `toml:"display_socket"`
	TailPollPath  string `toml:"tail_poll_path"`
}

// DefaultDisplay mirrors spec §6's reference tunables.
func DefaultDisplay() Display {
	return Display{
		I2CBus:        1,
		I2CAddress:    0x27,
		UseHardware:   true,
		DisplaySocket: "/run/pihsm-private/display.sock",
		TailPollPath:  "/run/pihsm-private/tail",
	}
}

// Load decodes the TOML file at path over dst, which must be a pointer
// to one of Signer, Proxy, or Display pre-populated with its defaults:
// fields absent from the file keep their default value.
func Load(path string, dst interface{}) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()

	if err := tomlSettings.NewDecoder(bufio.NewReader(f)).Decode(dst); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}
