package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/lightningnetwork/lnkeys"
	"github.com/lightningnetwork/lnkeys/build"
	"github.com/urfave/cli"
)

// configKey is the app metadata entry holding the loaded configuration.
const configKey = "config"

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "[lnkeys] %v\n", err)
	os.Exit(1)
}

// getContext returns a context that is cancelled on the first interrupt so a
// pending password prompt can be abandoned.
func getContext() (context.Context, func()) {
	return signal.NotifyContext(
		context.Background(), os.Interrupt, syscall.SIGTERM,
	)
}

// loadConfig builds the configuration from the defaults, the config file and
// the global flags, in increasing order of precedence.
func loadConfig(ctx *cli.Context) (*lnkeys.Config, error) {
	preCfg := lnkeys.DefaultConfig()
	if ctx.IsSet("lnkeysdir") {
		preCfg.LnkeysDir = ctx.String("lnkeysdir")
	}
	if ctx.IsSet("configfile") {
		preCfg.ConfigFile = ctx.String("configfile")
	}

	return lnkeys.LoadConfig(preCfg, func(cfg *lnkeys.Config) {
		if ctx.IsSet("datadir") {
			cfg.DataDir = ctx.String("datadir")
		}
		if ctx.IsSet("network") {
			cfg.Network = ctx.String("network")
		}
		if ctx.IsSet("backend") {
			cfg.Backend = ctx.String("backend")
		}
		if ctx.IsSet("namespace") {
			cfg.Namespace = ctx.String("namespace")
		}
		if ctx.IsSet("debuglevel") {
			cfg.DebugLevel = ctx.String("debuglevel")
		}
		if ctx.IsSet("nologfile") {
			cfg.NoLogFile = ctx.Bool("nologfile")
		}
		if ctx.IsSet("kdf") {
			cfg.KDF.Type = ctx.String("kdf")
		}
		if ctx.IsSet("cipher") {
			cfg.Cipher = ctx.String("cipher")
		}
		if ctx.IsSet("pathstyle") {
			cfg.PathStyle = ctx.String("pathstyle")
		}
	})
}

// getConfig returns the configuration loaded before the command ran.
func getConfig(ctx *cli.Context) *lnkeys.Config {
	return ctx.App.Metadata[configKey].(*lnkeys.Config)
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "lnkeys"
	app.Version = build.Info()
	app.Usage = "password protected storage and export of wallet keys"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:      "lnkeysdir",
			Value:     lnkeys.DefaultLnkeysDir,
			Usage:     "The path to lnkeys' base directory.",
			TakesFile: true,
		},
		cli.StringFlag{
			Name:      "configfile, C",
			Value:     lnkeys.DefaultConfigFile,
			Usage:     "The path to the configuration file.",
			TakesFile: true,
		},
		cli.StringFlag{
			Name:      "datadir, b",
			Usage:     "The directory to store data within.",
			TakesFile: true,
		},
		cli.StringFlag{
			Name: "network, n",
			Usage: "The network keys are meant for, e.g. " +
				"mainnet, testnet, etc.",
		},
		cli.StringFlag{
			Name:  "backend",
			Usage: "Where records are kept: bolt, file or memory.",
		},
		cli.StringFlag{
			Name:  "namespace",
			Usage: "The namespace records are kept under.",
		},
		cli.StringFlag{
			Name:  "debuglevel, d",
			Usage: "Logging level for all subsystems.",
		},
		cli.BoolFlag{
			Name:  "nologfile",
			Usage: "Do not write a log file.",
		},
		cli.BoolFlag{
			Name:  "verbose, v",
			Usage: "Also print log output to stderr.",
		},
		cli.StringFlag{
			Name:  "kdf",
			Usage: "Key derivation function for new records.",
		},
		cli.StringFlag{
			Name:  "cipher",
			Usage: "Cipher suite for new records.",
		},
		cli.StringFlag{
			Name:  "pathstyle",
			Usage: "BIP0044 hardening style: bip44 or unhardened.",
		},
		cli.StringFlag{
			Name: "passwordfile",
			Usage: "Read the store password from this file " +
				"instead of prompting for it.",
			TakesFile: true,
		},
	}
	app.Before = func(ctx *cli.Context) error {
		cfg, err := loadConfig(ctx)
		if err != nil {
			return err
		}
		if err := lnkeys.InitLogging(cfg, !ctx.Bool("verbose")); err != nil {
			return err
		}

		if app.Metadata == nil {
			app.Metadata = make(map[string]interface{})
		}
		app.Metadata[configKey] = cfg

		return nil
	}
	app.After = func(ctx *cli.Context) error {
		return lnkeys.CloseLogging()
	}
	app.Commands = []cli.Command{
		initCommand,
		setCommand,
		getCommand,
		listCommand,
		clearCommand,
		deriveCommand,
		wifCommand,
		exportCommand,
	}

	return app
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fatal(err)
	}
}
