package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/lightningnetwork/lnkeys"
	"github.com/lightningnetwork/lnkeys/keychain"
	"github.com/lightningnetwork/lnkeys/keyexport"
	"github.com/lightningnetwork/lnkeys/keystore"
	"github.com/urfave/cli"
)

// masterFlags select where the master key comes from.
var masterFlags = []cli.Flag{
	cli.StringFlag{
		Name:  "xprv",
		Usage: "the extended private key to derive from",
	},
	cli.StringFlag{
		Name:      "xprvfile",
		Usage:     "read the extended private key from this file",
		TakesFile: true,
	},
	cli.StringFlag{
		Name:  "seed",
		Usage: "the hex encoded wallet seed to derive from",
	},
	cli.StringFlag{
		Name: "fromstore",
		Usage: "the name of a stored value holding a hex seed or " +
			"an extended private key",
	},
}

// sourceFromString interprets s as an extended private key or, failing
// that, as a hex encoded seed.
func sourceFromString(cfg *lnkeys.Config,
	s string) (keyexport.MasterKeySource, func(), error) {

	s = strings.TrimSpace(s)
	if master, err := keychain.MasterFromExtended(s); err == nil {
		master.Zero()
		return keyexport.ExtendedKeySource(s), func() {}, nil
	}

	seed, err := hex.DecodeString(s)
	if err != nil {
		return nil, nil, errors.New("value is neither an extended " +
			"private key nor a hex seed")
	}
	defer zero(seed)

	src := keyexport.NewSeedSource(seed, cfg.NetParams)

	return src, src.Zero, nil
}

// masterSource returns the master key source selected by the flags. The
// returned cleanup wipes any seed it holds.
func masterSource(ctx *cli.Context,
	runCtx context.Context) (keyexport.MasterKeySource, func(), error) {

	cfg := getConfig(ctx)

	switch {
	case ctx.IsSet("xprv"):
		return keyexport.ExtendedKeySource(ctx.String("xprv")),
			func() {}, nil

	case ctx.IsSet("xprvfile"):
		b, err := os.ReadFile(ctx.String("xprvfile"))
		if err != nil {
			return nil, nil, err
		}
		defer zero(b)

		return keyexport.ExtendedKeySource(strings.TrimSpace(string(b))),
			func() {}, nil

	case ctx.IsSet("seed"):
		return sourceFromString(cfg, ctx.String("seed"))

	case ctx.IsSet("fromstore"):
		store, cleanup, err := openStore(ctx, passwordSource(ctx))
		if err != nil {
			return nil, nil, err
		}
		defer cleanup()

		var (
			src     keyexport.MasterKeySource
			srcDone func()
		)
		err = store.WithSession(runCtx, func(s *keystore.Session) error {
			key := ctx.String("fromstore")
			value, err := store.Get(s, key)
			if err != nil {
				return err
			}

			stored, err := value.UnwrapOrErr(
				fmt.Errorf("nothing stored under %q", key),
			)
			if err != nil {
				return err
			}

			src, srcDone, err = sourceFromString(cfg, stored)

			return err
		})
		if err != nil {
			return nil, nil, err
		}

		return src, srcDone, nil

	default:
		return nil, nil, errors.New("one of --xprv, --xprvfile, " +
			"--seed or --fromstore is required")
	}
}

var deriveCommand = cli.Command{
	Name:  "derive",
	Usage: "Derive the private key of a single asset.",
	Description: `
	Derive the key at m/44'/coin'/account'/change/index from the given
	master key. Secrets are masked unless --reveal is set.`,
	Flags: append([]cli.Flag{
		cli.Uint64Flag{
			Name:  "coin",
			Usage: "the SLIP-0044 coin type",
		},
		cli.Uint64Flag{
			Name:  "account",
			Usage: "the BIP0044 account",
		},
		cli.Uint64Flag{
			Name:  "change",
			Usage: "the chain, 0 for external and 1 for internal",
		},
		cli.Uint64Flag{
			Name:  "index",
			Usage: "the address index",
		},
		cli.StringFlag{
			Name:  "curve",
			Usage: "secp256k1 or ed25519",
			Value: keychain.CurveSecp256k1.String(),
		},
		cli.BoolFlag{
			Name:  "utxo",
			Usage: "also encode the key as WIF",
		},
		cli.BoolFlag{
			Name:  "reveal",
			Usage: "print secrets in full",
		},
	}, masterFlags...),
	Action: deriveKey,
}

func deriveKey(ctx *cli.Context) error {
	cfg := getConfig(ctx)

	curve, err := keychain.ParseCurve(ctx.String("curve"))
	if err != nil {
		return err
	}

	protocol := keychain.ProtocolAccount
	if ctx.Bool("utxo") {
		protocol = keychain.ProtocolUTXO
	}

	coin := ctx.Uint64("coin")
	account := ctx.Uint64("account")
	change := ctx.Uint64("change")
	index := ctx.Uint64("index")
	for _, v := range []uint64{coin, account, change, index} {
		if v >= uint64(keychain.HardenedKeyStart) {
			return fmt.Errorf("%w: %d out of range",
				keychain.ErrInvalidPath, v)
		}
	}

	spec := keychain.AssetDerivationSpec{
		Name:     keychain.CoinType(coin).String(),
		CoinType: keychain.CoinType(coin),
		Account:  uint32(account),
		Change:   uint32(change),
		Index:    uint32(index),
		Curve:    curve,
		Protocol: protocol,
		Mainnet:  cfg.Mainnet(),
	}

	runCtx, cancel := getContext()
	defer cancel()

	src, done, err := masterSource(ctx, runCtx)
	if err != nil {
		return err
	}
	defer done()

	master, err := src.MasterKey(runCtx, curve)
	if err != nil {
		return err
	}
	defer master.Zero()

	items, err := lnkeys.NewEngine(cfg).ExportAll(
		master, []keychain.AssetDerivationSpec{spec},
	)
	if err != nil {
		return err
	}

	item := items[1]
	if !ctx.Bool("reveal") {
		item = item.Masked()
	}

	w := ctx.App.Writer
	fmt.Fprintf(w, "Path:        %v\n", item.Path)
	fmt.Fprintf(w, "Public key:  %v\n", item.PubKey)
	fmt.Fprintf(w, "Private key: %v\n", item.Key)
	item.WIF.WhenSome(func(wif string) {
		fmt.Fprintf(w, "WIF:         %v\n", wif)
	})

	return nil
}

var wifCommand = cli.Command{
	Name:      "wif",
	Usage:     "Encode a raw private key as WIF, or decode a WIF.",
	ArgsUsage: "hexkey | wif",
	Flags: []cli.Flag{
		cli.BoolFlag{
			Name:  "decode",
			Usage: "decode the argument instead of encoding it",
		},
		cli.BoolFlag{
			Name:  "uncompressed",
			Usage: "refer to the uncompressed public key",
		},
	},
	Action: wifConvert,
}

func wifConvert(ctx *cli.Context) error {
	if !ctx.Args().Present() {
		return cli.ShowCommandHelp(ctx, "wif")
	}
	arg := strings.TrimSpace(ctx.Args().First())
	w := ctx.App.Writer

	if ctx.Bool("decode") {
		payload, err := keyexport.DecodeWIF(arg)
		if err != nil {
			return err
		}
		defer zero(payload.Key)

		network := "testnet"
		if payload.Mainnet {
			network = "mainnet"
		}

		fmt.Fprintf(w, "Key:        %x\n", payload.Key)
		fmt.Fprintf(w, "Network:    %v\n", network)
		fmt.Fprintf(w, "Compressed: %v\n", payload.Compressed)

		return nil
	}

	raw, err := hex.DecodeString(arg)
	if err != nil {
		return fmt.Errorf("key is not hex: %w", err)
	}
	defer zero(raw)

	wif, err := keyexport.EncodeWIF(
		raw, getConfig(ctx).Mainnet(), !ctx.Bool("uncompressed"),
	)
	if err != nil {
		return err
	}

	fmt.Fprintln(w, wif)

	return nil
}

var exportCommand = cli.Command{
	Name:  "export",
	Usage: "Export the whole-account key and every asset key.",
	Description: `
	Derive the key of every asset in the catalog and print them after the
	whole-account key. Without --assets a built-in catalog is used.
	Secrets are masked unless --reveal is set. Assets that fail are
	flagged and the command exits with an error after printing the rest.`,
	Flags: append([]cli.Flag{
		cli.StringFlag{
			Name:      "assets",
			Usage:     "a JSON file listing the assets to export",
			TakesFile: true,
		},
		cli.BoolFlag{
			Name:  "json",
			Usage: "print JSON instead of a table",
		},
		cli.BoolFlag{
			Name:  "reveal",
			Usage: "print secrets in full",
		},
	}, masterFlags...),
	Action: exportKeys,
}

func exportKeys(ctx *cli.Context) error {
	cfg := getConfig(ctx)

	specs := lnkeys.DefaultAssets(cfg.Mainnet())
	if ctx.IsSet("assets") {
		var err error
		specs, err = lnkeys.LoadAssets(ctx.String("assets"))
		if err != nil {
			return err
		}
	}

	runCtx, cancel := getContext()
	defer cancel()

	src, done, err := masterSource(ctx, runCtx)
	if err != nil {
		return err
	}
	defer done()

	items, exportErr := lnkeys.NewEngine(cfg).ExportFromSource(
		runCtx, src, specs,
	)

	var partial *keyexport.PartialFailure
	if exportErr != nil && !errors.As(exportErr, &partial) {
		return exportErr
	}

	if !ctx.Bool("reveal") {
		for i := range items {
			items[i] = items[i].Masked()
		}
	}

	if ctx.Bool("json") {
		err = printJSON(ctx.App.Writer, items)
	} else {
		printTable(ctx.App.Writer, items)
	}
	if err != nil {
		return err
	}

	return exportErr
}

func printJSON(w io.Writer, v interface{}) error {
	b, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(w, "%s\n", b)

	return err
}

// printTable renders the export as a table, one row per item.
func printTable(w io.Writer, items []keyexport.ExportedKeyItem) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{
		"#", "Asset", "Path", "Private key", "WIF", "Status",
	})

	for _, item := range items {
		status := "ok"
		if item.Err != nil {
			status = item.Err.Error()
		}

		t.AppendRow(table.Row{
			item.Index, item.Name, item.Path, item.Key,
			item.WIF.UnwrapOr("-"), status,
		})
	}

	t.Render()
}
