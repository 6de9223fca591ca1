package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/lightningnetwork/lnkeys"
	"github.com/lightningnetwork/lnkeys/keystore"
	"github.com/urfave/cli"
)

const (
	// checkKey holds a known value sealed with the store password. It lets
	// commands reject a mistyped password before anything is written.
	checkKey = "lnkeys.check"

	checkValue = "lnkeys"
)

// stdin is where values are read from when not given as arguments.
var stdin io.Reader = os.Stdin

// openStore opens the configured backend and wraps it in a SecureKeyStore.
// The returned cleanup closes the backend.
func openStore(ctx *cli.Context, passwords keystore.PasswordSource) (
	*keystore.Store, func(), error) {

	cfg := getConfig(ctx)

	backend, closer, err := lnkeys.OpenBackend(cfg)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if err := closer.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Error closing store: %v\n", err)
		}
	}

	store, err := lnkeys.OpenStore(cfg, backend, passwords)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	return store, cleanup, nil
}

// verifyPassword makes sure the session password matches the one the store
// was initialized with.
func verifyPassword(store *keystore.Store, session *keystore.Session) error {
	_, err := store.Get(session, checkKey)
	if errors.Is(err, keystore.ErrDecryptionFailed) {
		return errors.New("wrong store password")
	}

	return err
}

var initCommand = cli.Command{
	Name:  "init",
	Usage: "Create the device identifier and choose the store password.",
	Description: `
	Generate the device identifier every record is bound to and seal a
	check record with the chosen password. Running init again on an
	initialized store only verifies the password.`,
	Flags: []cli.Flag{
		cli.BoolFlag{
			Name:  "writeconfig",
			Usage: "also write a commented configuration file",
		},
	},
	Action: initStore,
}

func initStore(ctx *cli.Context) error {
	cfg := getConfig(ctx)

	id, created, err := lnkeys.InitDeviceID(cfg.DataDir)
	if err != nil {
		return err
	}

	if ctx.Bool("writeconfig") {
		path := cfg.ConfigFile
		if path == lnkeys.DefaultConfigFile {
			path = filepath.Join(
				cfg.LnkeysDir, lnkeys.DefaultConfigFilename,
			)
		}
		if err := lnkeys.WriteConfigFile(cfg, path); err != nil {
			return err
		}
		fmt.Fprintf(ctx.App.Writer, "Wrote configuration to %v\n",
			path)
	}

	// A password is only chosen, and therefore confirmed, while the store
	// has no check record.
	var initialized bool
	passwords := keystore.PasswordFunc(func(c context.Context) ([]byte,
		error) {

		if initialized {
			return passwordSource(ctx).Password(c)
		}

		return newPasswordSource(ctx).Password(c)
	})

	store, cleanup, err := openStore(ctx, passwords)
	if err != nil {
		return err
	}
	defer cleanup()

	keys, err := store.Keys()
	if err != nil {
		return err
	}
	initialized = slices.Contains(keys, checkKey)

	runCtx, cancel := getContext()
	defer cancel()

	err = store.WithSession(runCtx, func(s *keystore.Session) error {
		check, err := store.Get(s, checkKey)
		switch {
		case errors.Is(err, keystore.ErrDecryptionFailed):
			return errors.New("wrong store password")

		case err != nil:
			return err

		case check.IsSome():
			return nil
		}

		return store.Set(s, checkKey, checkValue)
	})
	if err != nil {
		return err
	}

	if created || !initialized {
		fmt.Fprintf(ctx.App.Writer, "Initialized store for device %v\n",
			id)
	} else {
		fmt.Fprintf(ctx.App.Writer, "Store for device %v is already "+
			"initialized\n", id)
	}

	return nil
}

var setCommand = cli.Command{
	Name:      "set",
	Usage:     "Encrypt and store a value.",
	ArgsUsage: "key [value]",
	Description: `
	Store value under key. If value is omitted it is read from stdin, which
	keeps secrets out of the shell history. A trailing newline is dropped.`,
	Action: setValue,
}

func setValue(ctx *cli.Context) error {
	args := ctx.Args()
	if !args.Present() || args.First() == checkKey {
		return cli.ShowCommandHelp(ctx, "set")
	}
	key := args.First()

	var value string
	if len(args) > 1 {
		value = args.Get(1)
	} else {
		b, err := io.ReadAll(bufio.NewReader(stdin))
		if err != nil {
			return err
		}
		value = strings.TrimRight(string(b), "\r\n")
	}

	store, cleanup, err := openStore(ctx, passwordSource(ctx))
	if err != nil {
		return err
	}
	defer cleanup()

	runCtx, cancel := getContext()
	defer cancel()

	return store.WithSession(runCtx, func(s *keystore.Session) error {
		if err := verifyPassword(store, s); err != nil {
			return err
		}

		return store.Set(s, key, value)
	})
}

var getCommand = cli.Command{
	Name:      "get",
	Usage:     "Decrypt and print a stored value.",
	ArgsUsage: "key",
	Action:    getValue,
}

func getValue(ctx *cli.Context) error {
	if !ctx.Args().Present() {
		return cli.ShowCommandHelp(ctx, "get")
	}
	key := ctx.Args().First()

	store, cleanup, err := openStore(ctx, passwordSource(ctx))
	if err != nil {
		return err
	}
	defer cleanup()

	runCtx, cancel := getContext()
	defer cancel()

	return store.WithSession(runCtx, func(s *keystore.Session) error {
		value, err := store.Get(s, key)
		if err != nil {
			return err
		}

		plaintext, err := value.UnwrapOrErr(
			fmt.Errorf("nothing stored under %q", key),
		)
		if err != nil {
			return err
		}

		fmt.Fprintln(ctx.App.Writer, plaintext)

		return nil
	})
}

var listCommand = cli.Command{
	Name:   "list",
	Usage:  "List the names of all stored values.",
	Action: listKeys,
}

func listKeys(ctx *cli.Context) error {
	// Listing never decrypts, so no password is needed.
	store, cleanup, err := openStore(ctx, passwordSource(ctx))
	if err != nil {
		return err
	}
	defer cleanup()

	keys, err := store.Keys()
	if err != nil {
		return err
	}

	for _, key := range keys {
		if key == checkKey {
			continue
		}
		fmt.Fprintln(ctx.App.Writer, key)
	}

	return nil
}

var clearCommand = cli.Command{
	Name:  "clear",
	Usage: "Erase every stored value.",
	Description: `
	Remove all records of the store. The device identifier is kept, so a
	new password can be chosen with init afterwards. This cannot be
	undone.`,
	Flags: []cli.Flag{
		cli.BoolFlag{
			Name:  "force",
			Usage: "confirm that all records should be erased",
		},
	},
	Action: clearStore,
}

func clearStore(ctx *cli.Context) error {
	if !ctx.Bool("force") {
		return errors.New("refusing to erase the store without --force")
	}

	store, cleanup, err := openStore(ctx, passwordSource(ctx))
	if err != nil {
		return err
	}
	defer cleanup()

	if err := store.Clear(); err != nil {
		return err
	}

	fmt.Fprintln(ctx.App.Writer, "Store cleared")

	return nil
}
