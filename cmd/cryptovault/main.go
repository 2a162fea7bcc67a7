// ABOUTME: Reference CLI for the wallet vault: create, import, unlock, wipe.
// ABOUTME: Demonstrates boot routing, PIN entry and the lockout policy.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/btcdanaindiaoff-arch/CryptoVault-Wallet/vault"
)

func main() {
	log.SetFlags(0)
	if len(os.Args) < 2 {
		usage()
		return
	}

	var err error
	switch os.Args[1] {
	case "create":
		err = cmdCreate(os.Args[2:])
	case "import-mnemonic":
		err = cmdImportMnemonic(os.Args[2:])
	case "import-key":
		err = cmdImportKey(os.Args[2:])
	case "unlock":
		err = cmdUnlock(os.Args[2:])
	case "status":
		err = cmdStatus(os.Args[2:])
	case "verify-backup":
		err = cmdVerifyBackup(os.Args[2:])
	case "change-pin":
		err = cmdChangePIN(os.Args[2:])
	case "wipe":
		err = cmdWipe(os.Args[2:])
	default:
		usage()
		return
	}
	if err != nil {
		log.Fatal(err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "cryptovault commands: create | import-mnemonic | import-key | unlock | status | verify-backup | change-pin | wipe")
}

type app struct {
	cfg      Config
	store    *vault.SQLiteStore
	vault    *vault.Vault
	unlocker *vault.Unlocker
}

func withApp(fn func(ctx context.Context, a *app) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger := zap.NewNop()
	if cfg.Verbose {
		logger, err = zap.NewDevelopment()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()
	}

	store, err := vault.OpenStore(cfg.StorePath, cfg.AccessPolicy)
	if err != nil {
		return err
	}
	var closeErr error
	defer func() {
		if cerr := store.Close(); cerr != nil && closeErr == nil {
			closeErr = cerr
		}
	}()

	policy := cfg.unlockPolicy()
	v := vault.New(store, defaultRegistry(),
		vault.WithLogger(logger),
		vault.WithUnlockTimeout(policy.AttemptTimeout),
	)
	u := vault.NewUnlocker(v, store, policy)

	ctx := context.Background()
	if err := u.Restore(ctx); err != nil {
		return err
	}
	if err := fn(ctx, &app{cfg: cfg, store: store, vault: v, unlocker: u}); err != nil {
		return err
	}
	return closeErr
}

func cmdCreate(args []string) error {
	fs := flag.NewFlagSet("create", flag.ExitOnError)
	mustParse(fs, args)

	return withApp(func(ctx context.Context, a *app) error {
		if has, err := a.vault.HasWallet(ctx); err != nil {
			return err
		} else if has {
			return errors.New("a wallet already exists; wipe it first")
		}

		created, err := a.vault.Create()
		if err != nil {
			return err
		}
		fmt.Println("Recovery phrase (write it down, this is the only time it is shown):")
		fmt.Println()
		fmt.Println("  " + created.Mnemonic)
		fmt.Println()
		fmt.Printf("Address: %s\n", created.Address.Hex())

		pin, err := promptNewPIN()
		if err != nil {
			return err
		}
		secret, err := vault.MnemonicSecret(created.Mnemonic)
		if err != nil {
			return err
		}
		if err := a.vault.SetupComplete(ctx, secret, pin); err != nil {
			return err
		}
		fmt.Println("Wallet created. Run 'cryptovault verify-backup' after confirming your phrase.")
		return nil
	})
}

func cmdImportMnemonic(args []string) error {
	fs := flag.NewFlagSet("import-mnemonic", flag.ExitOnError)
	mustParse(fs, args)

	return withApp(func(ctx context.Context, a *app) error {
		if has, err := a.vault.HasWallet(ctx); err != nil {
			return err
		} else if has {
			return errors.New("a wallet already exists; wipe it first")
		}

		fmt.Print("Enter recovery phrase: ")
		reader := bufio.NewReader(os.Stdin)
		phrase, err := reader.ReadString('\n')
		if err != nil {
			return err
		}

		addr, err := a.vault.ImportFromMnemonic(phrase)
		if err != nil {
			return err
		}
		fmt.Printf("Address: %s\n", addr.Hex())

		pin, err := promptNewPIN()
		if err != nil {
			return err
		}
		secret, err := vault.MnemonicSecret(phrase)
		if err != nil {
			return err
		}
		return a.vault.SetupComplete(ctx, secret, pin)
	})
}

func cmdImportKey(args []string) error {
	fs := flag.NewFlagSet("import-key", flag.ExitOnError)
	mustParse(fs, args)

	return withApp(func(ctx context.Context, a *app) error {
		if has, err := a.vault.HasWallet(ctx); err != nil {
			return err
		} else if has {
			return errors.New("a wallet already exists; wipe it first")
		}

		hexKey, err := promptHidden("Enter private key (hex): ")
		if err != nil {
			return err
		}

		addr, err := a.vault.ImportFromPrivateKey(hexKey)
		if err != nil {
			return err
		}
		fmt.Printf("Address: %s\n", addr.Hex())

		pin, err := promptNewPIN()
		if err != nil {
			return err
		}
		secret, err := vault.PrivateKeySecret(hexKey)
		if err != nil {
			return err
		}
		return a.vault.SetupComplete(ctx, secret, pin)
	})
}

func cmdUnlock(args []string) error {
	fs := flag.NewFlagSet("unlock", flag.ExitOnError)
	chain := fs.String("chain", "ethereum", "chain key to bind the signer to")
	mustParse(fs, args)

	return withApp(func(ctx context.Context, a *app) error {
		// Boot routing: absence is only disclosed here, never by the
		// unlock failure path.
		if has, err := a.vault.HasWallet(ctx); err != nil {
			return err
		} else if !has {
			return errors.New("no wallet set up; run 'cryptovault create'")
		}

		pin, err := promptHidden("PIN: ")
		if err != nil {
			return err
		}
		sc, err := a.unlocker.Submit(ctx, pin)
		if err != nil {
			return err
		}
		defer a.unlocker.Lock()

		signer, err := sc.DeriveSigner(*chain)
		if err != nil {
			return err
		}
		defer signer.Close()

		fmt.Printf("Unlocked %s\n", sc.Address().Hex())
		fmt.Printf("Signer bound to %s (chain id %s)\n", *chain, signer.ChainID())
		return nil
	})
}

func cmdStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	mustParse(fs, args)

	return withApp(func(ctx context.Context, a *app) error {
		has, err := a.vault.HasWallet(ctx)
		if err != nil {
			return err
		}
		if !has {
			fmt.Println("no wallet (route to onboarding)")
			return nil
		}

		meta, err := a.vault.Meta(ctx)
		if err != nil {
			return err
		}
		status := a.unlocker.Status()
		fmt.Printf("address:         %s\n", meta.Address)
		fmt.Printf("created:         %s\n", meta.CreatedAt.Format("2006-01-02 15:04:05 UTC"))
		fmt.Printf("backup verified: %v\n", meta.BackupVerified)
		fmt.Printf("state:           %s\n", status.State)
		if status.Attempts > 0 {
			fmt.Printf("failed attempts: %d\n", status.Attempts)
		}
		if !status.LockedUntil.IsZero() {
			fmt.Printf("locked until:    %s\n", status.LockedUntil.UTC().Format("2006-01-02 15:04:05 UTC"))
		}
		return nil
	})
}

func cmdVerifyBackup(args []string) error {
	fs := flag.NewFlagSet("verify-backup", flag.ExitOnError)
	mustParse(fs, args)

	return withApp(func(ctx context.Context, a *app) error {
		fmt.Print("Re-enter your recovery phrase: ")
		reader := bufio.NewReader(os.Stdin)
		phrase, err := reader.ReadString('\n')
		if err != nil {
			return err
		}

		addr, err := a.vault.ImportFromMnemonic(phrase)
		if err != nil {
			return errors.New("phrase does not validate; check the words and order")
		}
		meta, err := a.vault.Meta(ctx)
		if err != nil {
			return err
		}
		if addr.Hex() != meta.Address {
			return errors.New("phrase does not match this wallet")
		}
		if err := a.vault.MarkBackupVerified(ctx); err != nil {
			return err
		}
		fmt.Println("Backup verified.")
		return nil
	})
}

func cmdChangePIN(args []string) error {
	fs := flag.NewFlagSet("change-pin", flag.ExitOnError)
	mustParse(fs, args)

	return withApp(func(ctx context.Context, a *app) error {
		oldPIN, err := promptHidden("Current PIN: ")
		if err != nil {
			return err
		}
		newPIN, err := promptNewPIN()
		if err != nil {
			return err
		}
		if err := a.unlocker.ChangePIN(ctx, oldPIN, newPIN); err != nil {
			return err
		}
		fmt.Println("PIN changed.")
		return nil
	})
}

func cmdWipe(args []string) error {
	fs := flag.NewFlagSet("wipe", flag.ExitOnError)
	yes := fs.Bool("yes", false, "skip confirmation")
	mustParse(fs, args)

	return withApp(func(ctx context.Context, a *app) error {
		if !*yes {
			fmt.Print("This deletes the wallet and its secret permanently. Type 'wipe' to confirm: ")
			reader := bufio.NewReader(os.Stdin)
			line, err := reader.ReadString('\n')
			if err != nil {
				return err
			}
			if strings.TrimSpace(line) != "wipe" {
				return errors.New("aborted")
			}
		}
		if err := a.vault.Wipe(ctx); err != nil {
			return err
		}
		fmt.Println("Wallet wiped.")
		return nil
	})
}

func promptHidden(label string) (string, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return "", errors.New("stdin is not a terminal: run interactively to enter secrets")
	}
	fmt.Fprint(os.Stderr, label)
	defer fmt.Fprintln(os.Stderr)

	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		return "", fmt.Errorf("read input: %w", err)
	}
	out := string(raw)
	clear(raw)
	return out, nil
}

func promptNewPIN() (string, error) {
	pin, err := promptHidden("Choose a 6-digit PIN: ")
	if err != nil {
		return "", err
	}
	confirm, err := promptHidden("Confirm PIN: ")
	if err != nil {
		return "", err
	}
	if pin != confirm {
		return "", errors.New("PINs do not match")
	}
	return pin, nil
}

func mustParse(fs *flag.FlagSet, args []string) {
	if err := fs.Parse(args); err != nil {
		log.Fatal(err)
	}
}
