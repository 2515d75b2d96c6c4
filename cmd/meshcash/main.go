// meshcash is the command-line wallet. It keeps password-encrypted keys
// in a keystore and talks to the spend network over the DHT, or to a
// local record store for offline work.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/meshcash/meshcash/config"
	"github.com/meshcash/meshcash/internal/log"
	"github.com/meshcash/meshcash/internal/meshnet"
	"github.com/meshcash/meshcash/internal/spendstore"
	"github.com/meshcash/meshcash/internal/storage"
	"github.com/meshcash/meshcash/internal/wallet"
	"github.com/meshcash/meshcash/pkg/crypto"
	"github.com/meshcash/meshcash/pkg/spend"
	"github.com/meshcash/meshcash/pkg/transfer"
	"github.com/meshcash/meshcash/pkg/types"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	// Global flags that appear before the subcommand.
	dataDir := defaultDataDir()
	seeds := ""
	logLevel := "warn"

	args := os.Args[1:]
	for len(args) > 0 {
		switch {
		case args[0] == "--datadir" && len(args) > 1:
			dataDir = args[1]
			args = args[2:]
		case strings.HasPrefix(args[0], "--datadir="):
			dataDir = args[0][len("--datadir="):]
			args = args[1:]
		case args[0] == "--seeds" && len(args) > 1:
			seeds = args[1]
			args = args[2:]
		case strings.HasPrefix(args[0], "--seeds="):
			seeds = args[0][len("--seeds="):]
			args = args[1:]
		case args[0] == "--log-level" && len(args) > 1:
			logLevel = args[1]
			args = args[2:]
		case strings.HasPrefix(args[0], "--log-level="):
			logLevel = args[0][len("--log-level="):]
			args = args[1:]
		default:
			goto dispatch
		}
	}

dispatch:
	if len(args) == 0 {
		usage()
		os.Exit(1)
	}

	if err := log.Init(logLevel, false, ""); err != nil {
		fatal("init logging: %v", err)
	}

	env := &cliEnv{dataDir: dataDir, seeds: seeds}
	cmd := args[0]
	cmdArgs := args[1:]

	switch cmd {
	case "create":
		cmdCreate(cmdArgs, env)
	case "import":
		cmdImport(cmdArgs, env)
	case "list":
		cmdList(env)
	case "address":
		cmdAddress(cmdArgs, env)
	case "balance":
		cmdBalance(cmdArgs, env)
	case "send":
		cmdSend(cmdArgs, env)
	case "receive":
		cmdReceive(cmdArgs, env)
	case "resume":
		cmdResume(cmdArgs, env)
	case "deposit-genesis":
		cmdDepositGenesis(cmdArgs, env)
	case "help", "--help", "-h":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: meshcash [global flags] <command> [flags]

Global flags:
  --datadir <path>    Data directory (default: ~/.meshcash)
  --seeds <addrs>     Comma-separated seed multiaddrs; without seeds the
                      wallet works against the local record store
  --log-level <lvl>   debug, info, warn (default), error

Commands:
  create --name <n>               Create a wallet from a fresh mnemonic
  import --name <n> --mnemonic "..."
                                  Import a wallet from a mnemonic
  list                            List wallets
  address --wallet <w>            Show the wallet's public identity
  balance --wallet <w>            Show spendable balance
  send --wallet <w> --to <pubkey> --amount <amt>
                                  Send coins; prints the transfer to pass
                                  to the recipient out of band
  receive --wallet <w> --transfer <hex>
                                  Redeem a received transfer
  resume --wallet <w>             Re-drive sends interrupted by a crash
  deposit-genesis --wallet <w>    Deposit the genesis note (test networks)
`)
}

// cliEnv carries the resolved global flags.
type cliEnv struct {
	dataDir string
	seeds   string
}

func (e *cliEnv) keystoreDir() string {
	return filepath.Join(e.dataDir, "keystore")
}

// ── create / import ─────────────────────────────────────────────────────

func cmdCreate(args []string, env *cliEnv) {
	fs := flag.NewFlagSet("create", flag.ExitOnError)
	name := fs.String("name", "", "Wallet name")
	fs.Parse(args)

	if *name == "" {
		fatal("Usage: meshcash create --name <name>")
	}

	mnemonic, err := wallet.GenerateMnemonic()
	if err != nil {
		fatal("generate mnemonic: %v", err)
	}

	fmt.Println("Mnemonic (write this down!):")
	fmt.Printf("  %s\n\n", mnemonic)

	createFromMnemonic(*name, mnemonic, env)
}

func cmdImport(args []string, env *cliEnv) {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	name := fs.String("name", "", "Wallet name")
	mnemonic := fs.String("mnemonic", "", "BIP-39 mnemonic (24 words)")
	fs.Parse(args)

	if *name == "" || *mnemonic == "" {
		fatal(`Usage: meshcash import --name <name> --mnemonic "word1 word2 ..."`)
	}
	if !wallet.ValidateMnemonic(*mnemonic) {
		fatal("invalid mnemonic")
	}

	createFromMnemonic(*name, *mnemonic, env)
}

func createFromMnemonic(name, mnemonic string, env *cliEnv) {
	password, err := readPassword("Enter password: ")
	if err != nil {
		fatal("read password: %v", err)
	}
	confirm, err := readPassword("Confirm password: ")
	if err != nil {
		fatal("read password: %v", err)
	}
	if string(password) != string(confirm) {
		fatal("passwords do not match")
	}

	key, err := wallet.MainKeyFromMnemonic(mnemonic, "")
	if err != nil {
		fatal("derive main key: %v", err)
	}
	defer key.Zero()

	ks, err := wallet.NewKeystore(env.keystoreDir())
	if err != nil {
		fatal("open keystore: %v", err)
	}
	if err := ks.Create(name, key, password, wallet.DefaultParams()); err != nil {
		fatal("create wallet: %v", err)
	}

	fmt.Printf("\nWallet created: %s\n", name)
	fmt.Printf("Identity: %s\n", key.MainPubkey())
}

// ── list / address ──────────────────────────────────────────────────────

func cmdList(env *cliEnv) {
	ks, err := wallet.NewKeystore(env.keystoreDir())
	if err != nil {
		fatal("open keystore: %v", err)
	}
	names, err := ks.List()
	if err != nil {
		fatal("list wallets: %v", err)
	}
	if len(names) == 0 {
		fmt.Println("No wallets.")
		return
	}
	for _, name := range names {
		pub, err := ks.MainPubkey(name)
		if err != nil {
			fmt.Printf("%-16s <unreadable: %v>\n", name, err)
			continue
		}
		fmt.Printf("%-16s %s\n", name, pub)
	}
}

func cmdAddress(args []string, env *cliEnv) {
	fs := flag.NewFlagSet("address", flag.ExitOnError)
	name := fs.String("wallet", "", "Wallet name")
	fs.Parse(args)

	if *name == "" {
		fatal("Usage: meshcash address --wallet <name>")
	}

	ks, err := wallet.NewKeystore(env.keystoreDir())
	if err != nil {
		fatal("open keystore: %v", err)
	}
	pub, err := ks.MainPubkey(*name)
	if err != nil {
		fatal("%v", err)
	}
	fmt.Println(pub)
}

// ── balance / send / receive / resume ───────────────────────────────────

func cmdBalance(args []string, env *cliEnv) {
	fs := flag.NewFlagSet("balance", flag.ExitOnError)
	name := fs.String("wallet", "", "Wallet name")
	fs.Parse(args)

	if *name == "" {
		fatal("Usage: meshcash balance --wallet <name>")
	}

	w, closeWallet := openWallet(*name, env)
	defer closeWallet()

	balance, err := w.Balance()
	if err != nil {
		fatal("balance: %v", err)
	}
	fmt.Printf("%s\n", balance)
}

func cmdSend(args []string, env *cliEnv) {
	fs := flag.NewFlagSet("send", flag.ExitOnError)
	name := fs.String("wallet", "", "Wallet name")
	to := fs.String("to", "", "Recipient identity (hex pubkey)")
	amountStr := fs.String("amount", "", "Amount in coins, e.g. 1.5")
	timeout := fs.Duration("timeout", 5*time.Minute, "Submission timeout")
	fs.Parse(args)

	if *name == "" || *to == "" || *amountStr == "" {
		fatal("Usage: meshcash send --wallet <name> --to <pubkey> --amount <amt>")
	}

	recipient, err := crypto.ParseMainPubkey(*to)
	if err != nil {
		fatal("bad recipient: %v", err)
	}
	amount, err := parseAmount(*amountStr)
	if err != nil {
		fatal("bad amount: %v", err)
	}

	w, closeWallet := openWallet(*name, env)
	defer closeWallet()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	t, err := w.Send(ctx, amount, recipient)
	if err != nil {
		fatal("send: %v", err)
	}

	fmt.Printf("Sent %s to %s\n\n", amount, recipient)
	fmt.Println("Transfer (give this to the recipient):")
	fmt.Printf("  %s\n", t.ToHex())
}

func cmdReceive(args []string, env *cliEnv) {
	fs := flag.NewFlagSet("receive", flag.ExitOnError)
	name := fs.String("wallet", "", "Wallet name")
	blob := fs.String("transfer", "", "Transfer hex from the sender")
	timeout := fs.Duration("timeout", 5*time.Minute, "Verification timeout")
	fs.Parse(args)

	if *name == "" || *blob == "" {
		fatal("Usage: meshcash receive --wallet <name> --transfer <hex>")
	}

	t, err := transfer.FromHex(*blob)
	if err != nil {
		fatal("bad transfer: %v", err)
	}

	w, closeWallet := openWallet(*name, env)
	defer closeWallet()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	amount, err := w.Receive(ctx, t)
	if err != nil {
		fatal("receive: %v", err)
	}
	fmt.Printf("Received %s\n", amount)
}

func cmdResume(args []string, env *cliEnv) {
	fs := flag.NewFlagSet("resume", flag.ExitOnError)
	name := fs.String("wallet", "", "Wallet name")
	timeout := fs.Duration("timeout", 5*time.Minute, "Submission timeout")
	fs.Parse(args)

	if *name == "" {
		fatal("Usage: meshcash resume --wallet <name>")
	}

	w, closeWallet := openWallet(*name, env)
	defer closeWallet()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	transfers, err := w.Resume(ctx)
	if err != nil {
		fatal("resume: %v", err)
	}
	if len(transfers) == 0 {
		fmt.Println("Nothing pending.")
		return
	}
	fmt.Printf("Completed %d pending send(s).\n", len(transfers))
	for _, t := range transfers {
		fmt.Printf("  %s\n", t.ToHex())
	}
}

func cmdDepositGenesis(args []string, env *cliEnv) {
	fs := flag.NewFlagSet("deposit-genesis", flag.ExitOnError)
	name := fs.String("wallet", "", "Wallet name")
	fs.Parse(args)

	if *name == "" {
		fatal("Usage: meshcash deposit-genesis --wallet <name>")
	}

	w, closeWallet := openWallet(*name, env)
	defer closeWallet()

	if err := w.Deposit(*spend.GenesisCashNote()); err != nil {
		fatal("deposit: %v", err)
	}
	fmt.Println("Genesis note deposited.")
}

// ── wallet plumbing ─────────────────────────────────────────────────────

// openWallet unlocks a wallet and wires it to a record store: the DHT
// when seeds are configured, the local store otherwise.
func openWallet(name string, env *cliEnv) (*wallet.HotWallet, func()) {
	ks, err := wallet.NewKeystore(env.keystoreDir())
	if err != nil {
		fatal("open keystore: %v", err)
	}

	password, err := readPassword("Password: ")
	if err != nil {
		fatal("read password: %v", err)
	}
	key, err := ks.Load(name, password)
	if err != nil {
		fatal("unlock wallet: %v", err)
	}

	var cleanup []func()

	var store spendstore.Store
	if env.seeds != "" {
		node := meshnet.New(meshnet.Config{
			ListenAddr: "0.0.0.0",
			Seeds:      strings.Split(env.seeds, ","),
			NetworkID:  config.NetworkID,
		})
		if err := node.Start(); err != nil {
			fatal("start network node: %v", err)
		}
		cleanup = append(cleanup, func() { node.Stop() })
		store = meshnet.NewStore(node)
	} else {
		sdb, err := storage.NewBadger(filepath.Join(env.dataDir, "spends"))
		if err != nil {
			fatal("open spend store: %v", err)
		}
		cleanup = append(cleanup, func() { sdb.Close() })
		store = spendstore.NewLocal(sdb)
	}

	wdb, err := storage.NewBadger(filepath.Join(env.dataDir, "wallets", name))
	if err != nil {
		fatal("open wallet state: %v", err)
	}
	cleanup = append(cleanup, func() { wdb.Close() })

	w := wallet.New(key, store, wdb)
	return w, func() {
		for i := len(cleanup) - 1; i >= 0; i-- {
			cleanup[i]()
		}
	}
}

// ── amount formatting ───────────────────────────────────────────────────

// parseAmount converts a decimal coin string to nanos.
func parseAmount(s string) (types.Amount, error) {
	if s == "" {
		return 0, fmt.Errorf("empty amount")
	}
	if strings.HasPrefix(s, "-") {
		return 0, fmt.Errorf("negative amount")
	}

	parts := strings.SplitN(s, ".", 2)
	whole, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid whole part: %w", err)
	}

	var frac uint64
	if len(parts) == 2 {
		fracStr := parts[1]
		if len(fracStr) > config.Decimals {
			return 0, fmt.Errorf("too many decimal places (max %d)", config.Decimals)
		}
		for len(fracStr) < config.Decimals {
			fracStr += "0"
		}
		frac, err = strconv.ParseUint(fracStr, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid fraction: %w", err)
		}
	}

	if whole > (^uint64(0)-frac)/config.Coin {
		return 0, fmt.Errorf("amount overflow")
	}
	return types.Amount(whole*config.Coin + frac), nil
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".meshcash"
	}
	return filepath.Join(home, ".meshcash")
}

func readPassword(prompt string) ([]byte, error) {
	fmt.Fprint(os.Stderr, prompt)
	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr) // newline after hidden input
	if err != nil {
		return nil, err
	}
	return password, nil
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
