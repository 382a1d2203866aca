package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"lottochain/cmd/internal/passphrase"
	"lottochain/crypto"
	"lottochain/rpc"
)

const callTimeout = 30 * time.Second

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr, os.LookupEnv))
}

type cli struct {
	stdout   io.Writer
	stderr   io.Writer
	settings settings
	pass     *passphrase.Source
	client   *rpc.Client
}

func run(args []string, stdout, stderr io.Writer, lookup func(string) (string, bool)) int {
	global := flag.NewFlagSet("lotto-cli", flag.ContinueOnError)
	global.SetOutput(stderr)
	global.Usage = func() { printUsage(stderr) }
	var flags settings
	global.StringVar(&flags.endpoint, "rpc", "", "JSON-RPC endpoint (or set "+envRPCURL+")")
	global.StringVar(&flags.token, "token", "", "bearer token for admin methods (or set "+envRPCToken+")")
	global.StringVar(&flags.keystore, "keystore", "", "keystore file holding the signing key (or set "+envKeystore+")")
	global.StringVar(&flags.profilePath, "profile", "", "profile YAML path (default ~/.lotto/profile.yaml)")
	if err := global.Parse(args); err != nil {
		return 1
	}
	rest := global.Args()
	if len(rest) == 0 {
		printUsage(stderr)
		return 1
	}

	if flags.profilePath == "" {
		if v, ok := lookup(envProfile); ok && strings.TrimSpace(v) != "" {
			flags.profilePath = strings.TrimSpace(v)
		} else {
			flags.profilePath = defaultProfilePath()
		}
	}
	profile, err := loadProfile(flags.profilePath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	resolved := resolveSettings(flags, profile, lookup)
	c := &cli{
		stdout:   stdout,
		stderr:   stderr,
		settings: resolved,
		pass:     passphrase.NewSource(envPassphrase, "keystore").WithLookup(lookup),
		client:   rpc.NewClient(rpc.ClientConfig{URL: resolved.endpoint, Token: resolved.token, Timeout: callTimeout}),
	}
	return c.dispatch(rest[0], rest[1:])
}

func (c *cli) dispatch(command string, args []string) int {
	switch command {
	case "keygen":
		return c.runKeygen(args)
	case "address":
		return c.runAddress(args)
	case "derive":
		return c.runDerive(args)
	case "init-round":
		return c.runInitRound(args)
	case "join":
		return c.runJoin(args)
	case "settle":
		return c.runSettle(args)
	case "claim-payout":
		return c.runClaimPayout(args)
	case "claim-refund":
		return c.runClaimRefund(args)
	case "close":
		return c.runClose(args)
	case "round":
		return c.runRound(args)
	case "rounds":
		return c.runRounds(args)
	case "entry":
		return c.runEntry(args)
	case "entries":
		return c.runEntries(args)
	case "balance":
		return c.runBalance(args)
	case "airdrop":
		return c.runAirdrop(args)
	case "slot":
		return c.runSlot(args)
	case "activity":
		return c.runActivity(args)
	case "indexed-rounds":
		return c.runIndexedRounds(args)
	case "help", "-h", "--help":
		printUsage(c.stdout)
		return 0
	default:
		fmt.Fprintf(c.stderr, "Unknown command: %s\n", command)
		printUsage(c.stderr)
		return 1
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `Usage: lotto-cli [--rpc URL] [--token TOKEN] [--keystore FILE] [--profile FILE] <command> [flags]

Keys:
  keygen        --out FILE [--light] [--force] [--save-profile]
  address       print the keystore address

Instructions (signed with the keystore key):
  init-round    --round-id N --price LAMPORTS --duration SLOTS --retained-bps BPS [--max-entries N]
  join          --authority ADDR --round-id N --tickets N [--nonce N]
  settle        --round-id N --winning-entry ADDR
  claim-payout  --authority ADDR --round-id N
  claim-refund  --authority ADDR --round-id N [--nonce N]
  close         --round-id N [--reason CODE]

Queries:
  derive        --authority ADDR --round-id N [--entrant ADDR] [--nonce N]
  round         --address ADDR | --authority ADDR --round-id N
  rounds        [--authority ADDR] [--offset N] [--limit N]
  entry         --address ADDR
  entries       --round ADDR | --entrant ADDR [--offset N] [--limit N]
  balance       [ADDR]
  slot
  activity      [--wallet ADDR] [--limit N]
  indexed-rounds [--status STATUS] [--limit N]

Admin:
  airdrop       --lamports N [--to ADDR]`)
}

func (c *cli) newFlags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	return fs
}

func (c *cli) parse(fs *flag.FlagSet, args []string) bool {
	if err := fs.Parse(args); err != nil {
		return false
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(c.stderr, "Error: unexpected positional arguments: %s\n", strings.Join(fs.Args(), " "))
		return false
	}
	return true
}

func (c *cli) fail(format string, args ...interface{}) int {
	fmt.Fprintf(c.stderr, "Error: "+format+"\n", args...)
	return 1
}

func (c *cli) rpcFailure(err error) int {
	var rpcErr *rpc.RPCError
	if errors.As(err, &rpcErr) {
		if rpcErr.Data != nil {
			fmt.Fprintf(c.stderr, "RPC error %d: %s (%v)\n", rpcErr.Code, rpcErr.Message, rpcErr.Data)
		} else {
			fmt.Fprintf(c.stderr, "RPC error %d: %s\n", rpcErr.Code, rpcErr.Message)
		}
		return 1
	}
	return c.fail("%v", err)
}

func (c *cli) print(v interface{}) int {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return c.fail("encode output: %v", err)
	}
	fmt.Fprintln(c.stdout, string(raw))
	return 0
}

func (c *cli) loadKey() (*crypto.PrivateKey, error) {
	path := strings.TrimSpace(c.settings.keystore)
	if path == "" {
		return nil, fmt.Errorf("keystore required; pass --keystore, set %s or add it to the profile", envKeystore)
	}
	pass, err := c.pass.Get()
	if err != nil {
		return nil, err
	}
	return crypto.LoadFromKeystore(path, pass)
}

func withTimeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), callTimeout)
}
