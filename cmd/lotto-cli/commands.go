package main

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/gagliardetto/solana-go"

	"lottochain/crypto"
	"lottochain/native/lotto"
	"lottochain/rpc"
)

// accounts is a parsed lotto_deriveAddresses result.
type accounts struct {
	round    solana.PublicKey
	treasury solana.PublicKey
	vault    solana.PublicKey
	entry    solana.PublicKey
}

func (c *cli) derive(authority solana.PublicKey, roundID uint64, entrant *solana.PublicKey, nonce uint8) (accounts, error) {
	params := rpc.DeriveParams{Authority: authority.String(), RoundID: roundID, Nonce: nonce}
	if entrant != nil {
		params.Entrant = entrant.String()
	}
	ctx, cancel := withTimeout()
	defer cancel()
	var res rpc.AddressesResult
	if err := c.client.Call(ctx, rpc.MethodDeriveAddresses, []interface{}{params}, &res); err != nil {
		return accounts{}, err
	}
	var out accounts
	var err error
	if out.round, err = crypto.ParseAddress(res.Round); err != nil {
		return accounts{}, err
	}
	if out.treasury, err = crypto.ParseAddress(res.Treasury); err != nil {
		return accounts{}, err
	}
	if out.vault, err = crypto.ParseAddress(res.TreasuryVault); err != nil {
		return accounts{}, err
	}
	if res.Entry != "" {
		if out.entry, err = crypto.ParseAddress(res.Entry); err != nil {
			return accounts{}, err
		}
	}
	return out, nil
}

func (c *cli) submit(key *crypto.PrivateKey, method string, instruction, out interface{}) int {
	ctx, cancel := withTimeout()
	defer cancel()
	if err := c.client.Submit(ctx, key, method, instruction, out); err != nil {
		return c.rpcFailure(err)
	}
	return c.print(out)
}

func (c *cli) query(method string, params []interface{}, out interface{}) int {
	ctx, cancel := withTimeout()
	defer cancel()
	if err := c.client.Call(ctx, method, params, out); err != nil {
		return c.rpcFailure(err)
	}
	return c.print(out)
}

func parseRequiredAddress(flagName, value string) (solana.PublicKey, error) {
	if strings.TrimSpace(value) == "" {
		return solana.PublicKey{}, fmt.Errorf("--%s is required", flagName)
	}
	addr, err := crypto.ParseAddress(value)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("invalid --%s: %v", flagName, err)
	}
	return addr, nil
}

func checkRange(flagName string, value, max uint64) error {
	if value > max {
		return fmt.Errorf("--%s must not exceed %d", flagName, max)
	}
	return nil
}

func (c *cli) runKeygen(args []string) int {
	fs := c.newFlags("keygen")
	out := fs.String("out", c.settings.keystore, "keystore file to create")
	light := fs.Bool("light", false, "use light scrypt parameters (faster, for development)")
	force := fs.Bool("force", false, "overwrite an existing keystore")
	saveProf := fs.Bool("save-profile", false, "record the keystore and RPC endpoint in the profile")
	if !c.parse(fs, args) {
		return 1
	}
	path := strings.TrimSpace(*out)
	if path == "" {
		return c.fail("--out is required")
	}
	if _, err := os.Stat(path); err == nil && !*force {
		return c.fail("%s already exists; pass --force to overwrite", path)
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return c.fail("%v", err)
	}
	pass, err := c.pass.Get()
	if err != nil {
		return c.fail("%v", err)
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return c.fail("generate key: %v", err)
	}
	params := crypto.StandardScrypt
	if *light {
		params = crypto.LightScrypt
	}
	if err := crypto.SaveToKeystoreWithParams(path, key, pass, params); err != nil {
		return c.fail("write keystore: %v", err)
	}
	if *saveProf {
		if c.settings.profilePath == "" {
			return c.fail("no profile path available")
		}
		if err := saveProfile(c.settings.profilePath, Profile{RPC: c.settings.endpoint, Keystore: path}); err != nil {
			return c.fail("write profile: %v", err)
		}
	}
	return c.print(map[string]string{"address": key.PubKey().String(), "keystore": path})
}

func (c *cli) runAddress(args []string) int {
	fs := c.newFlags("address")
	if !c.parse(fs, args) {
		return 1
	}
	key, err := c.loadKey()
	if err != nil {
		return c.fail("%v", err)
	}
	return c.print(map[string]string{"address": key.PubKey().String()})
}

func (c *cli) runDerive(args []string) int {
	fs := c.newFlags("derive")
	authority := fs.String("authority", "", "round operator address")
	roundID := fs.Uint64("round-id", 0, "operator-chosen round identifier")
	entrant := fs.String("entrant", "", "entrant address (derives the entry too)")
	nonce := fs.Uint64("nonce", 0, "entry nonce")
	if !c.parse(fs, args) {
		return 1
	}
	auth, err := parseRequiredAddress("authority", *authority)
	if err != nil {
		return c.fail("%v", err)
	}
	if err := checkRange("nonce", *nonce, math.MaxUint8); err != nil {
		return c.fail("%v", err)
	}
	params := rpc.DeriveParams{Authority: auth.String(), RoundID: *roundID, Nonce: uint8(*nonce)}
	if strings.TrimSpace(*entrant) != "" {
		addr, err := parseRequiredAddress("entrant", *entrant)
		if err != nil {
			return c.fail("%v", err)
		}
		params.Entrant = addr.String()
	}
	var res rpc.AddressesResult
	return c.query(rpc.MethodDeriveAddresses, []interface{}{params}, &res)
}

func (c *cli) runInitRound(args []string) int {
	fs := c.newFlags("init-round")
	roundID := fs.Uint64("round-id", 0, "operator-chosen round identifier")
	price := fs.Uint64("price", 0, "ticket price in lamports")
	maxEntries := fs.Uint64("max-entries", 0, "maximum receipts (0 = unlimited)")
	duration := fs.Uint64("duration", 0, "round length in slots")
	bps := fs.Uint64("retained-bps", 0, "treasury share of the pot in basis points")
	if !c.parse(fs, args) {
		return 1
	}
	if err := checkRange("max-entries", *maxEntries, math.MaxUint32); err != nil {
		return c.fail("%v", err)
	}
	if err := checkRange("retained-bps", *bps, math.MaxUint16); err != nil {
		return c.fail("%v", err)
	}
	key, err := c.loadKey()
	if err != nil {
		return c.fail("%v", err)
	}
	accts, err := c.derive(key.PubKey(), *roundID, nil, 0)
	if err != nil {
		return c.rpcFailure(err)
	}
	ix := rpc.InitializeRoundInstruction{
		Accounts: lotto.InitializeRoundAccounts{
			Authority:     key.PubKey(),
			Round:         accts.round,
			Treasury:      accts.treasury,
			TreasuryVault: accts.vault,
		},
		Args: lotto.InitializeRoundArgs{
			RoundID:             *roundID,
			TicketPriceLamports: *price,
			MaxEntries:          uint32(*maxEntries),
			DurationSlots:       *duration,
			RetainedBps:         uint16(*bps),
		},
	}
	var res rpc.RoundResult
	return c.submit(key, rpc.MethodInitializeRound, ix, &res)
}

func (c *cli) runJoin(args []string) int {
	fs := c.newFlags("join")
	authority := fs.String("authority", "", "round operator address")
	roundID := fs.Uint64("round-id", 0, "round identifier")
	tickets := fs.Uint64("tickets", 1, "tickets to buy")
	nonce := fs.Uint64("nonce", 0, "entry nonce (one receipt per nonce)")
	if !c.parse(fs, args) {
		return 1
	}
	auth, err := parseRequiredAddress("authority", *authority)
	if err != nil {
		return c.fail("%v", err)
	}
	if err := checkRange("tickets", *tickets, math.MaxUint16); err != nil {
		return c.fail("%v", err)
	}
	if err := checkRange("nonce", *nonce, math.MaxUint8); err != nil {
		return c.fail("%v", err)
	}
	key, err := c.loadKey()
	if err != nil {
		return c.fail("%v", err)
	}
	entrant := key.PubKey()
	accts, err := c.derive(auth, *roundID, &entrant, uint8(*nonce))
	if err != nil {
		return c.rpcFailure(err)
	}
	ix := rpc.JoinRoundInstruction{
		Accounts: lotto.JoinRoundAccounts{
			Entrant:       entrant,
			Round:         accts.round,
			Treasury:      accts.treasury,
			TreasuryVault: accts.vault,
			Entry:         accts.entry,
		},
		Args: lotto.JoinRoundArgs{Tickets: uint16(*tickets), Nonce: uint8(*nonce)},
	}
	var res rpc.EntryResult
	return c.submit(key, rpc.MethodJoinRound, ix, &res)
}

func (c *cli) runSettle(args []string) int {
	fs := c.newFlags("settle")
	roundID := fs.Uint64("round-id", 0, "round identifier")
	winning := fs.String("winning-entry", "", "receipt address selected as the winner")
	if !c.parse(fs, args) {
		return 1
	}
	entry, err := parseRequiredAddress("winning-entry", *winning)
	if err != nil {
		return c.fail("%v", err)
	}
	key, err := c.loadKey()
	if err != nil {
		return c.fail("%v", err)
	}
	accts, err := c.derive(key.PubKey(), *roundID, nil, 0)
	if err != nil {
		return c.rpcFailure(err)
	}
	ix := rpc.SettleRoundInstruction{Accounts: lotto.SettleRoundAccounts{
		Authority:    key.PubKey(),
		Round:        accts.round,
		Treasury:     accts.treasury,
		WinningEntry: entry,
	}}
	var res rpc.RoundResult
	return c.submit(key, rpc.MethodSettleRound, ix, &res)
}

func (c *cli) runClaimPayout(args []string) int {
	fs := c.newFlags("claim-payout")
	authority := fs.String("authority", "", "round operator address")
	roundID := fs.Uint64("round-id", 0, "round identifier")
	if !c.parse(fs, args) {
		return 1
	}
	auth, err := parseRequiredAddress("authority", *authority)
	if err != nil {
		return c.fail("%v", err)
	}
	key, err := c.loadKey()
	if err != nil {
		return c.fail("%v", err)
	}
	accts, err := c.derive(auth, *roundID, nil, 0)
	if err != nil {
		return c.rpcFailure(err)
	}
	ix := rpc.ClaimPayoutInstruction{Accounts: lotto.ClaimPayoutAccounts{
		Winner:        key.PubKey(),
		Round:         accts.round,
		Treasury:      accts.treasury,
		TreasuryVault: accts.vault,
	}}
	var res rpc.PayoutResult
	return c.submit(key, rpc.MethodClaimPayout, ix, &res)
}

func (c *cli) runClaimRefund(args []string) int {
	fs := c.newFlags("claim-refund")
	authority := fs.String("authority", "", "round operator address")
	roundID := fs.Uint64("round-id", 0, "round identifier")
	nonce := fs.Uint64("nonce", 0, "entry nonce")
	if !c.parse(fs, args) {
		return 1
	}
	auth, err := parseRequiredAddress("authority", *authority)
	if err != nil {
		return c.fail("%v", err)
	}
	if err := checkRange("nonce", *nonce, math.MaxUint8); err != nil {
		return c.fail("%v", err)
	}
	key, err := c.loadKey()
	if err != nil {
		return c.fail("%v", err)
	}
	entrant := key.PubKey()
	accts, err := c.derive(auth, *roundID, &entrant, uint8(*nonce))
	if err != nil {
		return c.rpcFailure(err)
	}
	ix := rpc.ClaimRefundInstruction{Accounts: lotto.ClaimRefundAccounts{
		Entrant:       entrant,
		Round:         accts.round,
		Treasury:      accts.treasury,
		TreasuryVault: accts.vault,
		Entry:         accts.entry,
	}}
	var res rpc.EntryResult
	return c.submit(key, rpc.MethodClaimRefund, ix, &res)
}

func (c *cli) runClose(args []string) int {
	fs := c.newFlags("close")
	roundID := fs.Uint64("round-id", 0, "round identifier")
	reason := fs.Uint64("reason", uint64(lotto.CloseReasonAdmin), "reason code recorded on the close event")
	if !c.parse(fs, args) {
		return 1
	}
	if err := checkRange("reason", *reason, math.MaxUint8); err != nil {
		return c.fail("%v", err)
	}
	key, err := c.loadKey()
	if err != nil {
		return c.fail("%v", err)
	}
	accts, err := c.derive(key.PubKey(), *roundID, nil, 0)
	if err != nil {
		return c.rpcFailure(err)
	}
	ix := rpc.AdminCloseInstruction{
		Accounts: lotto.AdminCloseAccounts{Authority: key.PubKey(), Round: accts.round},
		Args:     lotto.AdminCloseArgs{Reason: uint8(*reason)},
	}
	var res rpc.RoundResult
	return c.submit(key, rpc.MethodAdminClose, ix, &res)
}

func (c *cli) runRound(args []string) int {
	fs := c.newFlags("round")
	address := fs.String("address", "", "round address")
	authority := fs.String("authority", "", "round operator address")
	roundID := fs.Uint64("round-id", 0, "round identifier")
	if !c.parse(fs, args) {
		return 1
	}
	var round solana.PublicKey
	switch {
	case strings.TrimSpace(*address) != "":
		addr, err := parseRequiredAddress("address", *address)
		if err != nil {
			return c.fail("%v", err)
		}
		round = addr
	case strings.TrimSpace(*authority) != "":
		auth, err := parseRequiredAddress("authority", *authority)
		if err != nil {
			return c.fail("%v", err)
		}
		accts, err := c.derive(auth, *roundID, nil, 0)
		if err != nil {
			return c.rpcFailure(err)
		}
		round = accts.round
	default:
		return c.fail("--address or --authority is required")
	}
	var res rpc.RoundResult
	return c.query(rpc.MethodGetRound, []interface{}{round.String()}, &res)
}

func (c *cli) runRounds(args []string) int {
	fs := c.newFlags("rounds")
	authority := fs.String("authority", "", "only list rounds of this operator")
	offset := fs.Int("offset", 0, "rounds to skip")
	limit := fs.Int("limit", 0, "maximum rounds to return")
	if !c.parse(fs, args) {
		return 1
	}
	params := rpc.ListRoundsParams{Offset: *offset, Limit: *limit}
	if strings.TrimSpace(*authority) != "" {
		auth, err := parseRequiredAddress("authority", *authority)
		if err != nil {
			return c.fail("%v", err)
		}
		params.Authority = auth.String()
	}
	var res []rpc.RoundResult
	return c.query(rpc.MethodListRounds, []interface{}{params}, &res)
}

func (c *cli) runEntry(args []string) int {
	fs := c.newFlags("entry")
	address := fs.String("address", "", "receipt address")
	if !c.parse(fs, args) {
		return 1
	}
	addr, err := parseRequiredAddress("address", *address)
	if err != nil {
		return c.fail("%v", err)
	}
	var res rpc.EntryResult
	return c.query(rpc.MethodGetEntry, []interface{}{addr.String()}, &res)
}

func (c *cli) runEntries(args []string) int {
	fs := c.newFlags("entries")
	round := fs.String("round", "", "list receipts of this round")
	entrant := fs.String("entrant", "", "list receipts held by this address")
	offset := fs.Int("offset", 0, "receipts to skip")
	limit := fs.Int("limit", 0, "maximum receipts to return")
	if !c.parse(fs, args) {
		return 1
	}
	if (strings.TrimSpace(*round) == "") == (strings.TrimSpace(*entrant) == "") {
		return c.fail("exactly one of --round or --entrant is required")
	}
	params := rpc.ListEntriesParams{Offset: *offset, Limit: *limit}
	if strings.TrimSpace(*round) != "" {
		addr, err := parseRequiredAddress("round", *round)
		if err != nil {
			return c.fail("%v", err)
		}
		params.Round = addr.String()
	} else {
		addr, err := parseRequiredAddress("entrant", *entrant)
		if err != nil {
			return c.fail("%v", err)
		}
		params.Entrant = addr.String()
	}
	var res []rpc.EntryResult
	return c.query(rpc.MethodListEntries, []interface{}{params}, &res)
}

func (c *cli) runBalance(args []string) int {
	fs := c.newFlags("balance")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	var target string
	switch fs.NArg() {
	case 0:
		key, err := c.loadKey()
		if err != nil {
			return c.fail("%v", err)
		}
		target = key.PubKey().String()
	case 1:
		addr, err := crypto.ParseAddress(fs.Arg(0))
		if err != nil {
			return c.fail("invalid address: %v", err)
		}
		target = addr.String()
	default:
		return c.fail("balance takes at most one address")
	}
	var res rpc.BalanceResult
	return c.query(rpc.MethodGetBalance, []interface{}{target}, &res)
}

func (c *cli) runAirdrop(args []string) int {
	fs := c.newFlags("airdrop")
	lamports := fs.Uint64("lamports", 0, "lamports to credit")
	to := fs.String("to", "", "recipient (defaults to the keystore address)")
	if !c.parse(fs, args) {
		return 1
	}
	if *lamports == 0 {
		return c.fail("--lamports must be greater than zero")
	}
	var recipient string
	if strings.TrimSpace(*to) != "" {
		addr, err := parseRequiredAddress("to", *to)
		if err != nil {
			return c.fail("%v", err)
		}
		recipient = addr.String()
	} else {
		key, err := c.loadKey()
		if err != nil {
			return c.fail("%v", err)
		}
		recipient = key.PubKey().String()
	}
	var res rpc.BalanceResult
	return c.query(rpc.MethodRequestAirdrop, []interface{}{rpc.AirdropParams{Address: recipient, Lamports: *lamports}}, &res)
}

func (c *cli) runSlot(args []string) int {
	fs := c.newFlags("slot")
	if !c.parse(fs, args) {
		return 1
	}
	var res rpc.SlotResult
	return c.query(rpc.MethodGetSlot, nil, &res)
}

func (c *cli) runActivity(args []string) int {
	fs := c.newFlags("activity")
	wallet := fs.String("wallet", "", "only list activity of this address")
	limit := fs.Int("limit", 0, "maximum records to return")
	if !c.parse(fs, args) {
		return 1
	}
	params := rpc.ActivityParams{Limit: *limit}
	if strings.TrimSpace(*wallet) != "" {
		addr, err := parseRequiredAddress("wallet", *wallet)
		if err != nil {
			return c.fail("%v", err)
		}
		params.Wallet = addr.String()
	}
	var res []map[string]interface{}
	return c.query(rpc.MethodListActivity, []interface{}{params}, &res)
}

func (c *cli) runIndexedRounds(args []string) int {
	fs := c.newFlags("indexed-rounds")
	status := fs.String("status", "", "only list rounds in this status")
	limit := fs.Int("limit", 0, "maximum records to return")
	if !c.parse(fs, args) {
		return 1
	}
	var res []map[string]interface{}
	return c.query(rpc.MethodIndexedRounds, []interface{}{rpc.IndexedRoundsParams{Status: strings.TrimSpace(*status), Limit: *limit}}, &res)
}
