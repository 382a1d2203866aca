package rpc

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"lukechampine.com/blake3"

	"lottochain/crypto"
	"lottochain/native/lotto"
	"lottochain/observability"
)

// signedRequest is a verified instruction awaiting execution.
type signedRequest struct {
	signer solana.PublicKey
	digest string
}

// decodeSigned verifies the signature envelope of req and decodes the
// instruction into dst. On failure the error response has been written.
func (s *Server) decodeSigned(w http.ResponseWriter, r *http.Request, req *RPCRequest, dst interface{}) (*signedRequest, bool) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "signed instruction object required", nil)
		return nil, false
	}
	var params SignedParams
	if err := json.Unmarshal(req.Params[0], &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid signed instruction", err.Error())
		return nil, false
	}
	signer, err := crypto.ParseAddress(params.Signer)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid signer", err.Error())
		return nil, false
	}
	if strings.TrimSpace(params.Payload) == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "payload required", nil)
		return nil, false
	}

	source := s.clientSource(r)
	if !s.limiter.allow(source, time.Now()) {
		observabilityThrottle("rate_limit")
		writeError(w, http.StatusTooManyRequests, req.ID, codeRateLimited, "instruction rate limit exceeded", source)
		return nil, false
	}

	if err := crypto.VerifyRequest(signer, req.Method, []byte(params.Payload), params.Signature); err != nil {
		writeError(w, http.StatusUnauthorized, req.ID, codeUnauthorized, "invalid instruction signature", err.Error())
		return nil, false
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(params.Payload)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid instruction payload", err.Error())
		return nil, false
	}

	sum := blake3.Sum256([]byte(params.Signature))
	digest := hex.EncodeToString(sum[:])
	if !s.rememberTx(digest, time.Now()) {
		observabilityThrottle("duplicate")
		writeError(w, http.StatusConflict, req.ID, codeDuplicateTx, "instruction has already been submitted", digest)
		return nil, false
	}
	return &signedRequest{signer: signer, digest: digest}, true
}

// requireSigner rejects instructions whose declared signer account is not
// the key that signed the envelope.
func (s *Server) requireSigner(w http.ResponseWriter, req *RPCRequest, signed *signedRequest, declared solana.PublicKey) bool {
	if signed.signer.Equals(declared) {
		return true
	}
	s.forgetTx(signed.digest)
	writeError(w, http.StatusForbidden, req.ID, codeForbidden, "signer does not match instruction signer account", declared.String())
	return false
}

func (s *Server) failSigned(w http.ResponseWriter, r *http.Request, req *RPCRequest, signed *signedRequest, err error) {
	s.forgetTx(signed.digest)
	s.logger.Debug("instruction rejected",
		slog.String("method", req.Method),
		slog.String("signer", signed.signer.String()),
		slog.String("request_id", requestID(r)),
		slog.Any("error", err))
	writeLedgerError(w, req.ID, err)
}

func (s *Server) handleInitializeRound(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var ix InitializeRoundInstruction
	signed, ok := s.decodeSigned(w, r, req, &ix)
	if !ok || !s.requireSigner(w, req, signed, ix.Accounts.Authority) {
		return
	}
	round, err := s.ledger.InitializeRound(r.Context(), ix.Accounts, ix.Args)
	if err != nil {
		s.failSigned(w, r, req, signed, err)
		return
	}
	writeResult(w, req.ID, roundResult(round))
}

func (s *Server) handleJoinRound(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var ix JoinRoundInstruction
	signed, ok := s.decodeSigned(w, r, req, &ix)
	if !ok || !s.requireSigner(w, req, signed, ix.Accounts.Entrant) {
		return
	}
	entry, err := s.ledger.JoinRound(r.Context(), ix.Accounts, ix.Args)
	if err != nil {
		s.failSigned(w, r, req, signed, err)
		return
	}
	writeResult(w, req.ID, entryResult(entry))
}

func (s *Server) handleSettleRound(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var ix SettleRoundInstruction
	signed, ok := s.decodeSigned(w, r, req, &ix)
	if !ok || !s.requireSigner(w, req, signed, ix.Accounts.Authority) {
		return
	}
	round, err := s.ledger.SettleRound(r.Context(), ix.Accounts)
	if err != nil {
		s.failSigned(w, r, req, signed, err)
		return
	}
	writeResult(w, req.ID, roundResult(round))
}

func (s *Server) handleClaimPayout(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var ix ClaimPayoutInstruction
	signed, ok := s.decodeSigned(w, r, req, &ix)
	if !ok || !s.requireSigner(w, req, signed, ix.Accounts.Winner) {
		return
	}
	round, amount, err := s.ledger.ClaimPayout(r.Context(), ix.Accounts)
	if err != nil {
		s.failSigned(w, r, req, signed, err)
		return
	}
	writeResult(w, req.ID, PayoutResult{Round: roundResult(round), Amount: amount})
}

func (s *Server) handleClaimRefund(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var ix ClaimRefundInstruction
	signed, ok := s.decodeSigned(w, r, req, &ix)
	if !ok || !s.requireSigner(w, req, signed, ix.Accounts.Entrant) {
		return
	}
	entry, err := s.ledger.ClaimRefund(r.Context(), ix.Accounts)
	if err != nil {
		s.failSigned(w, r, req, signed, err)
		return
	}
	writeResult(w, req.ID, entryResult(entry))
}

func (s *Server) handleAdminClose(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var ix AdminCloseInstruction
	signed, ok := s.decodeSigned(w, r, req, &ix)
	if !ok || !s.requireSigner(w, req, signed, ix.Accounts.Authority) {
		return
	}
	round, err := s.ledger.AdminClose(r.Context(), ix.Accounts, ix.Args)
	if err != nil {
		s.failSigned(w, r, req, signed, err)
		return
	}
	writeResult(w, req.ID, roundResult(round))
}

func (s *Server) handleRequestAirdrop(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "parameter object required", nil)
		return
	}
	var params AirdropParams
	if err := json.Unmarshal(req.Params[0], &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameter object", err.Error())
		return
	}
	addr, err := crypto.ParseAddress(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid address", err.Error())
		return
	}
	account, err := s.ledger.Airdrop(r.Context(), addr, params.Lamports)
	if err != nil {
		writeLedgerError(w, req.ID, err)
		return
	}
	s.logger.Info("airdrop credited",
		slog.String("address", addr.String()),
		slog.Uint64("lamports", params.Lamports),
		slog.String("request_id", requestID(r)))
	writeResult(w, req.ID, BalanceResult{Address: addr.String(), Lamports: account.Lamports})
}

// parseAddressParam accepts either a bare base58 string or {"address": ...}.
func parseAddressParam(params []json.RawMessage) (solana.PublicKey, error) {
	if len(params) != 1 {
		return solana.PublicKey{}, errors.New("address parameter required")
	}
	var direct string
	if err := json.Unmarshal(params[0], &direct); err == nil {
		return crypto.ParseAddress(direct)
	}
	var wrapper AddressParams
	if err := json.Unmarshal(params[0], &wrapper); err != nil {
		return solana.PublicKey{}, fmt.Errorf("invalid address parameter: %w", err)
	}
	return crypto.ParseAddress(wrapper.Address)
}

func decodeObjectParam(params []json.RawMessage, dst interface{}) error {
	if len(params) == 0 {
		return nil
	}
	if len(params) > 1 {
		return errors.New("at most one parameter object expected")
	}
	return json.Unmarshal(params[0], dst)
}

func (s *Server) handleGetRound(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	addr, err := parseAddressParam(req.Params)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	round, err := s.ledger.Round(addr)
	if err != nil {
		writeLedgerError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, roundResult(round))
}

func (s *Server) handleGetEntry(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	addr, err := parseAddressParam(req.Params)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	entry, err := s.ledger.Entry(addr)
	if err != nil {
		writeLedgerError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, entryResult(entry))
}

func (s *Server) handleGetTreasury(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	addr, err := parseAddressParam(req.Params)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	treasury, err := s.ledger.Treasury(addr)
	if err != nil {
		writeLedgerError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, treasuryResult(treasury))
}

func (s *Server) handleGetBalance(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	addr, err := parseAddressParam(req.Params)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	lamports, err := s.ledger.Balance(addr)
	if err != nil {
		writeLedgerError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, BalanceResult{Address: addr.String(), Lamports: lamports})
}

func (s *Server) handleListEntries(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params ListEntriesParams
	if err := decodeObjectParam(req.Params, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameter object", err.Error())
		return
	}
	if (params.Round == "") == (params.Entrant == "") {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "exactly one of round or entrant required", nil)
		return
	}
	var (
		list []*lotto.Entry
		err  error
	)
	if params.Round != "" {
		round, parseErr := crypto.ParseAddress(params.Round)
		if parseErr != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid round", parseErr.Error())
			return
		}
		list, err = s.ledger.ListEntries(round, params.Offset, params.Limit)
	} else {
		entrant, parseErr := crypto.ParseAddress(params.Entrant)
		if parseErr != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid entrant", parseErr.Error())
			return
		}
		list, err = s.ledger.EntrantEntries(entrant)
	}
	if err != nil {
		writeLedgerError(w, req.ID, err)
		return
	}
	out := make([]EntryResult, 0, len(list))
	for _, entry := range list {
		out = append(out, entryResult(entry))
	}
	writeResult(w, req.ID, out)
}

func (s *Server) handleListRounds(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params ListRoundsParams
	if err := decodeObjectParam(req.Params, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameter object", err.Error())
		return
	}
	var authority solana.PublicKey
	if params.Authority != "" {
		parsed, err := crypto.ParseAddress(params.Authority)
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid authority", err.Error())
			return
		}
		authority = parsed
	}
	rounds, err := s.ledger.ListRounds(authority, params.Offset, params.Limit)
	if err != nil {
		writeLedgerError(w, req.ID, err)
		return
	}
	out := make([]RoundResult, 0, len(rounds))
	for _, round := range rounds {
		out = append(out, roundResult(round))
	}
	writeResult(w, req.ID, out)
}

func (s *Server) handleDeriveAddresses(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params DeriveParams
	if err := decodeObjectParam(req.Params, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameter object", err.Error())
		return
	}
	authority, err := crypto.ParseAddress(params.Authority)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid authority", err.Error())
		return
	}
	addrs, err := s.ledger.DeriveAddresses(authority, params.RoundID)
	if err != nil {
		writeLedgerError(w, req.ID, err)
		return
	}
	result := addressesResult(s.ledger.ProgramID(), addrs)
	if params.Entrant != "" {
		entrant, err := crypto.ParseAddress(params.Entrant)
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid entrant", err.Error())
			return
		}
		entry, err := s.ledger.DeriveEntry(addrs.Round, entrant, params.Nonce)
		if err != nil {
			writeLedgerError(w, req.ID, err)
			return
		}
		result.Entry = entry.String()
	}
	writeResult(w, req.ID, result)
}

func (s *Server) handleListActivity(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if s.activity == nil {
		writeError(w, http.StatusServiceUnavailable, req.ID, codeUnavailable, "activity index not configured", nil)
		return
	}
	var params ActivityParams
	if err := decodeObjectParam(req.Params, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameter object", err.Error())
		return
	}
	if params.Wallet != "" {
		if _, err := crypto.ParseAddress(params.Wallet); err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid wallet", err.Error())
			return
		}
	}
	records, err := s.activity.Activity(r.Context(), params.Wallet, params.Limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "failed to load activity", err.Error())
		return
	}
	writeResult(w, req.ID, records)
}

func (s *Server) handleIndexedRounds(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if s.activity == nil {
		writeError(w, http.StatusServiceUnavailable, req.ID, codeUnavailable, "activity index not configured", nil)
		return
	}
	var params IndexedRoundsParams
	if err := decodeObjectParam(req.Params, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameter object", err.Error())
		return
	}
	if params.Status != "" {
		if _, err := lotto.ParseRoundStatus(params.Status); err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid status", err.Error())
			return
		}
	}
	records, err := s.activity.Rounds(r.Context(), params.Status, params.Limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "failed to load rounds", err.Error())
		return
	}
	writeResult(w, req.ID, records)
}

func observabilityThrottle(reason string) {
	observability.ModuleMetrics().RecordThrottle(moduleName, reason)
}
