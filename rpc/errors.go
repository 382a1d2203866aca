package rpc

import (
	"context"
	"errors"
	"net/http"

	"lottochain/core/runtime"
	"lottochain/native/lotto"
)

type ledgerErrorData struct {
	Code uint32 `json:"code"`
	Kind string `json:"kind"`
	Name string `json:"name"`
}

// writeLedgerError maps a runtime or engine failure onto the JSON-RPC error
// space by error kind.
func writeLedgerError(w http.ResponseWriter, id interface{}, err error) {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, id, codeUnavailable, "request cancelled", err.Error())
		return
	case errors.Is(err, runtime.ErrAirdropDisabled):
		writeError(w, http.StatusForbidden, id, codeForbidden, "airdrop disabled", nil)
		return
	case errors.Is(err, runtime.ErrAirdropLimit):
		writeError(w, http.StatusBadRequest, id, codeInvalidParams, "airdrop exceeds per-request limit", nil)
		return
	}

	coded, ok := lotto.AsError(err)
	if !ok {
		writeError(w, http.StatusInternalServerError, id, codeServerError, "internal_error", err.Error())
		return
	}
	data := ledgerErrorData{Code: coded.Code, Kind: coded.Kind.String(), Name: coded.Name}
	status, code := http.StatusInternalServerError, codeServerError
	switch coded.Kind {
	case lotto.KindValidation:
		status, code = http.StatusBadRequest, codeInvalidParams
	case lotto.KindAuthorization:
		status, code = http.StatusForbidden, codeForbidden
	case lotto.KindState:
		status, code = http.StatusConflict, codeStateConflict
	case lotto.KindArithmetic:
		status, code = http.StatusUnprocessableEntity, codeArithmetic
	case lotto.KindResource:
		status, code = http.StatusUnprocessableEntity, codeInsufficient
	case lotto.KindNotFound:
		status, code = http.StatusNotFound, codeNotFound
	}
	writeError(w, status, id, code, coded.Message, data)
}
