package handlers

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"milestone-escrow/errs"
	"milestone-escrow/logger"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// IdentityHeader carries the caller's opaque identity
const IdentityHeader = "X-Identity"

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Logger.Error("Failed to encode response", zap.Error(err))
	}
}

func statusFor(kind errs.Kind) int {
	switch kind {
	case errs.KindInvalidParameters:
		return http.StatusBadRequest
	case errs.KindUnauthorized, errs.KindInsufficientPrivilege:
		return http.StatusForbidden
	case errs.KindNotFound:
		return http.StatusNotFound
	case errs.KindInvalidState, errs.KindDuplicateAction:
		return http.StatusConflict
	case errs.KindTransferFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps err onto a status code and the {"error","code","kind"} body
func writeError(w http.ResponseWriter, op string, err error) {
	kind := errs.KindOf(err)
	status := statusFor(kind)
	if status >= http.StatusInternalServerError {
		logger.Logger.Error("Failed to "+op, zap.Error(err))
	} else {
		logger.Logger.Warn("Rejected "+op, zap.String("code", errs.CodeOf(err)), zap.Error(err))
	}

	msg := err.Error()
	if kind == errs.KindUnknown {
		msg = "internal error"
	}
	writeJSON(w, status, map[string]string{
		"error": msg,
		"code":  errs.CodeOf(err),
		"kind":  kind.String(),
	})
}

func decode(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errs.Wrap(errs.Detail(errs.ErrInvalidParameters, "invalid request payload"), err)
	}
	return nil
}

func identity(r *http.Request) (string, error) {
	id := r.Header.Get(IdentityHeader)
	if id == "" {
		return "", errs.Detail(errs.ErrInvalidParameters, "%s header is required", IdentityHeader)
	}
	return id, nil
}

func pathUint(r *http.Request, name string) (uint64, error) {
	v, err := strconv.ParseUint(mux.Vars(r)[name], 10, 64)
	if err != nil {
		return 0, errs.Detail(errs.ErrInvalidParameters, "invalid %s", name)
	}
	return v, nil
}

func pathInt(r *http.Request, name string) (int, error) {
	v, err := strconv.Atoi(mux.Vars(r)[name])
	if err != nil {
		return 0, errs.Detail(errs.ErrInvalidParameters, "invalid %s", name)
	}
	return v, nil
}
