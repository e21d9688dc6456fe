package binance

import (
	"errors"
	"strings"

	"github.com/adshao/go-binance/v2/common"
)

// Venue error codes the adapter reacts to. Everything else is surfaced
// unchanged to the caller.
const (
	codeDisconnected      = -1001 // internal error, retryable
	codeTimeout           = -1007 // gateway timeout, retryable
	codeUnknownOrderSent  = -2011 // cancel target does not exist
	codeNoSuchOrder       = -2013 // query target does not exist
	codeBadAPIKeyFormat   = -2014
	codeRejectedAPIKey    = -2015 // bad key, bad secret, or IP not allowed
	codePositionModeNoOp  = -4059 // "No need to change position side"
)

func apiErrorCode(err error) (int64, bool) {
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code, true
	}
	return 0, false
}

// isUnknownOrder reports whether the venue no longer knows the order the
// request referred to.
func isUnknownOrder(err error) bool {
	if code, ok := apiErrorCode(err); ok {
		return code == codeUnknownOrderSent || code == codeNoSuchOrder
	}
	return strings.Contains(err.Error(), "Unknown order sent")
}

// isAuthError reports whether the venue rejected our credentials. Not
// retryable; the operator has to fix the key, secret, or IP allowlist.
func isAuthError(err error) bool {
	code, ok := apiErrorCode(err)
	return ok && (code == codeRejectedAPIKey || code == codeBadAPIKeyFormat)
}

// isPositionModeUnchanged reports the harmless "already in that mode"
// response to a position-mode change.
func isPositionModeUnchanged(err error) bool {
	if code, ok := apiErrorCode(err); ok {
		return code == codePositionModeNoOp
	}
	return strings.Contains(err.Error(), "No need to change position side")
}

// isTransient reports errors worth a short retry: network failures and the
// venue's own retryable codes.
func isTransient(err error) bool {
	code, ok := apiErrorCode(err)
	if !ok {
		return true // network-level failure
	}
	return code == codeDisconnected || code == codeTimeout
}
