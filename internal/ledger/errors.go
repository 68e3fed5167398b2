package ledger

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/rpc"

	appErrors "github.com/noah-isme/kyc-attestation-api/pkg/errors"
	"github.com/noah-isme/kyc-attestation-api/pkg/wallet"
)

var errNoSender = errors.New("no signer for transaction sender")

// signerError marks failures raised by the external signer during Transact.
type signerError struct{ err error }

func (e *signerError) Error() string { return e.err.Error() }
func (e *signerError) Unwrap() error { return e.err }

func rejected(op, reason string) error {
	return appErrors.Clone(appErrors.ErrLedgerRejected, fmt.Sprintf("%s: %s", op, reason))
}

// classify maps a binding failure onto the error taxonomy.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return err
	}

	var signErr *signerError
	if errors.As(err, &signErr) || errors.Is(err, wallet.ErrNoSigner) {
		return appErrors.WrapAs(err, appErrors.ErrAuthentication, op+": transaction signature was not provided")
	}

	if reason, ok := revertReason(err); ok {
		return appErrors.WrapAs(err, appErrors.ErrLedgerRejected, fmt.Sprintf("%s: %s", op, reason))
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"insufficient funds", "nonce too low", "intrinsic gas too low", "exceeds block gas limit"} {
		if strings.Contains(msg, marker) {
			return appErrors.WrapAs(err, appErrors.ErrLedgerRejected, fmt.Sprintf("%s: %s", op, marker))
		}
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return appErrors.WrapAs(err, appErrors.ErrTransport, op+": request cancelled")
	}
	return appErrors.WrapAs(err, appErrors.ErrTransport, op+": ledger unreachable")
}

func revertReason(err error) (string, bool) {
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		if raw, ok := dataErr.ErrorData().(string); ok {
			if data, decodeErr := hex.DecodeString(strings.TrimPrefix(raw, "0x")); decodeErr == nil {
				if reason, unpackErr := abi.UnpackRevert(data); unpackErr == nil {
					return reason, true
				}
			}
		}
		if strings.Contains(strings.ToLower(dataErr.Error()), "revert") {
			return dataErr.Error(), true
		}
	}
	msg := err.Error()
	if idx := strings.Index(strings.ToLower(msg), "execution reverted"); idx >= 0 {
		reason := strings.TrimSpace(strings.TrimPrefix(msg[idx+len("execution reverted"):], ":"))
		if reason == "" {
			reason = "execution reverted"
		}
		return reason, true
	}
	return "", false
}
