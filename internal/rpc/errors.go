package rpc

import (
	"errors"

	"github.com/jmerrifield20/tokenledger/internal/ledger"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrorDomain identifies ledger errors in ErrorInfo details.
const ErrorDomain = "tokenledger"

func codeFor(err error) codes.Code {
	switch {
	case errors.Is(err, ledger.ErrNotInitialized),
		errors.Is(err, ledger.ErrInsufficientBalance):
		return codes.FailedPrecondition
	case errors.Is(err, ledger.ErrAlreadyInitialized):
		return codes.AlreadyExists
	case errors.Is(err, ledger.ErrNotAuthorized),
		errors.Is(err, ledger.ErrNotOwner):
		return codes.PermissionDenied
	case errors.Is(err, ledger.ErrAmountOverflow):
		return codes.OutOfRange
	case errors.Is(err, ledger.ErrInvalidPrincipal),
		errors.Is(err, ledger.ErrInvalidAmount):
		return codes.InvalidArgument
	}
	return codes.Internal
}

// toStatus converts a ledger error into a gRPC status whose details carry
// the ledger error code as an ErrorInfo reason.
func toStatus(err error) error {
	st := status.New(codeFor(err), err.Error())
	code := ledger.Code(err)
	if code == "" {
		return st.Err()
	}
	withInfo, derr := st.WithDetails(&errdetails.ErrorInfo{Reason: code, Domain: ErrorDomain})
	if derr != nil {
		return st.Err()
	}
	return withInfo.Err()
}

// LedgerCode extracts the ledger error code from a status error, or "".
func LedgerCode(err error) string {
	st, ok := status.FromError(err)
	if !ok {
		return ""
	}
	for _, d := range st.Details() {
		if info, ok := d.(*errdetails.ErrorInfo); ok && info.GetDomain() == ErrorDomain {
			return info.GetReason()
		}
	}
	return ""
}

func invalidArg(msg string) error {
	return status.Error(codes.InvalidArgument, msg)
}
