package rpc

import (
	"context"
	"errors"
	"strings"

	"connectrpc.com/connect"

	"github.com/mmynk/roommates/internal/apperr"
	"github.com/mmynk/roommates/internal/middleware"
)

// errorMetaPrefix prefixes error metadata keys in response headers,
// e.g. member_count becomes X-Error-Member-Count.
const errorMetaPrefix = "X-Error-"

// toConnectError maps a service error to a Connect error. The domain code
// and metadata travel as headers; causes of dependency failures stay in the
// server log.
func toConnectError(err error) *connect.Error {
	var cerr *connect.Error
	if errors.As(err, &cerr) {
		return cerr
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return connect.NewError(connect.CodeDeadlineExceeded, errors.New("request timed out"))
	case errors.Is(err, context.Canceled):
		return connect.NewError(connect.CodeCanceled, errors.New("request canceled"))
	}

	code := apperr.CodeOf(err)
	msg := "internal error"
	var meta map[string]string
	if e, ok := apperr.As(err); ok {
		msg, meta = e.Message, e.Metadata
	}

	cerr = connect.NewError(connectCode(code), errors.New(msg))
	cerr.Meta().Set(middleware.ErrorCodeHeader, string(code))
	for k, v := range meta {
		cerr.Meta().Set(errorMetaPrefix+strings.ReplaceAll(k, "_", "-"), v)
	}
	return cerr
}

func connectCode(code apperr.Code) connect.Code {
	if code == apperr.CodeUnauthenticated {
		return connect.CodeUnauthenticated
	}
	switch code.Kind() {
	case apperr.KindValidation:
		return connect.CodeInvalidArgument
	case apperr.KindNotFound:
		return connect.CodeNotFound
	case apperr.KindConflict:
		return connect.CodeAlreadyExists
	case apperr.KindForbidden:
		return connect.CodePermissionDenied
	default:
		return connect.CodeUnavailable
	}
}
