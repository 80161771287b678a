// Package errors provides the gRPC-status-shaped error vocabulary used by
// the vault's sign path. The lifecycle pipelines (collector, cleaner) never
// let these escape; they capture them into a GarbageRecord or a log line
// instead.
package errors

import (
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/protoadapt"
)

func New(code codes.Code, msg string, details ...protoadapt.MessageV1) *status.Status {
	s, err := status.New(code, msg).WithDetails(details...)
	if err != nil {
		return status.New(codes.Internal, "internal error")
	}

	return s
}

// Validation reports a caller-supplied sign/rotate request that failed
// input validation (missing domain, non-object payload, oversize payload).
func Validation(reason string) *status.Status {
	return New(codes.InvalidArgument, reason, &errdetails.ErrorInfo{
		Domain: "vault.keyforge.dev",
		Reason: "ValidationError",
	})
}

// MissingKey reports that a domain has no active signing key.
func MissingKey(domain string) *status.Status {
	return New(codes.FailedPrecondition, "no active signing key for domain '"+domain+"'", &errdetails.ErrorInfo{
		Domain: "vault.keyforge.dev",
		Reason: "MissingKeyError",
	})
}

// CryptoFailure reports that a crypto primitive (import, sign, PEM decode)
// failed. The message must never embed secret material.
func CryptoFailure(reason string) *status.Status {
	return New(codes.Internal, reason, &errdetails.ErrorInfo{
		Domain: "vault.keyforge.dev",
		Reason: "CryptoFailure",
	})
}

func Unauthenticated() *status.Status {
	return New(codes.Unauthenticated, "Request is unauthenticated. Please provide an authentication token and try again.", &errdetails.Help{
		Links: []*errdetails.Help_Link{{
			Description: "Authentication Guide",
			Url:         "https://docs.keyforge.dev/vault/guides/authentication",
		}},
	})
}

func NotFound(reason string) *status.Status {
	return New(codes.NotFound, reason, &errdetails.ErrorInfo{
		Domain: "vault.keyforge.dev",
		Reason: "NotFound",
	})
}

func Internal() *status.Status {
	return New(
		codes.Internal,
		"Internal error encountered. Please reach out to support for additional help with the request.",
		&errdetails.ErrorInfo{
			Domain: "vault.keyforge.dev",
			Reason: "InternalError",
		},
	)
}
