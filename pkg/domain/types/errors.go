package types

import "github.com/m-mizutani/goerr/v2"

var (
	// ErrAuthorizationDenied is returned before any store mutation when the
	// actor has no grant covering the requested action.
	ErrAuthorizationDenied = goerr.New("authorization denied")

	// ErrReferenceConflict is the compare-and-swap mismatch on a reference
	// update. It is reported to the caller and never retried internally.
	ErrReferenceConflict = goerr.New("reference conflict")

	// ErrObjectCorrupt indicates a hash or reachability validation failure
	// on incoming objects. Nothing is partially stored.
	ErrObjectCorrupt = goerr.New("object corrupt")

	// ErrTransportFailure is a mid-stream transport error. The affected
	// reference is left unchanged.
	ErrTransportFailure = goerr.New("transport failure")

	// ErrPluginUnreachable is dispatcher-local and never propagated to a
	// git client.
	ErrPluginUnreachable = goerr.New("plugin unreachable")

	ErrValidationFailed = goerr.New("validation failed")
	ErrInvalidOption    = goerr.New("invalid option")
)
