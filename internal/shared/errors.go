package shared

import "fmt"

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// Ledger errors
	ErrItemNotFound      = fmt.Errorf("item not found")
	ErrInvalidTransition = fmt.Errorf("invalid status transition")
	ErrLedgerLocked      = fmt.Errorf("ledger is locked by another process")
	ErrNoProgress        = fmt.Errorf("no eligible item could be claimed")

	// Transfer errors
	ErrTransferFailed = fmt.Errorf("transfer failed")
	ErrZeroByteFile   = fmt.Errorf("transfer produced a zero-byte file")
	ErrBadStatus      = fmt.Errorf("unexpected HTTP status")

	// Catalog errors
	ErrCatalogFetch       = fmt.Errorf("catalog fetch failed")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)
