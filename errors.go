package smartbatch

import (
	"errors"

	"github.com/quartzdata/smartbatch/schema"
)

var (
	// ErrIntegrityViolation marks store failures caused by integrity
	// constraints (duplicate keys, most commonly). The insert engine treats
	// these as recoverable; everything else it propagates. Store adapters
	// wrap the underlying driver error so both errors.Is on this sentinel
	// and errors.As on the driver type keep working.
	ErrIntegrityViolation = errors.New("integrity constraint violation")

	// ErrConfiguration marks caller misuse caught before any store I/O.
	// It is the same value as schema.ErrConfig, so descriptor errors and
	// engine errors match under errors.Is.
	ErrConfiguration = schema.ErrConfig

	// ErrNotFound is returned by key lookups that match no row, and by
	// table introspection when the table does not exist.
	ErrNotFound = errors.New("not found")
)
