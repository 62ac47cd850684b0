package entity

import (
	"github.com/cockroachdb/errors"
)

// Error taxonomy shared by use-cases, adapters and transport.
// Adapters mark concrete causes with one of these via errors.Mark so that
// errors.Is keeps working while the original message is preserved.
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrUpstreamAuth    = errors.New("upstream authentication failed")
	ErrUpstreamFetch   = errors.New("upstream fetch failed")
	ErrPersistence     = errors.New("persistence failure")
	ErrSyncInProgress  = errors.New("sync already in progress")
)

// InvalidArgumentf builds an ErrInvalidArgument with a formatted message.
func InvalidArgumentf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrInvalidArgument)
}

// MarkPersistence tags a store error as ErrPersistence. nil stays nil.
func MarkPersistence(err error, msg string) error {
	if err == nil {
		return nil
	}
	return errors.Mark(errors.Wrap(err, msg), ErrPersistence)
}
