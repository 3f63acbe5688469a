package discovery

import (
	"errors"
	"fmt"

	"github.com/healthfees-org/cloudflare-backstage.io/sources/cloudflare"
)

// ErrRunInProgress is returned by Engine.Run when another run for the same
// account has not finished yet
var ErrRunInProgress = errors.New("a discovery run for this account is already in progress")

// errUnmappable marks a resource without a stable identifier. It is excluded
// from the run without a warning.
var errUnmappable = errors.New("resource has no identifier")

// KindDiscoveryFailure means a core kind could not be listed. The run fails
// and the catalog is left untouched.
type KindDiscoveryFailure struct {
	Kind cloudflare.Kind
	Err  error
}

func (e *KindDiscoveryFailure) Error() string {
	return fmt.Sprintf("discovering %v failed: %v", e.Kind, e.Err)
}

func (e *KindDiscoveryFailure) Unwrap() error {
	return e.Err
}

// ReconciliationFailure means the catalog did not accept the mutation. The
// next scheduled run resubmits the full set.
type ReconciliationFailure struct {
	LocationKey string
	Err         error
}

func (e *ReconciliationFailure) Error() string {
	return fmt.Sprintf("reconciling %v failed: %v", e.LocationKey, e.Err)
}

func (e *ReconciliationFailure) Unwrap() error {
	return e.Err
}

// panicError carries a recovered panic value
type panicError struct {
	value any
}

func (e *panicError) Error() string {
	return fmt.Sprintf("panic: %v", e.value)
}
