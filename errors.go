package entcache

import (
	"errors"
	"fmt"
)

var (
	ErrProviderRequired  = errors.New("entcache: provider is required")
	ErrCodecRequired     = errors.New("entcache: codec is required")
	ErrNamespaceRequired = errors.New("entcache: namespace is required")
	ErrClosed            = errors.New("entcache: store closed")
)

// EvictError reports a failed eviction. A failed bump alone still leaves the
// entry deleted; a failed delete alone still leaves it unreadable.
type EvictError struct {
	Ref     Ref
	BumpErr error
	DelErr  error
}

func (e *EvictError) Error() string {
	switch {
	case e.BumpErr != nil && e.DelErr != nil:
		return fmt.Sprintf("evict %s: gen bump and delete failed: bump=%v; delete=%v",
			e.Ref, e.BumpErr, e.DelErr)
	case e.BumpErr != nil:
		return fmt.Sprintf("evict %s: gen bump failed: %v", e.Ref, e.BumpErr)
	case e.DelErr != nil:
		return fmt.Sprintf("evict %s: delete failed: %v", e.Ref, e.DelErr)
	default:
		return fmt.Sprintf("evict %s: unknown error", e.Ref)
	}
}

func (e *EvictError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.BumpErr != nil {
		errs = append(errs, e.BumpErr)
	}
	if e.DelErr != nil {
		errs = append(errs, e.DelErr)
	}
	return errs
}

// Outage reports whether both halves of the eviction failed.
func (e *EvictError) Outage() bool { return e.BumpErr != nil && e.DelErr != nil }
