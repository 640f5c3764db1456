package region

import (
	"errors"
	"syscall"
)

// Local/recoverable error kinds. Corruption conditions are
// richer and carry context; see CorruptionCode (region.go) and errCorrupt
// (layer.go), which
// pkg/cachemap wraps with github.com/pkg/errors for call-chain context.
var (
	ErrStoreFull        = errors.New("region: store full")
	ErrStoreExists      = errors.New("region: store exists")
	ErrStoreInvalidated = errors.New("region: store invalidated")
	ErrStoreError       = errors.New("region: store error")
)

// sigZero is signal 0: POSIX guarantees it performs only error checking,
// used by processAlive to probe whether a recorded PID still exists.
const sigZero = syscall.Signal(0)
