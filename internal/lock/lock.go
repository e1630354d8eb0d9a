// Package lock serializes match creation per statement line, and discrepancy
// detection per case, across concurrent requests and replicas.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/smallbiznis/soarecon/internal/reconerr"
)

var (
	ErrLockBusy    = reconerr.Conflict("lock_busy")
	errEmptyKey    = errors.New("lock key is empty")
	errNonPositive = errors.New("lock ttl must be positive")
)

// Locker hands out exclusive, expiring locks keyed by string. The returned
// release func is safe to call more than once.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
	Backend() string
}

// LineKey is the lock key for a statement line.
func LineKey(soaItemID int64) string {
	return fmt.Sprintf("soa:line:%d", soaItemID)
}

// CaseKey is the lock key for discrepancy detection on a case.
func CaseKey(caseID int64) string {
	return fmt.Sprintf("soa:case:%d", caseID)
}

const retryInterval = 25 * time.Millisecond

// acquireWithRetry polls try until it succeeds, ctx ends or wait elapses.
func acquireWithRetry(ctx context.Context, wait time.Duration, try func() (bool, error)) error {
	deadline := time.Now().Add(wait)
	for {
		ok, err := try()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if !time.Now().Before(deadline) {
			return ErrLockBusy
		}

		timer := time.NewTimer(retryInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
