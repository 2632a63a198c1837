//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"context"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/require"
)

// TestKeyedLocker_Exclusive verifies that a second holder of the same key waits.
func TestKeyedLocker_Exclusive(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		l := NewKeyedLocker()

		unlock, err := l.Lock(t.Context(), "home")
		require.NoError(t, err)

		acquired := make(chan struct{})

		go func() {
			unlockSecond, lockErr := l.Lock(context.Background(), "home")
			if lockErr != nil {
				return
			}

			close(acquired)
			unlockSecond()
		}()

		// The waiter is durably blocked while the first holder keeps the key.
		synctest.Wait()

		select {
		case <-acquired:
			t.Fatal("second holder acquired a locked key")
		default:
		}

		unlock()
		// Releasing twice is a no-op.
		unlock()

		synctest.Wait()

		select {
		case <-acquired:
		default:
			t.Fatal("second holder did not acquire the released key")
		}

		require.Zero(t, l.Len())
	})
}

// TestKeyedLocker_IndependentKeys verifies that different keys never contend.
func TestKeyedLocker_IndependentKeys(t *testing.T) {
	t.Parallel()

	l := NewKeyedLocker()

	unlockA, err := l.Lock(t.Context(), "a")
	require.NoError(t, err)

	unlockB, err := l.Lock(t.Context(), "b")
	require.NoError(t, err)
	require.Equal(t, 2, l.Len())

	unlockA()
	unlockB()
	require.Zero(t, l.Len())
}

// TestKeyedLocker_ContextCancel verifies that waiters honour their deadline.
func TestKeyedLocker_ContextCancel(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		l := NewKeyedLocker()

		unlock, err := l.Lock(t.Context(), "home")
		require.NoError(t, err)

		defer unlock()

		ctx, cancel := context.WithTimeout(t.Context(), time.Second)
		defer cancel()

		_, err = l.Lock(ctx, "home")
		require.ErrorIs(t, err, context.DeadlineExceeded)
		require.Equal(t, 1, l.Len())
	})
}
