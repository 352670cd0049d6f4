package ledger_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/course-ledger/ledger"
)

// =============================================================================
// CONCURRENCY - Optimistic versioning under racing mutations
// =============================================================================

func TestConcurrentAttendance_NeverOverdraws(t *testing.T) {
	// GIVEN: remaining=10
	// WHEN: two 6-hour deductions race
	// THEN: exactly one wins, the other gets InsufficientHours, final=4

	engine, _ := newTestEngine()
	ctx := context.Background()

	pay(t, engine, "stu-1", "crs-math", "10", "0")

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = engine.Attendance(ctx, ledger.AttendanceParams{
				StudentID: "stu-1", CourseID: "crs-math",
				Hours: dec("6"), Type: ledger.AttendanceNormal,
			})
		}(i)
	}
	wg.Wait()

	succeeded, insufficient := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ledger.ErrInsufficientHours):
			insufficient++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, insufficient)

	e, err := engine.GetEnrollment(ctx, "stu-1", "crs-math")
	require.NoError(t, err)
	assert.True(t, dec("4").Equal(e.RemainingHours))
}

func TestConcurrentOppositeTransfers_BothLandConserved(t *testing.T) {
	// GIVEN: alice and bob each hold 10 hours in crs-math against crs-guitar
	// WHEN: alice->bob and bob->alice transfers run concurrently
	// THEN: both eventually commit and the combined total is conserved

	engine, _ := newTestEngine()
	ctx := context.Background()

	pay(t, engine, "stu-alice", "crs-math", "10", "0")
	pay(t, engine, "stu-bob", "crs-math", "10", "0")

	var wg sync.WaitGroup
	errs := make([]error, 2)

	wg.Add(2)
	go func() {
		defer wg.Done()
		_, _, errs[0] = engine.Transfer(ctx, ledger.TransferParams{
			FromStudentID: "stu-alice", FromCourseID: "crs-math",
			ToStudentID: "stu-bob", ToCourseID: "crs-math",
			Hours: dec("3"),
		})
	}()
	go func() {
		defer wg.Done()
		_, _, errs[1] = engine.Transfer(ctx, ledger.TransferParams{
			FromStudentID: "stu-bob", FromCourseID: "crs-math",
			ToStudentID: "stu-alice", ToCourseID: "crs-math",
			Hours: dec("2"),
		})
	}()
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "transfer %d", i)
	}

	alice, err := engine.GetEnrollment(ctx, "stu-alice", "crs-math")
	require.NoError(t, err)
	bob, err := engine.GetEnrollment(ctx, "stu-bob", "crs-math")
	require.NoError(t, err)

	assert.True(t, dec("9").Equal(alice.RemainingHours))
	assert.True(t, dec("11").Equal(bob.RemainingHours))
	assert.True(t, dec("20").Equal(alice.RemainingHours.Add(bob.RemainingHours)))
}

func TestConcurrentPayments_AllAccumulate(t *testing.T) {
	// Top-ups retry past version conflicts, so every credit lands.

	engine, _ := newTestEngine()
	ctx := context.Background()

	const workers = 3
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = engine.Payment(ctx, ledger.PaymentParams{
				StudentID: "stu-1", CourseID: "crs-math",
				RegularHours: dec("5"), Amount: dec("500"),
			})
		}(i)
	}
	wg.Wait()

	committed := 0
	for _, err := range errs {
		if err == nil {
			committed++
			continue
		}
		// A racing create can exhaust retries; conflict is the only
		// acceptable loss.
		require.True(t, errors.Is(err, ledger.ErrVersionConflict), "unexpected error: %v", err)
	}
	require.GreaterOrEqual(t, committed, 1)

	e, err := engine.GetEnrollment(ctx, "stu-1", "crs-math")
	require.NoError(t, err)
	want := dec("5").Mul(decimal.NewFromInt(int64(committed)))
	assert.True(t, want.Equal(e.RemainingHours))
}
