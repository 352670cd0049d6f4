package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/course-ledger/ledger"
	"github.com/warp/course-ledger/ledger/store"
)

func seedEnrollment(studentID ledger.StudentID, courseID ledger.CourseID, remaining string) ledger.Enrollment {
	return ledger.Enrollment{
		StudentID:      studentID,
		CourseID:       courseID,
		RemainingHours: ledger.MustParseDecimal(remaining),
		TotalHours:     ledger.MustParseDecimal(remaining),
		Status:         ledger.StatusStudying,
	}
}

func seedRecord(studentID ledger.StudentID, courseID ledger.CourseID) ledger.PaymentRecord {
	return ledger.PaymentRecord{
		RecordHeader: ledger.RecordHeader{
			ID:        "rec-" + string(studentID) + "-" + string(courseID),
			At:        time.Now().UTC(),
			StudentID: studentID,
			CourseID:  courseID,
		},
		RegularHours: ledger.MustParseDecimal("10"),
		Amount:       ledger.MustParseDecimal("1000"),
	}
}

// =============================================================================
// VERSION GUARDS
// =============================================================================

func TestMemory_CreateRequiresZeroVersion(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()

	e := seedEnrollment("stu-1", "crs-math", "10")
	require.NoError(t, mem.Put(ctx, e, 0, seedRecord("stu-1", "crs-math")))

	// Second create collides.
	err := mem.Put(ctx, e, 0, seedRecord("stu-1", "crs-math"))
	assert.True(t, errors.Is(err, ledger.ErrVersionConflict))
}

func TestMemory_UpdateGuardsVersion(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()

	e := seedEnrollment("stu-1", "crs-math", "10")
	require.NoError(t, mem.Put(ctx, e, 0, seedRecord("stu-1", "crs-math")))

	stored, err := mem.Get(ctx, "stu-1", "crs-math")
	require.NoError(t, err)
	require.EqualValues(t, 1, stored.Version)

	stored.RemainingHours = ledger.MustParseDecimal("8")
	require.NoError(t, mem.Put(ctx, stored, 1, seedRecord("stu-1", "crs-math")))

	// Stale writer loses.
	err = mem.Put(ctx, stored, 1, seedRecord("stu-1", "crs-math"))
	assert.True(t, errors.Is(err, ledger.ErrVersionConflict))

	// Unknown enrollment with a nonzero expectation is NotFound.
	ghost := seedEnrollment("stu-ghost", "crs-math", "1")
	err = mem.Put(ctx, ghost, 4, seedRecord("stu-ghost", "crs-math"))
	assert.True(t, errors.Is(err, ledger.ErrNotFound))
}

// =============================================================================
// PUTPAIR ATOMICITY
// =============================================================================

func TestMemory_PutPairAllOrNothing(t *testing.T) {
	// GIVEN: only the first enrollment exists
	// WHEN: PutPair is asked to update both
	// THEN: nothing is written and no record is appended

	mem := store.NewMemory()
	ctx := context.Background()

	a := seedEnrollment("stu-alice", "crs-math", "10")
	require.NoError(t, mem.Put(ctx, a, 0, seedRecord("stu-alice", "crs-math")))
	a, err := mem.Get(ctx, "stu-alice", "crs-math")
	require.NoError(t, err)

	a.RemainingHours = ledger.MustParseDecimal("5")
	b := seedEnrollment("stu-bob", "crs-math", "5")

	// b claims version 3 but does not exist.
	err = mem.PutPair(ctx, a, a.Version, b, 3, seedRecord("stu-alice", "crs-math"))
	assert.True(t, errors.Is(err, ledger.ErrNotFound))

	// a is untouched.
	got, err := mem.Get(ctx, "stu-alice", "crs-math")
	require.NoError(t, err)
	assert.True(t, ledger.MustParseDecimal("10").Equal(got.RemainingHours))
	assert.EqualValues(t, 1, got.Version)

	records, err := mem.History(ctx, "stu-alice", "crs-math")
	require.NoError(t, err)
	assert.Len(t, records, 1, "the failed pair must not log")
}

func TestMemory_PutPairCommitsBothWithOneRecord(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()

	require.NoError(t, mem.Put(ctx, seedEnrollment("stu-alice", "crs-math", "10"), 0, seedRecord("stu-alice", "crs-math")))
	require.NoError(t, mem.Put(ctx, seedEnrollment("stu-bob", "crs-math", "0"), 0, seedRecord("stu-bob", "crs-math")))

	a, _ := mem.Get(ctx, "stu-alice", "crs-math")
	b, _ := mem.Get(ctx, "stu-bob", "crs-math")
	a.RemainingHours = ledger.MustParseDecimal("7")
	b.RemainingHours = ledger.MustParseDecimal("3")

	rec := ledger.TransferRecord{
		RecordHeader: ledger.RecordHeader{
			ID: "rec-xfer", At: time.Now().UTC(),
			StudentID: "stu-alice", CourseID: "crs-math",
		},
		ToStudentID: "stu-bob",
		ToCourseID:  "crs-math",
		Hours:       ledger.MustParseDecimal("3"),
	}
	require.NoError(t, mem.PutPair(ctx, a, a.Version, b, b.Version, rec))

	a, err := mem.Get(ctx, "stu-alice", "crs-math")
	require.NoError(t, err)
	b, err = mem.Get(ctx, "stu-bob", "crs-math")
	require.NoError(t, err)
	assert.True(t, ledger.MustParseDecimal("7").Equal(a.RemainingHours))
	assert.True(t, ledger.MustParseDecimal("3").Equal(b.RemainingHours))
	assert.EqualValues(t, 2, a.Version)
	assert.EqualValues(t, 2, b.Version)

	// The single transfer record is visible from both sides.
	for _, studentID := range []ledger.StudentID{"stu-alice", "stu-bob"} {
		records, err := mem.History(ctx, studentID, "crs-math")
		require.NoError(t, err)
		found := false
		for _, rec := range records {
			if rec.Kind() == ledger.RecordTransfer {
				found = true
			}
		}
		assert.True(t, found, "transfer record missing for %s", studentID)
	}
}

// =============================================================================
// SHARING + LISTING
// =============================================================================

func TestMemory_SharingLinkLifecycle(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()

	link := ledger.SharingLink{
		ID:             "link-1",
		StudentID:      "stu-1",
		SourceCourseID: "crs-math",
		TargetCourseID: "crs-physics",
		CreatedAt:      time.Now().UTC(),
	}
	shareRec := ledger.SharingRecord{
		RecordHeader: ledger.RecordHeader{ID: "rec-share", StudentID: "stu-1", CourseID: "crs-math"},
		LinkID:       link.ID,
	}
	require.NoError(t, mem.CreateLink(ctx, link, shareRec))

	got, err := mem.GetLink(ctx, "link-1")
	require.NoError(t, err)
	assert.Equal(t, link.TargetCourseID, got.TargetCourseID)

	links, err := mem.ListLinks(ctx, "stu-1")
	require.NoError(t, err)
	assert.Len(t, links, 1)

	unshareRec := shareRec
	unshareRec.Removed = true
	deleted, err := mem.DeleteLink(ctx, "link-1", unshareRec)
	require.NoError(t, err)
	assert.True(t, deleted)

	// Absent link: no error, no record.
	deleted, err = mem.DeleteLink(ctx, "link-1", unshareRec)
	require.NoError(t, err)
	assert.False(t, deleted)

	_, err = mem.GetLink(ctx, "link-1")
	assert.True(t, errors.Is(err, ledger.ErrNotFound))
}

func TestMemory_ListByStudentSortsByCourse(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()

	require.NoError(t, mem.Put(ctx, seedEnrollment("stu-1", "crs-zoology", "1"), 0, seedRecord("stu-1", "crs-zoology")))
	require.NoError(t, mem.Put(ctx, seedEnrollment("stu-1", "crs-algebra", "1"), 0, seedRecord("stu-1", "crs-algebra")))
	require.NoError(t, mem.Put(ctx, seedEnrollment("stu-2", "crs-algebra", "1"), 0, seedRecord("stu-2", "crs-algebra")))

	list, err := mem.ListByStudent(ctx, "stu-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, ledger.CourseID("crs-algebra"), list[0].CourseID)
	assert.Equal(t, ledger.CourseID("crs-zoology"), list[1].CourseID)
}
