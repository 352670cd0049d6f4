// Package store provides an in-memory ledger.Store implementation
// (for testing/dev).
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/course-ledger/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory holds everything under one mutex, which makes Put and PutPair
// trivially atomic with their audit records.
type Memory struct {
	mu          sync.RWMutex
	enrollments map[ledger.EnrollmentKey]ledger.Enrollment
	links       map[string]ledger.SharingLink
	records     []ledger.Record
}

func NewMemory() *Memory {
	return &Memory{
		enrollments: make(map[ledger.EnrollmentKey]ledger.Enrollment),
		links:       make(map[string]ledger.SharingLink),
	}
}

// Reset drops all state. Dev/demo only.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.enrollments = make(map[ledger.EnrollmentKey]ledger.Enrollment)
	m.links = make(map[string]ledger.SharingLink)
	m.records = nil
	return nil
}

// =============================================================================
// ENROLLMENT STORE
// =============================================================================

func (m *Memory) Get(_ context.Context, studentID ledger.StudentID, courseID ledger.CourseID) (ledger.Enrollment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.enrollments[ledger.EnrollmentKey{StudentID: studentID, CourseID: courseID}]
	if !ok {
		return ledger.Enrollment{}, ledger.ErrNotFound
	}
	return e, nil
}

func (m *Memory) ListByStudent(_ context.Context, studentID ledger.StudentID) ([]ledger.Enrollment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []ledger.Enrollment
	for _, e := range m.enrollments {
		if e.StudentID == studentID {
			result = append(result, e)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CourseID < result[j].CourseID })
	return result, nil
}

func (m *Memory) Put(_ context.Context, e ledger.Enrollment, expectedVersion int64, rec ledger.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkVersionLocked(e.Key(), expectedVersion); err != nil {
		return err
	}
	m.writeLocked(e, expectedVersion)
	m.records = append(m.records, rec)
	return nil
}

func (m *Memory) PutPair(_ context.Context, a ledger.Enrollment, aVersion int64, b ledger.Enrollment, bVersion int64, rec ledger.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Check both in key order before writing anything: either both commit
	// or the map is untouched.
	first, firstVer, second, secondVer := a, aVersion, b, bVersion
	if second.Key().Less(first.Key()) {
		first, firstVer, second, secondVer = b, bVersion, a, aVersion
	}
	if err := m.checkVersionLocked(first.Key(), firstVer); err != nil {
		return err
	}
	if err := m.checkVersionLocked(second.Key(), secondVer); err != nil {
		return err
	}

	m.writeLocked(first, firstVer)
	m.writeLocked(second, secondVer)
	m.records = append(m.records, rec)
	return nil
}

func (m *Memory) checkVersionLocked(key ledger.EnrollmentKey, expectedVersion int64) error {
	current, ok := m.enrollments[key]
	if expectedVersion == 0 {
		if ok {
			return ledger.ErrVersionConflict
		}
		return nil
	}
	if !ok {
		return ledger.ErrNotFound
	}
	if current.Version != expectedVersion {
		return ledger.ErrVersionConflict
	}
	return nil
}

func (m *Memory) writeLocked(e ledger.Enrollment, expectedVersion int64) {
	e.Version = expectedVersion + 1
	m.enrollments[e.Key()] = e
}

// =============================================================================
// SHARING STORE
// =============================================================================

func (m *Memory) CreateLink(_ context.Context, link ledger.SharingLink, rec ledger.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.links[link.ID] = link
	m.records = append(m.records, rec)
	return nil
}

func (m *Memory) GetLink(_ context.Context, linkID string) (ledger.SharingLink, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	link, ok := m.links[linkID]
	if !ok {
		return ledger.SharingLink{}, ledger.ErrNotFound
	}
	return link, nil
}

func (m *Memory) DeleteLink(_ context.Context, linkID string, rec ledger.Record) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.links[linkID]; !ok {
		return false, nil
	}
	delete(m.links, linkID)
	m.records = append(m.records, rec)
	return true, nil
}

func (m *Memory) ListLinks(_ context.Context, studentID ledger.StudentID) ([]ledger.SharingLink, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []ledger.SharingLink
	for _, link := range m.links {
		if link.StudentID == studentID {
			result = append(result, link)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

// =============================================================================
// AUDIT LOG
// =============================================================================

func (m *Memory) AppendRecord(_ context.Context, rec ledger.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.records = append(m.records, rec)
	return nil
}

func (m *Memory) History(_ context.Context, studentID ledger.StudentID, courseID ledger.CourseID) ([]ledger.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	key := ledger.EnrollmentKey{StudentID: studentID, CourseID: courseID}
	var result []ledger.Record
	for _, rec := range m.records {
		if ledger.Touches(rec, key) {
			result = append(result, rec)
		}
	}
	return result, nil
}
