// Package backingstore implements the sparse page-content store backing a
// device: pages are allocated lazily on first write, reads of
// never-written pages return zero-filled content, and the whole store can be
// discarded in one shot (BLKFLSBUF semantics live one layer up, in
// blockdevice).
package backingstore

import (
	"sync"
)

// Store is a sparse, page-granular byte store. The zero value is not
// usable; construct with New.
type Store struct {
	mu       sync.RWMutex
	pages    map[uint64][]byte
	pageSize int
}

// New builds an empty Store holding pages of pageSize bytes each.
func New(pageSize int) *Store {
	return &Store{
		pages:    make(map[uint64][]byte),
		pageSize: pageSize,
	}
}

// PageSize returns the fixed page size this store was built with.
func (s *Store) PageSize() int { return s.pageSize }

// Read copies the content of logical page lpn into dst, which must be
// exactly PageSize() bytes. A page that was never written reads as zero,
// matching "unmapped pages are implicitly zero" rule.
func (s *Store) Read(lpn uint64, dst []byte) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	page, ok := s.pages[lpn]
	if !ok {
		clear(dst)
		return
	}
	copy(dst, page)
}

// Write stores src as the content of logical page lpn, allocating the page
// on first write. src must be exactly PageSize() bytes.
func (s *Store) Write(lpn uint64, src []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	page, ok := s.pages[lpn]
	if !ok {
		page = make([]byte, s.pageSize)
		s.pages[lpn] = page
	}
	copy(page, src)
}

// Mapped reports whether lpn has ever been written.
func (s *Store) Mapped(lpn uint64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.pages[lpn]
	return ok
}

// MappedCount returns the number of pages currently allocated, for test
// assertions and capacity reporting.
func (s *Store) MappedCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pages)
}

// DiscardAll releases every allocated page, as if the device were freshly
// created.
func (s *Store) DiscardAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages = make(map[uint64][]byte)
}
