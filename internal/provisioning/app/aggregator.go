package app

import (
	"sort"

	"github.com/AradIT/voipprov/internal/provisioning/domain"
)

// ImportSet accumulates the three output buckets of one run. Append-only
// while the run iterates; each subscriber contributes at most one record to
// at most one bucket.
type ImportSet struct {
	active        []*domain.ImportRecord
	alreadyActive []*domain.ImportRecord
	inactive      []*domain.ImportRecord
}

func NewImportSet() *ImportSet {
	return &ImportSet{}
}

// Append adds rec to the given bucket. Unknown buckets are ignored.
func (s *ImportSet) Append(rec *domain.ImportRecord, bucket domain.Bucket) {
	switch bucket {
	case domain.BucketActive:
		s.active = append(s.active, rec)
	case domain.BucketAlreadyActive:
		s.alreadyActive = append(s.alreadyActive, rec)
	case domain.BucketInactive:
		s.inactive = append(s.inactive, rec)
	}
}

// Records returns the bucket's records in append order.
func (s *ImportSet) Records(bucket domain.Bucket) []*domain.ImportRecord {
	switch bucket {
	case domain.BucketActive:
		return s.active
	case domain.BucketAlreadyActive:
		return s.alreadyActive
	case domain.BucketInactive:
		return s.inactive
	}
	return nil
}

// Counts reports the bucket sizes.
func (s *ImportSet) Counts() (active, alreadyActive, inactive int) {
	return len(s.active), len(s.alreadyActive), len(s.inactive)
}

// Rows projects a bucket into import-file rows, sorted by extension. The sort
// is lexicographic on the extension string, matching the ordering the import
// consumers expect.
func (s *ImportSet) Rows(bucket domain.Bucket) [][]string {
	records := s.Records(bucket)
	sorted := make([]*domain.ImportRecord, len(records))
	copy(sorted, records)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Extension < sorted[j].Extension
	})

	rows := make([][]string, 0, len(sorted))
	for _, rec := range sorted {
		rows = append(rows, rec.Row())
	}
	return rows
}
