package store

import (
	"fmt"

	rerrors "github.com/Aman-CERP/repoindex/internal/errors"
	"github.com/blevesearch/bleve/v2/index/scorch"
	index "github.com/blevesearch/bleve_index_api"
	segment "github.com/blevesearch/scorch_segment_api/v2"
)

// Snapshot is a point-in-time view of the index segments. Writers keep
// going while it is open; it must be closed to let merged segments go.
type Snapshot struct {
	reader   index.IndexReader
	segments []Segment
}

// Segment is one immutable segment of a snapshot together with its
// tombstones.
type Segment struct {
	seg     segment.Segment
	deleted func(num uint64) bool
	tombs   uint64
}

// Snapshot opens a reader over the current segments.
func (x *Index) Snapshot() (*Snapshot, error) {
	adv, err := x.idx.Advanced()
	if err != nil {
		return nil, rerrors.IndexReadError("failed to access index internals", err)
	}
	r, err := adv.Reader()
	if err != nil {
		return nil, rerrors.IndexReadError("failed to open index reader", err)
	}
	snap, ok := r.(*scorch.IndexSnapshot)
	if !ok {
		_ = r.Close()
		return nil, rerrors.IndexReadError(fmt.Sprintf("unsupported index reader %T", r), nil)
	}

	segs := make([]Segment, 0, len(snap.Segments()))
	for _, ss := range snap.Segments() {
		del := ss.Deleted()
		s := Segment{seg: ss.Segment(), deleted: func(uint64) bool { return false }}
		if del != nil {
			s.deleted = func(num uint64) bool { return del.Contains(uint32(num)) }
			s.tombs = del.GetCardinality()
		}
		segs = append(segs, s)
	}
	return &Snapshot{reader: r, segments: segs}, nil
}

// Segments returns the segments of the snapshot.
func (s *Snapshot) Segments() []Segment { return s.segments }

// Close releases the reader.
func (s *Snapshot) Close() error {
	return s.reader.Close()
}

// LiveCount returns the number of documents in the segment that are not
// tombstoned.
func (s Segment) LiveCount() uint64 {
	n := s.seg.Count()
	if s.tombs > n {
		return 0
	}
	return n - s.tombs
}

// Deleted reports whether the document number is tombstoned.
func (s Segment) Deleted(num uint64) bool { return s.deleted(num) }

// Postings walks the live documents whose field contains term exactly, in
// document-number order, until visit returns false.
func (s Segment) Postings(field, term string, visit func(num uint64) bool) error {
	dict, err := s.seg.Dictionary(field)
	if err != nil {
		return rerrors.IndexReadError(fmt.Sprintf("failed to read dictionary for %s", field), err)
	}
	if dict == nil {
		return nil
	}
	pl, err := dict.PostingsList([]byte(term), nil, nil)
	if err != nil {
		return rerrors.IndexReadError(fmt.Sprintf("failed to read postings for %s:%s", field, term), err)
	}
	if pl == nil {
		return nil
	}

	it := pl.Iterator(false, false, false, nil)
	for {
		p, err := it.Next()
		if err != nil {
			return rerrors.IndexReadError("failed to iterate postings", err)
		}
		if p == nil {
			return nil
		}
		num := p.Number()
		if s.deleted(num) {
			continue
		}
		if !visit(num) {
			return nil
		}
	}
}

// StoredFields returns the stored values of a document, grouped by field.
// The internal _id field is left out.
func (s Segment) StoredFields(num uint64) (map[string][]string, error) {
	fields := make(map[string][]string)
	err := s.seg.VisitStoredFields(num, func(field string, _ byte, value []byte, _ []uint64) bool {
		if field != "_id" {
			fields[field] = append(fields[field], string(value))
		}
		return true
	})
	if err != nil {
		return nil, rerrors.IndexReadError(fmt.Sprintf("failed to load stored fields of document %d", num), err)
	}
	return fields, nil
}

// DocID returns the external id of a document number.
func (s Segment) DocID(num uint64) (string, error) {
	id, err := s.seg.DocID(num)
	if err != nil {
		return "", rerrors.IndexReadError(fmt.Sprintf("failed to read id of document %d", num), err)
	}
	return string(id), nil
}
