package index

import "container/heap"

// SegmentMergeInfo is a cursor over the terms of one segment taking part
// in a k-way merge.
type SegmentMergeInfo struct {
	base     int
	termEnum *SegmentTermEnum
	reader   *SegmentReader
	term     Term

	docMap    []int
	postings  *SegmentTermPositions
	docMapSet bool
}

func newSegmentMergeInfo(base int, e *SegmentTermEnum, r *SegmentReader) *SegmentMergeInfo {
	return &SegmentMergeInfo{base: base, termEnum: e, reader: r, term: e.Term()}
}

// DocMap maps document numbers of the segment to their number among its
// live documents, -1 for deleted ones. It is nil without deletions.
func (s *SegmentMergeInfo) DocMap() []int {
	if !s.docMapSet {
		s.docMapSet = true
		if s.reader.HasDeletions() {
			maxDoc := s.reader.MaxDoc()
			s.docMap = make([]int, maxDoc)
			j := 0
			for i := 0; i < maxDoc; i++ {
				if s.reader.IsDeleted(i) {
					s.docMap[i] = -1
				} else {
					s.docMap[i] = j
					j++
				}
			}
		}
	}
	return s.docMap
}

func (s *SegmentMergeInfo) Postings() *SegmentTermPositions {
	if s.postings == nil {
		s.postings = newSegmentTermPositions(s.reader)
	}
	return s.postings
}

func (s *SegmentMergeInfo) next() (bool, error) {
	ok, err := s.termEnum.Next()
	if err != nil {
		return false, err
	}
	s.term = s.termEnum.Term()
	return ok, nil
}

func (s *SegmentMergeInfo) close() error {
	err := s.termEnum.Close()
	if s.postings != nil {
		s.postings.Close()
	}
	return err
}

// segmentMergeQueue orders cursors by current term, then by document base.
type segmentMergeQueue []*SegmentMergeInfo

func (q segmentMergeQueue) Len() int { return len(q) }

func (q segmentMergeQueue) Less(i, j int) bool {
	if c := q[i].term.Compare(q[j].term); c != 0 {
		return c < 0
	}
	return q[i].base < q[j].base
}

func (q segmentMergeQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *segmentMergeQueue) Push(x any) { *q = append(*q, x.(*SegmentMergeInfo)) }

func (q *segmentMergeQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return item
}

func (q *segmentMergeQueue) top() *SegmentMergeInfo {
	if len(*q) == 0 {
		return nil
	}
	return (*q)[0]
}

func (q *segmentMergeQueue) push(s *SegmentMergeInfo) { heap.Push(q, s) }

func (q *segmentMergeQueue) pop() *SegmentMergeInfo { return heap.Pop(q).(*SegmentMergeInfo) }

// popEqual removes every cursor positioned on the smallest term.
func (q *segmentMergeQueue) popEqual(match []*SegmentMergeInfo) []*SegmentMergeInfo {
	match = append(match[:0], q.pop())
	term := match[0].term
	for top := q.top(); top != nil && top.term == term; top = q.top() {
		match = append(match, q.pop())
	}
	return match
}

func (q *segmentMergeQueue) close() error {
	var first error
	for _, s := range *q {
		if err := s.close(); err != nil && first == nil {
			first = err
		}
	}
	*q = nil
	return first
}
