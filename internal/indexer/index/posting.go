package index

// Posting records the occurrences of one term in the document being
// inverted.
type Posting struct {
	Term      Term
	Freq      int
	Positions []int
}

// postingTable accumulates the postings of a single document.
type postingTable struct {
	byTerm map[Term]*Posting
}

func newPostingTable() *postingTable {
	return &postingTable{byTerm: make(map[Term]*Posting)}
}

func (t *postingTable) add(term Term, position int) {
	p, exists := t.byTerm[term]
	if !exists {
		p = &Posting{
			Term:      term,
			Positions: make([]int, 0, 4),
		}
		t.byTerm[term] = p
	}
	p.Freq++
	p.Positions = append(p.Positions, position)
}

func (t *postingTable) len() int { return len(t.byTerm) }

// sorted returns the postings in term order.
func (t *postingTable) sorted() []*Posting {
	postings := make([]*Posting, 0, len(t.byTerm))
	for _, p := range t.byTerm {
		postings = append(postings, p)
	}
	sortPostings(postings, 0, len(postings)-1)
	return postings
}

// sortPostings is an in-place quicksort with a median-of-three pivot and
// Hoare partitioning. Map iteration order is random, so the result must not
// depend on the input order; term keys are unique, which makes any correct
// sort deterministic.
func sortPostings(p []*Posting, lo, hi int) {
	for lo < hi {
		mid := lo + (hi-lo)/2
		if p[mid].Term.Less(p[lo].Term) {
			p[lo], p[mid] = p[mid], p[lo]
		}
		if p[hi].Term.Less(p[mid].Term) {
			p[mid], p[hi] = p[hi], p[mid]
			if p[mid].Term.Less(p[lo].Term) {
				p[lo], p[mid] = p[mid], p[lo]
			}
		}
		if hi-lo <= 2 {
			return
		}
		pivot := p[mid].Term
		i, j := lo, hi
		for {
			for p[i].Term.Less(pivot) {
				i++
			}
			for pivot.Less(p[j].Term) {
				j--
			}
			if i >= j {
				break
			}
			p[i], p[j] = p[j], p[i]
			i++
			j--
		}
		// recurse into the smaller half
		if j-lo < hi-j {
			sortPostings(p, lo, j)
			lo = j + 1
		} else {
			sortPostings(p, j+1, hi)
			hi = j
		}
	}
}
