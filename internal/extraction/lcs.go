package extraction

import "math/bits"

// pattern holds the match masks of one needle for bit-parallel LCS. Bit k of
// fwd[r] is set when runes[k] == r; rev indexes the needle back to front.
type pattern struct {
	runes  []rune
	words  int
	fwd    map[rune][]uint64
	rev    map[rune][]uint64
	counts map[rune]int
}

func newPattern(s []rune) *pattern {
	p := &pattern{
		runes:  s,
		words:  (len(s) + 63) / 64,
		fwd:    make(map[rune][]uint64),
		rev:    make(map[rune][]uint64),
		counts: make(map[rune]int),
	}
	m := len(s)
	for k, r := range s {
		p.counts[r]++
		setBit(p.fwd, p.words, r, k)
		setBit(p.rev, p.words, r, m-1-k)
	}
	return p
}

func setBit(masks map[rune][]uint64, words int, r rune, k int) {
	mask, ok := masks[r]
	if !ok {
		mask = make([]uint64, words)
		masks[r] = mask
	}
	mask[k/64] |= 1 << (k % 64)
}

// lcsRow is the Hyyrö bit vector of a needle scanned against a growing
// haystack prefix. Zero bits mark needle positions in the current LCS.
type lcsRow struct {
	s    []uint64
	last uint64
}

func newLCSRow(m int) *lcsRow {
	r := &lcsRow{s: make([]uint64, (m+63)/64), last: ^uint64(0)}
	if m%64 != 0 {
		r.last = 1<<(m%64) - 1
	}
	return r
}

func (r *lcsRow) reset() {
	for i := range r.s {
		r.s[i] = ^uint64(0)
	}
}

// step feeds one haystack rune given its needle mask. A nil mask leaves the
// row unchanged.
func (r *lcsRow) step(mask []uint64) {
	var carry uint64
	for w, pm := range mask {
		u := r.s[w] & pm
		x, c := bits.Add64(r.s[w], u, carry)
		r.s[w] = x | (r.s[w] - u)
		carry = c
	}
}

func (r *lcsRow) length() int {
	n := 0
	last := len(r.s) - 1
	for w, v := range r.s {
		if w == last {
			v |= ^r.last
		}
		n += bits.OnesCount64(^v)
	}
	return n
}

// bestAlignment slides the needle across haystack, including the partial
// overlaps at both ends, and returns the highest indel ratio seen. The
// haystack is never shorter than the needle.
func bestAlignment(p *pattern, haystack []rune) int {
	m, n := len(p.runes), len(haystack)
	masks := make([][]uint64, n)
	for j, r := range haystack {
		masks[j] = p.fwd[r]
	}
	row := newLCSRow(m)
	best := 0

	// windows anchored at the start share one scan
	row.reset()
	for i := 1; i < m && i <= n; i++ {
		row.step(masks[i-1])
		best = max(best, indelRatio(row.length(), m, i))
	}

	// A full window with an edge rune outside the needle scores no better
	// than its neighbour one step inward.
	for i := 0; i+m <= n; i++ {
		if masks[i] == nil || masks[i+m-1] == nil {
			continue
		}
		row.reset()
		for _, mask := range masks[i : i+m] {
			row.step(mask)
		}
		best = max(best, indelRatio(row.length(), m, m))
		if best == 100 {
			return best
		}
	}

	// windows anchored at the end, scanned backwards against the reversed needle
	row.reset()
	for k := 1; k < m && k < n; k++ {
		row.step(p.rev[haystack[n-k]])
		best = max(best, indelRatio(row.length(), m, k))
	}
	return best
}

// indelRatio is floor(200*lcs/(m+w)). Integer arithmetic keeps the threshold
// comparison exact.
func indelRatio(lcs, m, w int) int {
	if m+w == 0 {
		return 100
	}
	return 200 * lcs / (m + w)
}

// ratioBound caps the partial ratio of a needle of length m whose rune
// multiset shares overlap runes with the haystack. No window can hold more
// than overlap matches and the ratio grows with the window up to that size.
func ratioBound(overlap, m int) int {
	if overlap == 0 {
		return 0
	}
	return 200 * overlap / (m + overlap)
}
