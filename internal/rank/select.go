package rank

// DefaultTopK is the number of sections selected when none is given.
const DefaultTopK = 5

// Selection is the outcome of SelectDiverse.
type Selection struct {
	Sections []RankedSection
	// MaxPerDocument is the most sections any one document contributed.
	MaxPerDocument int
}

// Relaxed reports whether the one-per-document cap had to be raised to
// fill the selection.
func (s Selection) Relaxed() bool { return s.MaxPerDocument > 1 }

// SelectDiverse takes up to k sections from ranked (descending score),
// at most limit per document. The limit starts at 1 and grows by one each time a
// full walk leaves fewer than k selected, until k are selected or a walk
// adds nothing. The result keeps ranked order and carries 1-based ranks.
func SelectDiverse(ranked []RankedSection, k int) Selection {
	if k <= 0 {
		k = DefaultTopK
	}
	picked := make([]bool, len(ranked))
	perDoc := make(map[string]int)
	selected := 0
	limit := 1

	for selected < k {
		added := 0
		for i, rs := range ranked {
			if selected == k {
				break
			}
			if picked[i] || perDoc[rs.DocumentID] >= limit {
				continue
			}
			picked[i] = true
			perDoc[rs.DocumentID]++
			selected++
			added++
		}
		if added == 0 || selected == k {
			break
		}
		limit++
	}

	sel := Selection{Sections: make([]RankedSection, 0, selected)}
	for _, n := range perDoc {
		sel.MaxPerDocument = max(sel.MaxPerDocument, n)
	}
	for i, rs := range ranked {
		if !picked[i] {
			continue
		}
		rs.Rank = len(sel.Sections) + 1
		sel.Sections = append(sel.Sections, rs)
	}
	return sel
}
