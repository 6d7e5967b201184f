package gc

// idList is an insertion-ordered set of identities with O(1) insert and
// amortised O(1) removal. Removed slots become tombstones (ID 0, which Track
// never admits) and are compacted once they outnumber live entries.
type idList struct {
	order []ID
	index map[ID]int
	dead  int
}

const compactMin = 32

func newIDList() idList {
	return idList{index: make(map[ID]int)}
}

func (l *idList) add(id ID) bool {
	if l.index == nil {
		l.index = make(map[ID]int)
	}
	if _, ok := l.index[id]; ok {
		return false
	}
	l.index[id] = len(l.order)
	l.order = append(l.order, id)
	return true
}

func (l *idList) remove(id ID) bool {
	pos, ok := l.index[id]
	if !ok {
		return false
	}
	delete(l.index, id)
	l.order[pos] = 0
	l.dead++
	if l.dead >= compactMin && l.dead > len(l.index) {
		l.compact()
	}
	return true
}

func (l *idList) contains(id ID) bool {
	_, ok := l.index[id]
	return ok
}

func (l *idList) len() int {
	return len(l.index)
}

// ids returns the live identities in insertion order.
func (l *idList) ids() []ID {
	out := make([]ID, 0, len(l.index))
	for _, id := range l.order {
		if id != 0 {
			out = append(out, id)
		}
	}
	return out
}

func (l *idList) reset() {
	l.order = nil
	l.index = make(map[ID]int)
	l.dead = 0
}

func (l *idList) compact() {
	live := l.order[:0]
	for _, id := range l.order {
		if id == 0 {
			continue
		}
		l.index[id] = len(live)
		live = append(live, id)
	}
	clear(l.order[len(live):])
	l.order = live
	l.dead = 0
}

func validGeneration(gen int) bool {
	return gen >= 0 && gen < NumGenerations
}
