package assignment

import "disputeflow/directory"

// NextEligible picks the first ACTIVE staff member strictly after last in
// the stable (created_at, id) order, wrapping to the front. last may be nil
// (fresh cursor) or a member no longer in the active set; either way the
// next active member by stable order is chosen, so an inactive cursor
// target never consumes a turn.
func NextEligible(active []directory.Staff, last *directory.Staff) (directory.Staff, bool) {
	if len(active) == 0 {
		return directory.Staff{}, false
	}
	if last == nil {
		return active[0], true
	}
	for _, s := range active {
		if after(s, *last) {
			return s, true
		}
	}
	return active[0], true
}

func after(a, b directory.Staff) bool {
	if a.CreatedAt.Equal(b.CreatedAt) {
		return a.ID > b.ID
	}
	return a.CreatedAt.After(b.CreatedAt)
}
