package exchange

// undoLog accumulates reversal closures as a block is applied, so that an
// invariant violation partway through a block can be unwound back to the
// state the block started in (§9 "Error atomicity"). Each recorded closure
// captures whatever it needs to restore a single prior value; entries are
// replayed in reverse order on rollback.
type undoLog struct {
	entries []func()
}

func (u *undoLog) record(undo func()) {
	u.entries = append(u.entries, undo)
}

func (u *undoLog) rollback() {
	for i := len(u.entries) - 1; i >= 0; i-- {
		u.entries[i]()
	}
	u.entries = nil
}

func (u *undoLog) commit() {
	u.entries = nil
}
