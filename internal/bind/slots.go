package bind

import "sort"

// slotEntry is one kernel argument. Exactly one of buf and scalar is set.
type slotEntry struct {
	buf *DeviceBuffer
	// mem is the allocation the kernel argument points at; it lags behind
	// buf.mem after the buffer grows until the next dispatch refreshes it.
	mem *deviceMem
	// size is the range size recorded when the slot was bound.
	size   int
	scalar []byte
}

// slotTable maps argument positions to bindings. It has no upper bound
// on the slot index.
type slotTable struct {
	entries map[int]*slotEntry
}

func newSlotTable() *slotTable {
	return &slotTable{entries: make(map[int]*slotEntry)}
}

func (t *slotTable) lookup(slot int) *slotEntry {
	return t.entries[slot]
}

func (t *slotTable) set(slot int, e *slotEntry) {
	t.entries[slot] = e
}

func (t *slotTable) delete(slot int) {
	delete(t.entries, slot)
}

func (t *slotTable) len() int {
	return len(t.entries)
}

// indices returns the occupied slots in ascending order.
func (t *slotTable) indices() []int {
	out := make([]int, 0, len(t.entries))
	for slot := range t.entries {
		out = append(out, slot)
	}
	sort.Ints(out)
	return out
}

// liveBuffer returns the buffer at slot unless it is absent or disposed.
func (t *slotTable) liveBuffer(slot int) *DeviceBuffer {
	e := t.entries[slot]
	if e == nil || e.buf == nil || e.buf.disposed {
		return nil
	}
	return e.buf
}
