package terms

// DefaultHistorySize is the number of audit events a store retains.
const DefaultHistorySize = 200

// history is a fixed-capacity ring buffer of audit events. When full, adding
// an event evicts the oldest one. It is not safe for concurrent use; the
// store's lock guards it.
type history struct {
	buf   []HistoryEvent
	next  int
	count int
}

func newHistory(capacity int) *history {
	if capacity < 1 {
		capacity = 1
	}
	return &history{buf: make([]HistoryEvent, capacity)}
}

func (h *history) add(ev HistoryEvent) {
	h.buf[h.next] = ev
	h.next = (h.next + 1) % len(h.buf)
	if h.count < len(h.buf) {
		h.count++
	}
}

// snapshot returns the retained events, newest first.
func (h *history) snapshot() []HistoryEvent {
	out := make([]HistoryEvent, 0, h.count)
	for i := 1; i <= h.count; i++ {
		idx := (h.next - i + len(h.buf)) % len(h.buf)
		out = append(out, h.buf[idx])
	}
	return out
}
