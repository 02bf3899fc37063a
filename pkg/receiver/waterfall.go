package receiver

// Waterfall is a fixed-capacity history of spectrum rows that always
// overwrites the oldest row. Rows must not be modified after Push.
type Waterfall struct {
	rows   [][]float32
	next   int
	filled int
}

// NewWaterfall returns an empty history of the given capacity (at least one).
func NewWaterfall(capacity int) *Waterfall {
	if capacity < 1 {
		capacity = 1
	}
	return &Waterfall{rows: make([][]float32, capacity)}
}

// Push stores row in the next slot.
func (w *Waterfall) Push(row []float32) {
	w.rows[w.next] = row
	w.next = (w.next + 1) % len(w.rows)
	if w.filled < len(w.rows) {
		w.filled++
	}
}

// Len returns how many rows are held.
func (w *Waterfall) Len() int { return w.filled }

// Cap returns the capacity.
func (w *Waterfall) Cap() int { return len(w.rows) }

// Rows returns the held rows oldest first: once full, display starts at
// the slot just after the last overwritten one.
func (w *Waterfall) Rows() [][]float32 {
	out := make([][]float32, 0, w.filled)
	if w.filled < len(w.rows) {
		return append(out, w.rows[:w.filled]...)
	}
	out = append(out, w.rows[w.next:]...)
	return append(out, w.rows[:w.next]...)
}

// Latest returns the newest n rows, newest last.
func (w *Waterfall) Latest(n int) [][]float32 {
	if n <= 0 {
		return nil
	}
	rows := w.Rows()
	if n < len(rows) {
		rows = rows[len(rows)-n:]
	}
	return rows
}
