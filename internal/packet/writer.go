package packet

// A Writer serializes fields into a growing buffer.
type Writer struct {
	buffer []byte
}

func NewWriterSize(n int) *Writer {
	return &Writer{buffer: make([]byte, 0, n)}
}

func (w *Writer) WriteByte(v byte) {
	w.buffer = append(w.buffer, v)
}

func (w *Writer) WriteUint16(v uint16) {
	w.buffer = networkOrder.AppendUint16(w.buffer, v)
}

func (w *Writer) WriteUint32(v uint32) {
	w.buffer = networkOrder.AppendUint32(w.buffer, v)
}

func (w *Writer) WriteSlice(p []byte) {
	w.buffer = append(w.buffer, p...)
}

func (w *Writer) ZeroPad(n int) {
	for i := 0; i < n; i++ {
		w.WriteByte(0)
	}
}

// Return the number of bytes written so far.
func (w *Writer) Length() int {
	return len(w.buffer)
}

// Return a slice of the bytes written so far.
func (w *Writer) Bytes() []byte {
	return w.buffer
}

func (w *Writer) Reset() {
	w.buffer = w.buffer[:0]
}
