package sbrc

import "bytes"

// Terminator ends every message on the wire.
const Terminator = '>'

// FrameReader splits the charger's byte stream into messages.
//
// Chunks may break anywhere, including in the middle of a message. The
// unterminated tail is held until a later chunk completes it. There is no
// size cap because the protocol defines none.
//
// A FrameReader is not safe for concurrent use; feed it from the single
// goroutine that reads the connection.
type FrameReader struct {
	buf []byte
}

// Feed appends chunk and returns every message it completes, in order,
// without the terminator. A terminator with nothing before it yields an
// empty message.
func (r *FrameReader) Feed(chunk string) []string {
	// The retained tail never contains a terminator, so scanning can start
	// at the new data.
	scan := len(r.buf)
	r.buf = append(r.buf, chunk...)

	var msgs []string
	start := 0
	for {
		i := bytes.IndexByte(r.buf[scan:], Terminator)
		if i < 0 {
			break
		}
		end := scan + i
		msgs = append(msgs, string(r.buf[start:end]))
		start = end + 1
		scan = start
	}

	if start > 0 {
		n := copy(r.buf, r.buf[start:])
		r.buf = r.buf[:n]
	}
	return msgs
}

// Buffered returns the number of bytes waiting for a terminator.
func (r *FrameReader) Buffered() int {
	return len(r.buf)
}

// Reset drops any partial message. Call it when the connection is replaced.
func (r *FrameReader) Reset() {
	r.buf = r.buf[:0]
}
