package claude

import "bytes"

// LineFramer splits a byte stream into newline-terminated lines, holding
// back a trailing partial line until the rest of it arrives.
// A LineFramer belongs to a single reader and is not safe for concurrent use.
type LineFramer struct {
	buf []byte
}

// Feed appends chunk and returns every line it completed, without the "\n"
// separators. Other bytes, including a "\r" before the separator, are kept.
func (f *LineFramer) Feed(chunk []byte) []string {
	f.buf = append(f.buf, chunk...)

	var lines []string
	for {
		i := bytes.IndexByte(f.buf, '\n')
		if i < 0 {
			break
		}
		lines = append(lines, string(f.buf[:i]))
		f.buf = f.buf[i+1:]
	}

	// Release the backing array once it has been fully consumed.
	if len(f.buf) == 0 {
		f.buf = nil
	}
	return lines
}

// Pending returns the buffered partial line.
func (f *LineFramer) Pending() string {
	return string(f.buf)
}
