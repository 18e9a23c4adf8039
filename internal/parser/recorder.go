package parser

import (
	"bufio"
	"io"
)

// recorder feeds encoding/xml byte by byte and keeps the bytes of the token
// being decoded, addressed by decoder offsets. encoding/xml reports CDATA
// sections as plain CharData, so the raw bytes are the only way to tell
// them apart from text.
type recorder struct {
	src  *bufio.Reader
	buf  []byte
	base int64 // decoder offset of buf[0]; -1 until known
	err  error // last error returned by src
}

func newRecorder(r io.Reader, base int64) *recorder {
	return &recorder{src: bufio.NewReader(r), base: base}
}

func (r *recorder) ReadByte() (byte, error) {
	b, err := r.src.ReadByte()
	if err != nil {
		r.err = err
		return 0, err
	}
	r.buf = append(r.buf, b)
	return b, nil
}

// Read serves charset readers layered on top; those bytes are not decoder
// input and are not recorded.
func (r *recorder) Read(p []byte) (int, error) {
	n, err := r.src.Read(p)
	if err != nil {
		r.err = err
	}
	return n, err
}

func (r *recorder) slice(start, end int64) []byte {
	if r.base < 0 {
		return nil
	}
	lo, hi := start-r.base, end-r.base
	if lo < 0 || lo > hi || hi > int64(len(r.buf)) {
		return nil
	}
	return r.buf[lo:hi]
}

// discard drops everything before the decoder offset end. Bytes past end
// were read ahead and belong to the next token.
func (r *recorder) discard(end int64) {
	if r.base < 0 {
		r.base = end
		r.buf = r.buf[:0]
		return
	}
	n := end - r.base
	if n <= 0 {
		return
	}
	if n > int64(len(r.buf)) {
		n = int64(len(r.buf))
	}
	r.buf = append(r.buf[:0], r.buf[n:]...)
	r.base = end
}
