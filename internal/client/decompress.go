package client

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

const (
	encodingGzip     = "gzip"
	encodingZstd     = "zstd"
	encodingLZ4      = "lz4"
	encodingIdentity = "identity"
)

var magics = []struct {
	encoding string
	magic    []byte
}{
	{encodingGzip, []byte{0x1f, 0x8b}},
	{encodingZstd, []byte{0x28, 0xb5, 0x2f, 0xfd}},
	{encodingLZ4, []byte{0x04, 0x22, 0x4d, 0x18}},
}

// encodingForName maps a file extension to an encoding, or "" to sniff.
func encodingForName(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".gz", ".gzip":
		return encodingGzip
	case ".zst", ".zstd":
		return encodingZstd
	case ".lz4":
		return encodingLZ4
	}
	return ""
}

// encodingForHeader maps a Content-Encoding value to an encoding, or "" to
// sniff.
func encodingForHeader(value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "gzip", "x-gzip":
		return encodingGzip
	case "zstd":
		return encodingZstd
	case "identity":
		return encodingIdentity
	}
	return ""
}

// decompress wraps r according to encoding, sniffing the magic bytes when
// encoding is empty. The returned closer is nil when nothing needs closing.
func decompress(r io.Reader, encoding string) (io.Reader, io.Closer, error) {
	if encoding == "" {
		br := bufio.NewReader(r)
		head, _ := br.Peek(4)
		encoding = encodingIdentity
		for _, m := range magics {
			if bytes.HasPrefix(head, m.magic) {
				encoding = m.encoding
				break
			}
		}
		r = br
	}

	switch encoding {
	case encodingGzip:
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read gzip header: %w", err)
		}
		return zr, zr, nil
	case encodingZstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create zstd reader: %w", err)
		}
		rc := zr.IOReadCloser()
		return rc, rc, nil
	case encodingLZ4:
		return lz4.NewReader(r), nil, nil
	}
	return r, nil, nil
}
