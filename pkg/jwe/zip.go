package jwe

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
)

// deflate compresses plaintext with raw DEFLATE, as "zip":"DEF" requires.
//
// https://datatracker.ietf.org/doc/html/rfc7516#section-4.1.3
func deflate(plaintext []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.DefaultCompression)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(plaintext); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// inflate decompresses data, failing once the output exceeds limit bytes.
func inflate(data []byte, limit int64) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(data))
	defer r.Close()

	out, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("failed to decompress plaintext: %w", err)
	}
	if int64(len(out)) > limit {
		return nil, fmt.Errorf("decompressed plaintext exceeds %d bytes", limit)
	}
	return out, nil
}
