// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package codec collects the small buffer-framing helpers shared by the
// binary mapping codec and the range-map serializer: length-prefixed UTF-8
// reads/writes, and the LZ4/GZIP stream transforms selected by the binary
// mapping file's compression header.
package codec

import (
	"bufio"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/pierrec/lz4/v4"
)

// ReadU16String reads a big-endian u16 length prefix followed by that many
// bytes, returning them as a string. This is the framing used throughout
// the binary mapping file (§6.2) for origName/newName/origDesc fields.
func ReadU16String(r io.Reader) (string, error) {
	var n uint16
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return "", fmt.Errorf("read u16 length prefix: %w", err)
	}
	buf := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(r, buf); err != nil {
			return "", fmt.Errorf("read %d-byte string payload: %w", n, err)
		}
	}
	return string(buf), nil
}

// WriteU16String writes s as a big-endian u16 length prefix followed by its
// bytes. It returns an error if s is longer than a u16 can address.
func WriteU16String(w io.Writer, s string) error {
	if len(s) > 0xFFFF {
		return fmt.Errorf("string of %d bytes exceeds u16 length prefix", len(s))
	}
	if err := binary.Write(w, binary.BigEndian, uint16(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

// Code names a compression transform understood by the binary mapping
// file's header.
type Code string

const (
	// None is the empty compression code: a passthrough.
	None Code = ""
	// LZ4Frame selects the LZ4 frame format.
	LZ4Frame Code = "lz4-frame"
	// GZip selects standard gzip framing.
	GZip Code = "gzip"
	// LZMA2 is reserved and explicitly unsupported by this implementation.
	LZMA2 Code = "lzma2"
)

// NewReader wraps r with the decompressor named by code, or returns r
// unchanged for None. Any other code, LZMA2 included, is rejected with an
// error.
func NewReader(code Code, r io.Reader) (io.Reader, error) {
	switch code {
	case None:
		return r, nil
	case LZ4Frame:
		return lz4.NewReader(r), nil
	case GZip:
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("open gzip stream: %w", err)
		}
		return gz, nil
	default:
		return nil, fmt.Errorf("unsupported compression code %q", code)
	}
}

// NewWriter wraps w with the compressor named by code. The returned
// io.WriteCloser must be closed to flush trailing frame data; for None,
// Close only flushes the buffered writer.
func NewWriter(code Code, w io.Writer) (io.WriteCloser, error) {
	switch code {
	case None:
		return nopCloser{bufio.NewWriter(w)}, nil
	case LZ4Frame:
		return lz4.NewWriter(w), nil
	case GZip:
		return gzip.NewWriter(w), nil
	default:
		return nil, fmt.Errorf("unsupported compression code %q", code)
	}
}

type nopCloser struct {
	*bufio.Writer
}

func (n nopCloser) Close() error { return n.Flush() }
