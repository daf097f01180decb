// Package snapshotstore implements the pluggable bootstrap-load and
// write-intent hooks the core engine only knows through interfaces:
// encoding a keyspace dump into a compact, compressed blob, and persisting
// it locally (bbolt) or remotely (S3).
package snapshotstore

import (
	"bytes"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"

	"github.com/nishisan-dev/redlet/internal/store"
)

// CompressionMode selects the codec used for a snapshot blob.
type CompressionMode byte

const (
	CompressionGzip CompressionMode = iota
	CompressionZstd
)

// Encode CBOR-marshals snaps and compresses the result, prefixing a single
// mode byte so Decode is self-describing and needs no side-channel
// negotiation.
func Encode(mode CompressionMode, snaps []store.Snapshot) ([]byte, error) {
	payload, err := cbor.Marshal(snaps)
	if err != nil {
		return nil, fmt.Errorf("cbor-encoding snapshot: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteByte(byte(mode))

	switch mode {
	case CompressionZstd:
		w, err := zstd.NewWriter(&buf)
		if err != nil {
			return nil, fmt.Errorf("creating zstd writer: %w", err)
		}
		if _, err := w.Write(payload); err != nil {
			w.Close()
			return nil, fmt.Errorf("zstd-compressing snapshot: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("closing zstd writer: %w", err)
		}
	default:
		w := pgzip.NewWriter(&buf)
		if _, err := w.Write(payload); err != nil {
			w.Close()
			return nil, fmt.Errorf("gzip-compressing snapshot: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("closing gzip writer: %w", err)
		}
	}
	return buf.Bytes(), nil
}

// Decode reverses Encode, reading the mode byte to pick the decompressor.
func Decode(blob []byte) ([]store.Snapshot, error) {
	if len(blob) == 0 {
		return nil, nil
	}
	mode := CompressionMode(blob[0])
	body := bytes.NewReader(blob[1:])

	var r io.ReadCloser
	switch mode {
	case CompressionZstd:
		zr, err := zstd.NewReader(body)
		if err != nil {
			return nil, fmt.Errorf("creating zstd reader: %w", err)
		}
		defer zr.Close()
		r = io.NopCloser(zr)
	default:
		gr, err := pgzip.NewReader(body)
		if err != nil {
			return nil, fmt.Errorf("creating gzip reader: %w", err)
		}
		defer gr.Close()
		r = gr
	}

	payload, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("decompressing snapshot: %w", err)
	}

	var snaps []store.Snapshot
	if err := cbor.Unmarshal(payload, &snaps); err != nil {
		return nil, fmt.Errorf("cbor-decoding snapshot: %w", err)
	}
	return snaps, nil
}
