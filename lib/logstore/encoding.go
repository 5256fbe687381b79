// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package logstore

import (
	"bytes"
	"fmt"

	"github.com/pierrec/lz4/v4"
	"github.com/zeebo/blake3"
	"zombiezen.com/go/sqlite"
)

// payloadEncoding tags how a row's payload column is stored.
type payloadEncoding int

const (
	encodingRaw payloadEncoding = 0
	encodingLZ4 payloadEncoding = 1
)

type encodedRow struct {
	encoding payloadEncoding
	digest   [32]byte
	stored   []byte
}

// encodePayload digests payload and compresses it when it is at least
// threshold bytes and LZ4 makes it smaller. A negative threshold
// disables compression.
func encodePayload(payload []byte, threshold int) encodedRow {
	row := encodedRow{
		encoding: encodingRaw,
		digest:   blake3.Sum256(payload),
		stored:   payload,
	}
	if threshold < 0 || len(payload) < threshold {
		return row
	}
	destination := make([]byte, lz4.CompressBlockBound(len(payload)))
	written, err := lz4.CompressBlock(payload, destination, nil)
	// CompressBlock returns 0 for incompressible input.
	if err != nil || written == 0 || written >= len(payload) {
		return row
	}
	row.encoding = encodingLZ4
	row.stored = destination[:written]
	return row
}

// decodeRow reads columns (id, log_type, encoding, raw_size, digest,
// payload) and returns the verified raw payload.
func decodeRow(id int64, stmt *sqlite.Stmt) ([]byte, error) {
	encoding := payloadEncoding(stmt.ColumnInt(2))
	rawSize := stmt.ColumnInt(3)

	digest := make([]byte, stmt.ColumnLen(4))
	stmt.ColumnBytes(4, digest)
	stored := make([]byte, stmt.ColumnLen(5))
	stmt.ColumnBytes(5, stored)

	var payload []byte
	switch encoding {
	case encodingRaw:
		payload = stored
	case encodingLZ4:
		if rawSize <= 0 {
			return nil, &CorruptEntryError{ID: id, Reason: fmt.Sprintf("invalid raw size %d", rawSize)}
		}
		payload = make([]byte, rawSize)
		read, err := lz4.UncompressBlock(stored, payload)
		if err != nil {
			return nil, &CorruptEntryError{ID: id, Reason: "lz4: " + err.Error()}
		}
		if read != rawSize {
			return nil, &CorruptEntryError{ID: id, Reason: fmt.Sprintf("decompressed %d bytes, expected %d", read, rawSize)}
		}
	default:
		return nil, &CorruptEntryError{ID: id, Reason: fmt.Sprintf("unknown encoding %d", encoding)}
	}

	sum := blake3.Sum256(payload)
	if !bytes.Equal(sum[:], digest) {
		return nil, &CorruptEntryError{ID: id, Reason: "digest mismatch"}
	}
	return payload, nil
}
