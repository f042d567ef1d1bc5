// Copyright 2026 The Paseo Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression identifies the codec of a stored pending buffer. The
// value is written as the first byte of each record, so the numbers
// are part of the storage format.
type Compression uint8

const (
	CompressionNone Compression = 0
	CompressionLZ4  Compression = 1
	CompressionZstd Compression = 2
)

func (compression Compression) String() string {
	switch compression {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(compression))
	}
}

// ParseCompression parses a codec name as written in configuration.
func ParseCompression(name string) (Compression, error) {
	switch name {
	case "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZstd, nil
	default:
		return 0, fmt.Errorf("unknown compression %q", name)
	}
}

var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("relay: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("relay: zstd decoder initialization failed: " + err.Error())
	}
}

var errIncompressible = errors.New("data is incompressible")

// sealRecord frames data as tag byte, uvarint uncompressed length,
// payload. Data that does not shrink is stored uncompressed.
func sealRecord(data []byte, compression Compression) ([]byte, error) {
	payload, err := compressPayload(data, compression)
	if errors.Is(err, errIncompressible) {
		payload, compression = data, CompressionNone
	} else if err != nil {
		return nil, err
	}

	record := make([]byte, 1, 1+binary.MaxVarintLen64+len(payload))
	record[0] = byte(compression)
	record = binary.AppendUvarint(record, uint64(len(data)))
	return append(record, payload...), nil
}

// openRecord reverses sealRecord.
func openRecord(record []byte) ([]byte, error) {
	if len(record) < 2 {
		return nil, errors.New("pending record truncated")
	}
	compression := Compression(record[0])
	size, read := binary.Uvarint(record[1:])
	if read <= 0 {
		return nil, errors.New("pending record has a malformed length")
	}
	payload := record[1+read:]

	switch compression {
	case CompressionNone:
		if uint64(len(payload)) != size {
			return nil, fmt.Errorf("pending record: size %d does not match %d", len(payload), size)
		}
		return payload, nil
	case CompressionLZ4:
		destination := make([]byte, size)
		written, err := lz4.UncompressBlock(payload, destination)
		if err != nil {
			return nil, fmt.Errorf("lz4 decompress: %w", err)
		}
		if uint64(written) != size {
			return nil, fmt.Errorf("lz4 decompress: got %d bytes, expected %d", written, size)
		}
		return destination, nil
	case CompressionZstd:
		result, err := zstdDecoder.DecodeAll(payload, make([]byte, 0, size))
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
		if uint64(len(result)) != size {
			return nil, fmt.Errorf("zstd decompress: got %d bytes, expected %d", len(result), size)
		}
		return result, nil
	default:
		return nil, fmt.Errorf("pending record: unsupported compression %s", compression)
	}
}

func compressPayload(data []byte, compression Compression) ([]byte, error) {
	switch compression {
	case CompressionNone:
		return data, nil
	case CompressionLZ4:
		destination := make([]byte, lz4.CompressBlockBound(len(data)))
		written, err := lz4.CompressBlock(data, destination, nil)
		if err != nil {
			return nil, fmt.Errorf("lz4 compress: %w", err)
		}
		if written == 0 || written >= len(data) {
			return nil, errIncompressible
		}
		return destination[:written], nil
	case CompressionZstd:
		compressed := zstdEncoder.EncodeAll(data, nil)
		if len(compressed) >= len(data) {
			return nil, errIncompressible
		}
		return compressed, nil
	default:
		return nil, fmt.Errorf("unsupported compression %s", compression)
	}
}
