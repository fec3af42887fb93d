package kvstore

import (
	"encoding/binary"
	"errors"
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression selects how large values are compressed before being written.
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionZstd Compression = "zstd"
	CompressionLZ4  Compression = "lz4"
)

// codecTag is the first byte of every stored value.
type codecTag uint8

const (
	tagCBOR     codecTag = 1
	tagCBORZstd codecTag = 2
	tagCBORLZ4  codecTag = 3
)

// maxValueSize bounds the uncompressed size of a stored value.
const maxValueSize = 64 << 20

var errIncompressible = errors.New("value does not compress")

var (
	encMode cbor.EncMode
	decMode cbor.DecMode

	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("kvstore: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("kvstore: CBOR decoder initialization failed: " + err.Error())
	}
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("kvstore: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("kvstore: zstd decoder initialization failed: " + err.Error())
	}
}

// encodeValue serialises v as CBOR and compresses it when the encoding is
// at least threshold bytes long and compression actually saves space.
// Compressed values carry the uncompressed length as a uvarint after the
// tag byte.
func encodeValue(v any, compression Compression, threshold int) ([]byte, error) {
	raw, err := encMode.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("cbor encode: %w", err)
	}
	if len(raw) > maxValueSize {
		return nil, fmt.Errorf("value of %d bytes exceeds the %d byte limit", len(raw), maxValueSize)
	}
	if compression != CompressionNone && threshold > 0 && len(raw) >= threshold {
		var tag codecTag
		var compressed []byte
		switch compression {
		case CompressionZstd:
			tag = tagCBORZstd
			compressed, err = compressZstd(raw)
		case CompressionLZ4:
			tag = tagCBORLZ4
			compressed, err = compressLZ4(raw)
		default:
			return nil, fmt.Errorf("unsupported compression %q", compression)
		}
		if err == nil {
			out := make([]byte, 1, 1+binary.MaxVarintLen64+len(compressed))
			out[0] = byte(tag)
			out = binary.AppendUvarint(out, uint64(len(raw)))
			return append(out, compressed...), nil
		}
		if !errors.Is(err, errIncompressible) {
			return nil, err
		}
	}
	out := make([]byte, 0, 1+len(raw))
	out = append(out, byte(tagCBOR))
	return append(out, raw...), nil
}

func decodeValue(data []byte, v any) error {
	if len(data) == 0 {
		return errors.New("empty stored value")
	}
	tag, body := codecTag(data[0]), data[1:]
	switch tag {
	case tagCBOR:
	case tagCBORZstd, tagCBORLZ4:
		size, n := binary.Uvarint(body)
		if n <= 0 {
			return errors.New("corrupt compressed value header")
		}
		if size == 0 || size > maxValueSize {
			return fmt.Errorf("corrupt compressed value header: size %d", size)
		}
		var err error
		if tag == tagCBORZstd {
			body, err = decompressZstd(body[n:], int(size))
		} else {
			body, err = decompressLZ4(body[n:], int(size))
		}
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown codec tag %d", tag)
	}
	if err := decMode.Unmarshal(body, v); err != nil {
		return fmt.Errorf("cbor decode: %w", err)
	}
	return nil
}

func compressZstd(data []byte) ([]byte, error) {
	compressed := zstdEncoder.EncodeAll(data, nil)
	if len(compressed) >= len(data) {
		return nil, errIncompressible
	}
	return compressed, nil
}

func decompressZstd(compressed []byte, uncompressedSize int) ([]byte, error) {
	result, err := zstdDecoder.DecodeAll(compressed, make([]byte, 0, uncompressedSize))
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	if len(result) != uncompressedSize {
		return nil, fmt.Errorf("zstd decompress: got %d bytes, expected %d", len(result), uncompressedSize)
	}
	return result, nil
}

func compressLZ4(data []byte) ([]byte, error) {
	destination := make([]byte, lz4.CompressBlockBound(len(data)))
	written, err := lz4.CompressBlock(data, destination, nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	if written == 0 || written >= len(data) {
		return nil, errIncompressible
	}
	return destination[:written], nil
}

func decompressLZ4(compressed []byte, uncompressedSize int) ([]byte, error) {
	destination := make([]byte, uncompressedSize)
	read, err := lz4.UncompressBlock(compressed, destination)
	if err != nil {
		return nil, fmt.Errorf("lz4 decompress: %w", err)
	}
	if read != uncompressedSize {
		return nil, fmt.Errorf("lz4 decompress: got %d bytes, expected %d", read, uncompressedSize)
	}
	return destination, nil
}
