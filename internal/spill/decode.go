package spill

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"sync"

	"github.com/klauspost/compress/zstd"

	apperrors "github.com/RustyYato/search-posts/pkg/errors"
)

// OwnedSink receives decoded entries. Each phrase is freshly allocated and
// may be retained by the sink.
type OwnedSink interface {
	AddOwned(p []string, delta uint32)
}

var (
	decoderOnce sync.Once
	decoder     *zstd.Decoder
	decoderErr  error
)

func zstdDecoder() (*zstd.Decoder, error) {
	decoderOnce.Do(func() {
		decoder, decoderErr = zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
	})
	return decoder, decoderErr
}

// DecodeHeader validates and returns the header of a spill file image.
func DecodeHeader(data []byte) (Header, error) {
	if len(data) < HeaderSize+FooterSize {
		return Header{}, corrupt("file is %d bytes, shorter than header and footer", len(data))
	}
	h := decodeHeader(data[:HeaderSize])
	if h.Magic != MagicBytes {
		return Header{}, corrupt("invalid magic bytes: %x", h.Magic)
	}
	if h.Version != FormatVersion {
		return Header{}, corrupt("unsupported version: %d", h.Version)
	}
	if binary.LittleEndian.Uint32(data[len(data)-4:]) != MagicBytes {
		return Header{}, corrupt("invalid footer magic")
	}
	return h, nil
}

// Decode parses a complete spill file image and feeds every entry into sink.
// It returns the number of entries decoded. Any structural problem is
// reported as ErrCorruptSpill.
func Decode(data []byte, width int, sink OwnedSink) (int, error) {
	h, err := DecodeHeader(data)
	if err != nil {
		return 0, err
	}
	if int(h.Width) != width {
		return 0, corrupt("width %d does not match expected %d", h.Width, width)
	}

	body := data[HeaderSize : len(data)-FooterSize]
	switch h.Compression {
	case CompressionNone:
	case CompressionZstd:
		dec, err := zstdDecoder()
		if err != nil {
			return 0, fmt.Errorf("creating zstd decoder: %w", err)
		}
		body, err = dec.DecodeAll(body, make([]byte, 0, min(h.BodyLen, uint64(len(body))*16)))
		if err != nil {
			return 0, corrupt("decompressing body: %v", err)
		}
	default:
		return 0, corrupt("unknown compression %d", uint32(h.Compression))
	}

	if uint64(len(body)) != h.BodyLen {
		return 0, corrupt("body is %d bytes, header says %d", len(body), h.BodyLen)
	}
	want := binary.LittleEndian.Uint32(data[len(data)-FooterSize:])
	if got := crc32.ChecksumIEEE(body); got != want {
		return 0, corrupt("checksum mismatch: got %08x, want %08x", got, want)
	}

	n, err := decodeEntries(body, width, sink)
	if err != nil {
		return n, err
	}
	if uint64(n) != h.Entries {
		return n, corrupt("decoded %d entries, header says %d", n, h.Entries)
	}
	return n, nil
}

func decodeEntries(body []byte, width int, sink OwnedSink) (int, error) {
	lens := make([]uint64, width)
	n := 0
	for len(body) > 0 {
		count, k := binary.Uvarint(body)
		if k <= 0 || count > 1<<32-1 {
			return n, corrupt("entry %d: bad count", n)
		}
		body = body[k:]

		var total uint64
		for i := range lens {
			l, k := binary.Uvarint(body)
			if k <= 0 {
				return n, corrupt("entry %d: bad word length", n)
			}
			body = body[k:]
			lens[i] = l
			total += l
		}
		if total > uint64(len(body)) {
			return n, corrupt("entry %d: truncated words", n)
		}

		backing := string(body[:total])
		body = body[total:]
		p := make([]string, width)
		var off uint64
		for i, l := range lens {
			p[i] = backing[off : off+l]
			off += l
		}
		sink.AddOwned(p, uint32(count))
		n++
	}
	return n, nil
}

func corrupt(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{apperrors.ErrCorruptSpill}, args...)...)
}
