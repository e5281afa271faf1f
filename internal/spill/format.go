// Package spill writes oversized phrase tables to temporary files and reads
// them back.
//
// A spill file is a 32-byte header, a body of records, and an 8-byte footer:
//
//	header: magic u32 | version u32 | width u32 | compression u32 |
//	        entries u64 | body length u64
//	record: count uvarint | width × word length uvarint | word bytes
//	footer: crc32(body) u32 | magic u32
//
// Integers are little endian. The body may be zstd-compressed; the header's
// body length and the checksum always describe the uncompressed body.
package spill

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"

	"github.com/RustyYato/search-posts/internal/phrase"
	apperrors "github.com/RustyYato/search-posts/pkg/errors"
)

const (
	MagicBytes    uint32 = 0x4e475350
	FormatVersion uint32 = 1
	HeaderSize    int    = 32
	FooterSize    int    = 8

	// Ext is the suffix of a completed spill file.
	Ext = ".ngs"

	writeBufferSize = 1 << 20
)

// Compression selects how the record body is stored.
type Compression uint32

const (
	CompressionNone Compression = iota
	CompressionZstd
)

// ParseCompression maps a configuration name to a Compression.
func ParseCompression(name string) (Compression, error) {
	switch name {
	case "", "none":
		return CompressionNone, nil
	case "zstd":
		return CompressionZstd, nil
	default:
		return 0, fmt.Errorf("%w: unknown spill compression %q", apperrors.ErrConfig, name)
	}
}

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("compression(%d)", uint32(c))
	}
}

// Header is the fixed-size prefix of every spill file.
type Header struct {
	Magic       uint32
	Version     uint32
	Width       uint32
	Compression Compression
	Entries     uint64
	BodyLen     uint64
}

func (h Header) encode() []byte {
	b := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(b[0:4], h.Magic)
	binary.LittleEndian.PutUint32(b[4:8], h.Version)
	binary.LittleEndian.PutUint32(b[8:12], h.Width)
	binary.LittleEndian.PutUint32(b[12:16], uint32(h.Compression))
	binary.LittleEndian.PutUint64(b[16:24], h.Entries)
	binary.LittleEndian.PutUint64(b[24:32], h.BodyLen)
	return b
}

func decodeHeader(b []byte) Header {
	return Header{
		Magic:       binary.LittleEndian.Uint32(b[0:4]),
		Version:     binary.LittleEndian.Uint32(b[4:8]),
		Width:       binary.LittleEndian.Uint32(b[8:12]),
		Compression: Compression(binary.LittleEndian.Uint32(b[12:16])),
		Entries:     binary.LittleEndian.Uint64(b[16:24]),
		BodyLen:     binary.LittleEndian.Uint64(b[24:32]),
	}
}

// Info describes a written spill file.
type Info struct {
	Path    string
	Entries int
	Bytes   int64
}

// WriteFile serialises every entry of m to path in one pass. The data is
// written to path+".tmp" and renamed on success, so a completed name never
// refers to a partial file. The file must not already exist.
func WriteFile(path string, m *phrase.Map, compression Compression) (info Info, err error) {
	tmpPath := path + ".tmp"
	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return Info{}, fmt.Errorf("creating spill file: %w", err)
	}
	defer func() {
		f.Close()
		if err != nil {
			os.Remove(tmpPath)
		}
	}()

	header := Header{
		Magic:       MagicBytes,
		Version:     FormatVersion,
		Width:       uint32(m.Width()),
		Compression: compression,
		Entries:     uint64(m.Len()),
	}
	bw := bufio.NewWriterSize(f, writeBufferSize)
	if _, err := bw.Write(header.encode()); err != nil {
		return Info{}, fmt.Errorf("writing spill header: %w", err)
	}

	var (
		body io.Writer = bw
		enc  *zstd.Encoder
	)
	if compression == CompressionZstd {
		enc, err = zstd.NewWriter(bw, zstd.WithEncoderLevel(zstd.SpeedFastest))
		if err != nil {
			return Info{}, fmt.Errorf("creating zstd encoder: %w", err)
		}
		body = enc
	}
	crc := crc32.NewIEEE()
	cw := &countingWriter{w: io.MultiWriter(body, crc)}
	if err := encodeEntries(cw, m); err != nil {
		return Info{}, fmt.Errorf("writing spill records: %w", err)
	}
	if enc != nil {
		if err := enc.Close(); err != nil {
			return Info{}, fmt.Errorf("flushing zstd encoder: %w", err)
		}
	}

	footer := make([]byte, FooterSize)
	binary.LittleEndian.PutUint32(footer[0:4], crc.Sum32())
	binary.LittleEndian.PutUint32(footer[4:8], MagicBytes)
	if _, err := bw.Write(footer); err != nil {
		return Info{}, fmt.Errorf("writing spill footer: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return Info{}, fmt.Errorf("flushing spill file: %w", err)
	}

	header.BodyLen = uint64(cw.n)
	if _, err := f.WriteAt(header.encode(), 0); err != nil {
		return Info{}, fmt.Errorf("updating spill header: %w", err)
	}
	size, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return Info{}, fmt.Errorf("sizing spill file: %w", err)
	}
	if err := f.Close(); err != nil {
		return Info{}, fmt.Errorf("closing spill file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return Info{}, fmt.Errorf("renaming spill file: %w", err)
	}
	return Info{Path: path, Entries: m.Len(), Bytes: size}, nil
}

func encodeEntries(w io.Writer, m *phrase.Map) error {
	buf := make([]byte, 0, 256)
	for p, count := range m.All() {
		buf = binary.AppendUvarint(buf[:0], uint64(count))
		for _, word := range p {
			buf = binary.AppendUvarint(buf, uint64(len(word)))
		}
		for _, word := range p {
			buf = append(buf, word...)
		}
		if _, err := w.Write(buf); err != nil {
			return err
		}
	}
	return nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
