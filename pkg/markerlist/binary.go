package markerlist

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"unsafe"

	"github.com/azybler/markermerge/pkg/marker"
)

// fileMagic identifies a marker-list snapshot file.
const fileMagic = 0x4d524b4c // "MRKL"

// fileVersion is bumped whenever the on-disk layout changes incompatibly.
const fileVersion = 1

// fileHeader is the fixed-size prefix of a snapshot file.
type fileHeader struct {
	Magic    uint32
	Version  uint32
	Kind     uint32
	Scale    float64
	Count    uint32
	Checksum uint32
}

const fileHeaderSize = 4 + 4 + 4 + 8 + 4 + 4

// WriteBinary snapshots the list to path atomically: it writes to a temp
// file in the same directory and renames over the destination, so a
// concurrent reader (or a crash mid-write) never observes a partial file.
func (l *List) WriteBinary(path string) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".markerlist-*.tmp")
	if err != nil {
		return fmt.Errorf("markerlist: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if err := l.writeTo(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("markerlist: write snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("markerlist: sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("markerlist: close temp snapshot: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("markerlist: rename snapshot into place: %w", err)
	}
	return nil
}

func (l *List) writeTo(w io.Writer) error {
	payload := markersToBytes(l.markers[:l.n])
	checksum := crc32.ChecksumIEEE(payload)

	hdr := fileHeader{
		Magic:    fileMagic,
		Version:  fileVersion,
		Kind:     uint32(l.info.Kind),
		Scale:    l.info.Scale,
		Count:    uint32(l.n),
		Checksum: checksum,
	}
	bw := bufio.NewWriter(w)
	if err := binary.Write(bw, binary.LittleEndian, hdr.Magic); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, hdr.Version); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, hdr.Kind); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, hdr.Scale); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, hdr.Count); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, hdr.Checksum); err != nil {
		return err
	}
	if _, err := bw.Write(payload); err != nil {
		return err
	}
	return bw.Flush()
}

// ReadBinary loads a snapshot previously written by WriteBinary and returns
// a new List holding its markers and marker Info.
func ReadBinary(path string) (*List, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("markerlist: open snapshot: %w", err)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	var hdr fileHeader
	for _, field := range []any{&hdr.Magic, &hdr.Version, &hdr.Kind, &hdr.Scale, &hdr.Count, &hdr.Checksum} {
		if err := binary.Read(br, binary.LittleEndian, field); err != nil {
			return nil, fmt.Errorf("markerlist: read header: %w", err)
		}
	}
	if hdr.Magic != fileMagic {
		return nil, fmt.Errorf("markerlist: bad magic %#x", hdr.Magic)
	}
	if hdr.Version != fileVersion {
		return nil, fmt.Errorf("markerlist: unsupported version %d", hdr.Version)
	}

	payload := make([]byte, int(hdr.Count)*markerByteSize)
	if _, err := io.ReadFull(br, payload); err != nil {
		return nil, fmt.Errorf("markerlist: read marker payload: %w", err)
	}
	if crc32.ChecksumIEEE(payload) != hdr.Checksum {
		return nil, fmt.Errorf("markerlist: checksum mismatch, snapshot is corrupt")
	}

	info := marker.NewInfo(marker.Kind(hdr.Kind), hdr.Scale)
	l := &List{info: info, n: int(hdr.Count)}
	l.markers = bytesToMarkers(payload, int(hdr.Count))
	return l, nil
}

// markerByteSize is the on-disk footprint of one marker.Marker: 6 float64
// fields, one bool, two ints — but serialized in a fixed portable layout
// rather than the in-memory struct layout, so the format doesn't depend on
// the compiler's field ordering or platform int width.
const markerByteSize = 8*6 + 1 + 4 + 4

// markersToBytes serializes markers into the fixed portable layout, field
// by field. It does not reinterpret the Marker struct directly, since that
// struct's Go layout is not a stable wire format; unsafe is used only in
// putFloat64/getFloat64 for the float64<->uint64 bit pattern.
func markersToBytes(markers []marker.Marker) []byte {
	buf := make([]byte, len(markers)*markerByteSize)
	for i, m := range markers {
		off := i * markerByteSize
		putFloat64(buf[off:], m.Size)
		putFloat64(buf[off+8:], m.X)
		putFloat64(buf[off+16:], m.Y)
		putFloat64(buf[off+24:], m.R)
		putFloat64(buf[off+32:], m.XSum)
		putFloat64(buf[off+40:], m.YSum)
		if m.Deleted {
			buf[off+48] = 1
		}
		putInt32(buf[off+49:], int32(m.PartA))
		putInt32(buf[off+53:], int32(m.PartB))
	}
	return buf
}

func bytesToMarkers(buf []byte, n int) []marker.Marker {
	markers := make([]marker.Marker, n)
	for i := range markers {
		off := i * markerByteSize
		markers[i] = marker.Marker{
			Size:    getFloat64(buf[off:]),
			X:       getFloat64(buf[off+8:]),
			Y:       getFloat64(buf[off+16:]),
			R:       getFloat64(buf[off+24:]),
			XSum:    getFloat64(buf[off+32:]),
			YSum:    getFloat64(buf[off+40:]),
			Deleted: buf[off+48] != 0,
			PartA:   int(getInt32(buf[off+49:])),
			PartB:   int(getInt32(buf[off+53:])),
		}
	}
	return markers
}

func putFloat64(b []byte, v float64) {
	bits := *(*uint64)(unsafe.Pointer(&v))
	binary.LittleEndian.PutUint64(b, bits)
}

func getFloat64(b []byte) float64 {
	bits := binary.LittleEndian.Uint64(b)
	return *(*float64)(unsafe.Pointer(&bits))
}

func putInt32(b []byte, v int32) {
	binary.LittleEndian.PutUint32(b, uint32(v))
}

func getInt32(b []byte) int32 {
	return int32(binary.LittleEndian.Uint32(b))
}
