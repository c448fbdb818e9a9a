package persist

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/fastmem/fastmem/internal/errors"
	"github.com/fastmem/fastmem/internal/model"
	"github.com/fastmem/fastmem/internal/util"
)

// Snapshot file layout:
//
//	magic (8 bytes) | record count (uint32 LE) | records
//
// Each record is a uint32 length prefix followed by the encoded payload
// sealed with a trailing CRC32. A record that fails its checksum poisons
// the whole file; partial restores are worse than none.
var magic = []byte("FMSNAP01")

const maxRecordSize = 64 << 20

// Snapshot reads and writes store snapshots at a fixed path.
type Snapshot struct {
	path   string
	logger *zap.Logger
}

// NewSnapshot creates a snapshot codec for the given file path.
func NewSnapshot(path string, logger *zap.Logger) *Snapshot {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Snapshot{path: path, logger: logger}
}

// Path returns the snapshot file path.
func (s *Snapshot) Path() string { return s.path }

// Write persists records to the snapshot file. The file is written to a
// temporary sibling and renamed into place so a crash mid-write never
// leaves a truncated snapshot behind.
func (s *Snapshot) Write(records []model.SnapshotRecord) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create snapshot temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	if _, err := w.Write(magic); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write snapshot header: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(records))); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write snapshot header: %w", err)
	}

	for i := range records {
		payload, err := encodeRecord(&records[i])
		if err != nil {
			tmp.Close()
			return err
		}
		sealed := util.SealRecord(payload)
		if err := binary.Write(w, binary.LittleEndian, uint32(len(sealed))); err != nil {
			tmp.Close()
			return fmt.Errorf("failed to write snapshot record: %w", err)
		}
		if _, err := w.Write(sealed); err != nil {
			tmp.Close()
			return fmt.Errorf("failed to write snapshot record: %w", err)
		}
	}

	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to flush snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to install snapshot: %w", err)
	}

	s.logger.Info("Snapshot written",
		zap.String("path", s.path),
		zap.Int("records", len(records)))
	return nil
}

// Read loads all records from the snapshot file.
func (s *Snapshot) Read() ([]model.SnapshotRecord, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	header := make([]byte, len(magic))
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, errors.CorruptedData("snapshot header truncated", err)
	}
	if !bytes.Equal(header, magic) {
		return nil, errors.CorruptedData("snapshot magic mismatch", nil)
	}

	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, errors.CorruptedData("snapshot header truncated", err)
	}

	records := make([]model.SnapshotRecord, 0, count)
	for i := uint32(0); i < count; i++ {
		var size uint32
		if err := binary.Read(r, binary.LittleEndian, &size); err != nil {
			return nil, errors.CorruptedData("snapshot record truncated", err)
		}
		if size > maxRecordSize {
			return nil, errors.CorruptedData(fmt.Sprintf("snapshot record size %d exceeds limit", size), nil)
		}
		sealed := make([]byte, size)
		if _, err := io.ReadFull(r, sealed); err != nil {
			return nil, errors.CorruptedData("snapshot record truncated", err)
		}
		payload, ok := util.OpenRecord(sealed)
		if !ok {
			return nil, errors.CorruptedData(fmt.Sprintf("snapshot record %d checksum mismatch", i), nil)
		}
		rec, err := decodeRecord(payload)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	s.logger.Info("Snapshot loaded",
		zap.String("path", s.path),
		zap.Int("records", len(records)))
	return records, nil
}

// Exists reports whether a snapshot file is present.
func (s *Snapshot) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

func encodeRecord(rec *model.SnapshotRecord) ([]byte, error) {
	var buf bytes.Buffer

	kind := rec.Value.Kind()
	buf.WriteByte(byte(kind))

	var expire int64
	if !rec.ExpireAt.IsZero() {
		expire = rec.ExpireAt.UnixNano()
	}
	var scratch [8]byte
	binary.LittleEndian.PutUint64(scratch[:], uint64(expire))
	buf.Write(scratch[:])

	writeBytes(&buf, []byte(rec.Key))

	switch v := rec.Value.(type) {
	case *model.Scalar:
		writeBytes(&buf, v.Data)
	case *model.List:
		writeCount(&buf, len(v.Elems))
		for _, elem := range v.Elems {
			writeBytes(&buf, elem)
		}
	case *model.Set:
		writeCount(&buf, v.Len())
		for m := range v.Members {
			writeBytes(&buf, []byte(m))
		}
	case *model.Hash:
		writeCount(&buf, v.Len())
		for f, data := range v.Fields {
			writeBytes(&buf, []byte(f))
			writeBytes(&buf, data)
		}
	case *model.SortedSet:
		writeCount(&buf, v.Len())
		for m, score := range v.Members {
			writeBytes(&buf, []byte(m))
			binary.LittleEndian.PutUint64(scratch[:], math.Float64bits(score))
			buf.Write(scratch[:])
		}
	default:
		return nil, errors.InternalError(fmt.Sprintf("unknown value kind %d", kind), nil)
	}

	return buf.Bytes(), nil
}

func decodeRecord(payload []byte) (model.SnapshotRecord, error) {
	r := &reader{buf: payload}

	kind := model.ValueType(r.byte())
	expire := int64(r.uint64())
	key := string(r.bytes())

	var rec model.SnapshotRecord
	rec.Key = key
	if expire != 0 {
		rec.ExpireAt = time.Unix(0, expire)
	}

	switch kind {
	case model.ValueTypeScalar:
		rec.Value = model.NewScalar(r.bytes())
	case model.ValueTypeList:
		list := model.NewList()
		n := r.count()
		for i := 0; i < n && r.err == nil; i++ {
			elem := r.bytes()
			cp := make([]byte, len(elem))
			copy(cp, elem)
			list.Elems = append(list.Elems, cp)
		}
		rec.Value = list
	case model.ValueTypeSet:
		set := model.NewSet()
		n := r.count()
		for i := 0; i < n && r.err == nil; i++ {
			set.Add(string(r.bytes()))
		}
		rec.Value = set
	case model.ValueTypeHash:
		hash := model.NewHash()
		n := r.count()
		for i := 0; i < n && r.err == nil; i++ {
			field := string(r.bytes())
			hash.SetField(field, r.bytes())
		}
		rec.Value = hash
	case model.ValueTypeSortedSet:
		zset := model.NewSortedSet()
		n := r.count()
		for i := 0; i < n && r.err == nil; i++ {
			member := string(r.bytes())
			score := math.Float64frombits(r.uint64())
			zset.Add(member, score)
		}
		rec.Value = zset
	default:
		return model.SnapshotRecord{}, errors.CorruptedData(fmt.Sprintf("unknown value kind %d", kind), nil)
	}

	if r.err != nil {
		return model.SnapshotRecord{}, errors.CorruptedData("snapshot record malformed", r.err)
	}
	return rec, nil
}

func writeBytes(buf *bytes.Buffer, b []byte) {
	var scratch [4]byte
	binary.LittleEndian.PutUint32(scratch[:], uint32(len(b)))
	buf.Write(scratch[:])
	buf.Write(b)
}

func writeCount(buf *bytes.Buffer, n int) {
	var scratch [4]byte
	binary.LittleEndian.PutUint32(scratch[:], uint32(n))
	buf.Write(scratch[:])
}

// reader is a cursor over an encoded record that latches the first error.
type reader struct {
	buf []byte
	off int
	err error
}

func (r *reader) fail() {
	if r.err == nil {
		r.err = io.ErrUnexpectedEOF
	}
}

func (r *reader) byte() byte {
	if r.err != nil || r.off+1 > len(r.buf) {
		r.fail()
		return 0
	}
	b := r.buf[r.off]
	r.off++
	return b
}

func (r *reader) uint64() uint64 {
	if r.err != nil || r.off+8 > len(r.buf) {
		r.fail()
		return 0
	}
	v := binary.LittleEndian.Uint64(r.buf[r.off:])
	r.off += 8
	return v
}

func (r *reader) count() int {
	if r.err != nil || r.off+4 > len(r.buf) {
		r.fail()
		return 0
	}
	v := binary.LittleEndian.Uint32(r.buf[r.off:])
	r.off += 4
	return int(v)
}

func (r *reader) bytes() []byte {
	n := r.count()
	if r.err != nil || r.off+n > len(r.buf) {
		r.fail()
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}
