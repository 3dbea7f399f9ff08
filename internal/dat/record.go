// Package dat reads and writes the per-degree terrain files loaded by the
// autopilot.
package dat

import (
	"bytes"
	"encoding/binary"

	"github.com/cockroachdb/errors"
)

const (
	BlockSizeX = 28
	BlockSizeY = 32

	// DataSize is the packed size of a record before padding.
	DataSize = 1821
	// RecordSize is the on-disk size of a record.
	RecordSize = 2048

	FormatVersion = 1

	crcOffset = 16
)

var (
	ErrChecksum = errors.New("record checksum mismatch")
	ErrVersion  = errors.New("unsupported record version")
	ErrLayout   = errors.New("malformed terrain file")
)

// Record is one grid block as stored on disk. Field order is the packed
// little-endian layout.
type Record struct {
	Bitmap     uint64
	Lat        int32
	Lon        int32
	CRC        uint16
	Version    uint16
	Spacing    uint16
	Heights    [BlockSizeX][BlockSizeY]int16
	GridIdxX   uint16
	GridIdxY   uint16
	LonDegrees int16
	LatDegrees int8
}

func (r *Record) MarshalBinary() ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, RecordSize))
	if err := binary.Write(buf, binary.LittleEndian, r); err != nil {
		return nil, errors.Wrap(err, "packing record")
	}
	buf.Write(make([]byte, RecordSize-DataSize))
	return buf.Bytes(), nil
}

func (r *Record) UnmarshalBinary(data []byte) error {
	if len(data) < DataSize {
		return errors.Wrapf(ErrLayout, "record of %d bytes", len(data))
	}
	return binary.Read(bytes.NewReader(data[:DataSize]), binary.LittleEndian, r)
}

// ComputeChecksum is the checksum of the packed record with its CRC field
// zeroed.
func (r *Record) ComputeChecksum() uint16 {
	data, err := r.MarshalBinary()
	if err != nil {
		return 0
	}
	data[crcOffset], data[crcOffset+1] = 0, 0
	return Checksum(data[:DataSize])
}

// Seal fills in the checksum.
func (r *Record) Seal() {
	r.CRC = r.ComputeChecksum()
}

func (r *Record) Verify() error {
	if r.Version != FormatVersion {
		return errors.Wrapf(ErrVersion, "block %d,%d: version %d", r.GridIdxX, r.GridIdxY, r.Version)
	}
	if crc := r.ComputeChecksum(); crc != r.CRC {
		return errors.Wrapf(ErrChecksum, "block %d,%d: stored %#04x, computed %#04x", r.GridIdxX, r.GridIdxY, r.CRC, crc)
	}
	return nil
}

// IsEmpty reports a record that was never written. Skipped blocknums are
// left as zeros.
func (r *Record) IsEmpty() bool {
	return *r == Record{}
}
