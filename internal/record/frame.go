package record

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// Encode writes r's log frame to w in its fixed big-endian wire format:
//
//	offset       u64
//	timestamp_us u64
//	key_len      u32, key bytes
//	value_len    u32, value bytes
//	header_count u16
//	for each header: key_len u32, key bytes (utf-8); value_len u32, value bytes
//
// All integers are big-endian. The frame reserves no CRC bytes on the wire;
// checksum verification is out of scope.
func Encode(w io.Writer, r Record) error {
	if err := binary.Write(w, binary.BigEndian, r.Offset); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, r.Timestamp); err != nil {
		return err
	}
	if err := writeBytes(w, r.Key); err != nil {
		return err
	}
	if err := writeBytes(w, r.Value); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, uint16(len(r.Headers))); err != nil {
		return err
	}
	for _, h := range r.Headers {
		if err := writeBytes(w, []byte(h.Key)); err != nil {
			return err
		}
		if err := writeBytes(w, h.Value); err != nil {
			return err
		}
	}
	return nil
}

func writeBytes(w io.Writer, b []byte) error {
	if err := binary.Write(w, binary.BigEndian, uint32(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

// Decode reads exactly one frame from r, as written by Encode.
func Decode(r io.Reader) (Record, error) {
	var rec Record

	if err := binary.Read(r, binary.BigEndian, &rec.Offset); err != nil {
		return Record{}, err
	}
	if err := binary.Read(r, binary.BigEndian, &rec.Timestamp); err != nil {
		return Record{}, err
	}

	key, err := readBytes(r)
	if err != nil {
		return Record{}, err
	}
	rec.Key = key

	value, err := readBytes(r)
	if err != nil {
		return Record{}, err
	}
	rec.Value = value

	var headerCount uint16
	if err := binary.Read(r, binary.BigEndian, &headerCount); err != nil {
		return Record{}, err
	}

	if headerCount > 0 {
		rec.Headers = make([]Header, headerCount)
		for i := range rec.Headers {
			key, err := readBytes(r)
			if err != nil {
				return Record{}, err
			}
			value, err := readBytes(r)
			if err != nil {
				return Record{}, err
			}
			rec.Headers[i] = Header{Key: string(key), Value: value}
		}
	}

	return rec, nil
}

func readBytes(r io.Reader) ([]byte, error) {
	var length uint32
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return nil, err
	}
	if length == 0 {
		return []byte{}, nil
	}
	b := make([]byte, length)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, fmt.Errorf("record: short read of %d bytes: %w", length, err)
	}
	return b, nil
}

// DecodeAt decodes exactly one frame occupying [start, start+length) of ra.
func DecodeAt(ra io.ReaderAt, start int64, length int64) (Record, error) {
	sr := io.NewSectionReader(ra, start, length)
	return Decode(bufio.NewReader(sr))
}
