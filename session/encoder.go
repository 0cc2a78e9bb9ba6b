package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"time"

	"github.com/MrEthical07/tipgate/permission"
)

const sessionFormatVersion = 1

var errCorruptSession = errors.New("corrupt session blob")

// Encode serializes s without its identifier, which is carried by the key.
//
//	version u8 | tenant i64 | user len u8 + bytes | role u8 | status len u8 + bytes |
//	capabilities u64 | flags u8 | created unix-nano i64 | expires unix-nano i64
func Encode(s *Session) ([]byte, error) {
	if len(s.UserID) > 255 {
		return nil, errors.New("userID too long")
	}
	if len(s.Status) > 255 {
		return nil, errors.New("status too long")
	}

	var buf bytes.Buffer
	buf.Grow(48 + len(s.UserID) + len(s.Status))

	buf.WriteByte(sessionFormatVersion)
	writeInt64(&buf, int64(s.TenantID))
	buf.WriteByte(byte(len(s.UserID)))
	buf.WriteString(s.UserID)
	buf.WriteByte(byte(s.Role))
	buf.WriteByte(byte(len(s.Status)))
	buf.WriteString(s.Status)
	writeInt64(&buf, int64(s.Capabilities.Raw()))

	var flags byte
	if s.PasswordChangeNeeded {
		flags |= 1
	}
	buf.WriteByte(flags)

	writeInt64(&buf, s.CreatedAt.UnixNano())
	writeInt64(&buf, s.ExpiresAt.UnixNano())

	return buf.Bytes(), nil
}

// Decode parses a blob produced by Encode. The caller sets ID.
func Decode(data []byte) (*Session, error) {
	r := bytes.NewReader(data)

	version, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != sessionFormatVersion {
		return nil, errors.New("invalid session version")
	}

	s := &Session{}

	tenant, err := readInt64(r)
	if err != nil {
		return nil, err
	}
	s.TenantID = int(tenant)

	if s.UserID, err = readString(r); err != nil {
		return nil, err
	}

	role, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	s.Role = permission.Role(role)
	if !s.Role.Valid() {
		return nil, errCorruptSession
	}

	if s.Status, err = readString(r); err != nil {
		return nil, err
	}

	caps, err := readInt64(r)
	if err != nil {
		return nil, err
	}
	s.Capabilities = permission.Mask64(uint64(caps))

	flags, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if flags&^1 != 0 {
		return nil, errCorruptSession
	}
	s.PasswordChangeNeeded = flags&1 != 0

	created, err := readInt64(r)
	if err != nil {
		return nil, err
	}
	expires, err := readInt64(r)
	if err != nil {
		return nil, err
	}
	s.CreatedAt = time.Unix(0, created)
	s.ExpiresAt = time.Unix(0, expires)

	if r.Len() != 0 {
		return nil, errCorruptSession
	}
	return s, nil
}

func writeInt64(buf *bytes.Buffer, v int64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	buf.Write(b[:])
}

func readInt64(r *bytes.Reader) (int64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(b[:])), nil
}

func readString(r *bytes.Reader) (string, error) {
	n, err := r.ReadByte()
	if err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}
