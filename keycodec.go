package jobstate

import "encoding/binary"

// KeyCodec encodes and decodes the big-endian, order-preserving keys used by
// every column family. Encoding is big-endian so the engine's lexicographic
// byte order matches numeric order for scans; decoders borrow from a
// caller-owned buffer and never copy.

// appendUint16 appends a big-endian uint16 to buf and returns the result.
func appendUint16(buf []byte, v uint16) []byte {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], v)
	return append(buf, tmp[:]...)
}

// appendUint64 appends a big-endian uint64 to buf and returns the result.
func appendUint64(buf []byte, v uint64) []byte {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	return append(buf, tmp[:]...)
}

// appendBytes appends a 2-byte big-endian length prefix followed by b. The
// length prefix keeps composite keys self-delimiting so a (bytes, u64)
// composite key can be decoded without knowing the byte string's length in
// advance.
func appendBytes(buf []byte, b []byte) []byte {
	buf = appendUint16(buf, uint16(len(b)))
	return append(buf, b...)
}

// decodeUint64 reads a big-endian uint64 from the front of buf and returns
// the value plus the remaining bytes.
func decodeUint64(buf []byte) (uint64, []byte, error) {
	if len(buf) < 8 {
		return 0, nil, corruptKeyf("truncated uint64 key component (%d bytes)", len(buf))
	}
	return binary.BigEndian.Uint64(buf[:8]), buf[8:], nil
}

// decodeBytes reads a length-prefixed byte string from the front of buf and
// returns a borrowed slice plus the remaining bytes. The returned slice
// aliases buf — callers that need to retain it across a mutation of buf must
// copy it first.
func decodeBytes(buf []byte) ([]byte, []byte, error) {
	if len(buf) < 2 {
		return nil, nil, corruptKeyf("truncated length prefix (%d bytes)", len(buf))
	}
	n := int(binary.BigEndian.Uint16(buf[:2]))
	buf = buf[2:]
	if len(buf) < n {
		return nil, nil, corruptKeyf("truncated byte-string key component: want %d, have %d", n, len(buf))
	}
	return buf[:n], buf[n:], nil
}

// encodeJobKey encodes the single-u64 key used by JOBS and JOB_STATES.
func encodeJobKey(key uint64) []byte {
	return appendUint64(make([]byte, 0, 8), key)
}

// decodeJobKey decodes a single-u64 key, requiring the buffer to be exactly
// consumed.
func decodeJobKey(buf []byte) (uint64, error) {
	v, rest, err := decodeUint64(buf)
	if err != nil {
		return 0, err
	}
	if len(rest) != 0 {
		return 0, corruptKeyf("trailing %d bytes after job key", len(rest))
	}
	return v, nil
}

// encodeTypeJobKey encodes the (bytes type, u64 jobKey) composite key used
// by JOB_ACTIVATABLE.
func encodeTypeJobKey(jobType []byte, key uint64) []byte {
	buf := make([]byte, 0, 2+len(jobType)+8)
	buf = appendBytes(buf, jobType)
	buf = appendUint64(buf, key)
	return buf
}

// decodeTypeJobKey decodes a (bytes, u64) composite key. The returned type
// slice aliases buf.
func decodeTypeJobKey(buf []byte) (jobType []byte, key uint64, err error) {
	jobType, rest, err := decodeBytes(buf)
	if err != nil {
		return nil, 0, err
	}
	key, rest, err = decodeUint64(rest)
	if err != nil {
		return nil, 0, err
	}
	if len(rest) != 0 {
		return nil, 0, corruptKeyf("trailing %d bytes after type/job composite key", len(rest))
	}
	return jobType, key, nil
}

// encodeU64JobKey encodes a (u64, u64) composite key used by JOB_DEADLINES
// and JOB_BACKOFF, where the first u64 is a deadline or recurring time.
func encodeU64JobKey(primary uint64, key uint64) []byte {
	buf := make([]byte, 0, 16)
	buf = appendUint64(buf, primary)
	buf = appendUint64(buf, key)
	return buf
}

// decodeU64JobKey decodes a (u64, u64) composite key.
func decodeU64JobKey(buf []byte) (primary uint64, key uint64, err error) {
	primary, rest, err := decodeUint64(buf)
	if err != nil {
		return 0, 0, err
	}
	key, rest, err = decodeUint64(rest)
	if err != nil {
		return 0, 0, err
	}
	if len(rest) != 0 {
		return 0, 0, corruptKeyf("trailing %d bytes after composite key", len(rest))
	}
	return primary, key, nil
}

// typePrefix returns the scan prefix that matches every JOB_ACTIVATABLE
// entry for the given type, independent of jobKey.
func typePrefix(jobType []byte) []byte {
	return appendBytes(make([]byte, 0, 2+len(jobType)), jobType)
}
