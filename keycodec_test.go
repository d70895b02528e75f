package jobstate

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKeyCodecRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		fn   func(t *testing.T)
	}{
		{"job key", func(t *testing.T) {
			buf := encodeJobKey(123456789)
			got, err := decodeJobKey(buf)
			require.NoError(t, err)
			require.Equal(t, uint64(123456789), got)
		}},
		{"type/job composite key", func(t *testing.T) {
			buf := encodeTypeJobKey([]byte("send_email"), 42)
			jobType, key, err := decodeTypeJobKey(buf)
			require.NoError(t, err)
			require.Equal(t, []byte("send_email"), jobType)
			require.Equal(t, uint64(42), key)
		}},
		{"u64/job composite key", func(t *testing.T) {
			buf := encodeU64JobKey(1000, 7)
			primary, key, err := decodeU64JobKey(buf)
			require.NoError(t, err)
			require.Equal(t, uint64(1000), primary)
			require.Equal(t, uint64(7), key)
		}},
	}
	for _, c := range cases {
		t.Run(c.name, c.fn)
	}
}

func TestKeyCodecOrderPreserving(t *testing.T) {
	// Lexicographic byte order over encoded keys must match numeric order,
	// since every iterator-driven scan (ForEachTimedOut, FindBackedOffJobs)
	// relies on ascending byte order to mean ascending deadline/due-time.
	lower := encodeU64JobKey(10, 0)
	higher := encodeU64JobKey(20, 0)
	require.True(t, compareBytes(lower, higher) < 0)

	sameFirst := encodeU64JobKey(10, 5)
	require.True(t, compareBytes(lower, sameFirst) < 0)
}

func TestKeyCodecCorruptInputs(t *testing.T) {
	_, err := decodeJobKey([]byte{1, 2, 3})
	require.ErrorIs(t, err, ErrCorruptKey)

	_, _, err = decodeTypeJobKey([]byte{0, 5, 'a', 'b'})
	require.ErrorIs(t, err, ErrCorruptKey)

	_, _, err = decodeU64JobKey([]byte{1, 2, 3})
	require.ErrorIs(t, err, ErrCorruptKey)
}

func compareBytes(a, b []byte) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return int(a[i]) - int(b[i])
		}
	}
	return len(a) - len(b)
}
