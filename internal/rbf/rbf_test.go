package rbf

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHeaderLayout(t *testing.T) {
	require.Equal(t, 30, HeaderLen)
	require.Equal(t, 9, TrailerLen)
}

func TestBuildMatchesKnownImage(t *testing.T) {
	got, err := Build("myprog.rbf")
	require.NoError(t, err)

	want := []byte("LEGO\x32\x00\x00\x00\x68\x00\x01\x00\x00\x00\x00\x00\x1C\x00\x00\x00\x00\x00\x00\x00\x08\x00\x00\x00\x60\x80")
	want = append(want, "myprog.rbf\x00"...)
	want = append(want, 0x44, 0x85, 0x82, 0xE8, 0x03, 0x40, 0x86, 0x40, 0x0A)
	require.Equal(t, want, got)
	require.Len(t, got, 50)
}

func TestSizeFieldAndPathOffset(t *testing.T) {
	for _, p := range []string{"a", "myprog.rbf", "../prjs/demo/demo.rbf", "/home/root/lms2012/prjs/Ünïcode/x.rbf"} {
		b, err := Build(p)
		require.NoError(t, err)
		require.Equal(t, uint32(HeaderLen+len(p)+1+TrailerLen), binary.LittleEndian.Uint32(b[4:8]))
		require.Equal(t, p, string(b[HeaderLen:HeaderLen+len(p)]))
		require.Zero(t, b[HeaderLen+len(p)])

		back, err := Parse(b)
		require.NoError(t, err)
		require.Equal(t, p, back)
	}
}

func TestBuildRejectsBadPaths(t *testing.T) {
	_, err := Build("")
	require.ErrorIs(t, err, ErrEmptyPath)
	_, err = Build("a\x00b")
	require.ErrorIs(t, err, ErrPathHasNUL)
}

func TestParseRejectsCorruptImages(t *testing.T) {
	good, err := Build("prog.rbf")
	require.NoError(t, err)

	short := good[:10]
	_, err = Parse(short)
	require.ErrorIs(t, err, ErrBadLayout)

	magic := append([]byte(nil), good...)
	magic[0] = 'X'
	_, err = Parse(magic)
	require.ErrorIs(t, err, ErrBadMagic)

	_, err = Parse(append(append([]byte(nil), good...), 0))
	require.ErrorIs(t, err, ErrSizeMismatch)

	tail := append([]byte(nil), good...)
	tail[len(tail)-1] = 0
	_, err = Parse(tail)
	require.ErrorIs(t, err, ErrBadLayout)
}
