package ppc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeImage map[uint32]uint32

func (f fakeImage) WriteUint32(addr uint32, value uint32) error {
	f[addr] = value
	return nil
}

func TestWriteHelpers(t *testing.T) {
	img := fakeImage{}

	require.NoError(t, WriteBranch(img, 0x80003000, 0x80003100, false))
	assert.Equal(t, uint32(0x48000100), img[0x80003000])

	require.NoError(t, WriteBranch(img, 0x80003004, 0x80003100, true))
	assert.Equal(t, uint32(0x480000FD), img[0x80003004])

	require.NoError(t, WriteNop(img, 0x80003008))
	assert.Equal(t, uint32(0x60000000), img[0x80003008])

	require.NoError(t, WriteLi(img, 0x8000300C, 3, -1))
	assert.Equal(t, uint32(0x3860FFFF), img[0x8000300C])

	require.NoError(t, WriteLis(img, 0x80003010, 3, 0x0001))
	assert.Equal(t, uint32(0x3C600001), img[0x80003010])

	require.NoError(t, WriteAddi(img, 0x80003014, 4, 3, 8))
	assert.Equal(t, uint32(0x38830008), img[0x80003014])

	require.NoError(t, WriteAddis(img, 0x80003018, 4, 3, 8))
	assert.Equal(t, uint32(0x3C830008), img[0x80003018])

	require.NoError(t, WriteOri(img, 0x8000301C, 3, 4, 0x1234))
	assert.Equal(t, uint32(0x60831234), img[0x8000301C])

	require.NoError(t, WriteOris(img, 0x80003020, 3, 4, 0x1234))
	assert.Equal(t, uint32(0x64831234), img[0x80003020])
}

func TestWriteBranchOutOfRange(t *testing.T) {
	img := fakeImage{}

	err := WriteBranch(img, 0x80003000, 0x84003000, false)
	assert.ErrorIs(t, err, ErrorBranchRange)
	assert.Empty(t, img)
}
