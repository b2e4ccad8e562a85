package export_test

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carved4/go-hashresolve/pkg/export"
	"github.com/carved4/go-hashresolve/pkg/export/exporttest"
)

func TestParse(t *testing.T) {
	img := exporttest.New().
		Add("Alpha", 0x1000).
		AddUnused().
		AddOrdinalOnly(0x1010).
		AddForwarder("Gamma", "HOST.Target").
		Build()

	entries, err := export.Parse(img)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, export.Entry{Name: "Alpha", Ordinal: 1, RVA: 0x1000}, entries[0])

	// The unused slot is skipped but still consumes ordinal 2.
	assert.Equal(t, "", entries[1].Name)
	assert.Equal(t, uint32(3), entries[1].Ordinal)
	assert.Equal(t, uint32(0x1010), entries[1].RVA)
	assert.False(t, entries[1].Forwarded())

	assert.Equal(t, "Gamma", entries[2].Name)
	assert.Equal(t, uint32(4), entries[2].Ordinal)
	assert.True(t, entries[2].Forwarded())
	assert.Equal(t, "HOST.Target", entries[2].Forwarder)
}

func TestParseOrdinalBase(t *testing.T) {
	b := exporttest.New().Add("Alpha", 0x1000)
	b.OrdinalBase = 10

	entries, err := export.Parse(b.Build())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, uint32(10), entries[0].Ordinal)
}

func TestParsePE32(t *testing.T) {
	b := exporttest.New().Add("Alpha", 0x1000)
	b.PE32 = true

	entries, err := export.Parse(b.Build())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Alpha", entries[0].Name)
}

func TestParseNoExports(t *testing.T) {
	t.Run("no directory", func(t *testing.T) {
		img := exporttest.New().Add("Alpha", 0x1000).Build()
		binary.LittleEndian.PutUint32(img[exporttest.OptOff+112:], 0)
		binary.LittleEndian.PutUint32(img[exporttest.OptOff+116:], 0)

		entries, err := export.Parse(img)
		require.NoError(t, err)
		assert.Nil(t, entries)
	})

	t.Run("empty directory", func(t *testing.T) {
		entries, err := export.Parse(exporttest.New().Build())
		require.NoError(t, err)
		assert.Empty(t, entries)
	})
}

func TestParseMalformed(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(img []byte)
	}{
		{"missing mz", func(img []byte) {
			img[0] = 0
		}},
		{"missing pe signature", func(img []byte) {
			img[exporttest.PEOff] = 0
		}},
		{"unknown optional magic", func(img []byte) {
			binary.LittleEndian.PutUint16(img[exporttest.OptOff:], 0x777)
		}},
		{"e_lfanew past end", func(img []byte) {
			binary.LittleEndian.PutUint32(img[0x3C:], uint32(len(img)))
		}},
		{"directory past end", func(img []byte) {
			binary.LittleEndian.PutUint32(img[exporttest.OptOff+112:], uint32(len(img)-8))
		}},
		{"directory size overruns image", func(img []byte) {
			binary.LittleEndian.PutUint32(img[exporttest.OptOff+116:], 0xFFFFFFFF)
		}},
		{"implausible counts", func(img []byte) {
			binary.LittleEndian.PutUint32(img[exporttest.DirRVA+20:], 1<<20)
		}},
		{"function table past end", func(img []byte) {
			binary.LittleEndian.PutUint32(img[exporttest.DirRVA+28:], uint32(len(img)-2))
		}},
		{"name string past end", func(img []byte) {
			// names table sits right after the one-slot function table
			binary.LittleEndian.PutUint32(img[exporttest.DirRVA+44:], uint32(len(img)))
		}},
		{"unterminated name string", func(img []byte) {
			binary.LittleEndian.PutUint32(img[exporttest.DirRVA+44:], uint32(len(img)-4))
			for i := len(img) - 4; i < len(img); i++ {
				img[i] = 'A'
			}
		}},
		{"ordinal index out of range", func(img []byte) {
			// ordinal table follows the name table
			binary.LittleEndian.PutUint16(img[exporttest.DirRVA+48:], 7)
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			img := exporttest.New().Add("Alpha", 0x1000).Build()
			tc.mutate(img)

			_, err := export.Parse(img)
			require.Error(t, err)
			var fe *export.FormatError
			assert.ErrorAs(t, err, &fe)
		})
	}
}

func TestParseForwarderWithWrappedDirectoryEnd(t *testing.T) {
	// A directory size large enough to wrap dirRVA+dirSize would empty the
	// forwarder range check and let a forwarder entry through as code, its
	// RVA aimed at the string bytes. That header is malformed, never a
	// direct entry.
	img := exporttest.New().AddForwarder("Fwd", "HOST.Target").Build()
	binary.LittleEndian.PutUint32(img[exporttest.OptOff+116:], 0xFFFFFFFF)

	entries, err := export.Parse(img)
	require.Error(t, err)
	var fe *export.FormatError
	assert.ErrorAs(t, err, &fe)
	assert.Nil(t, entries)
}

func TestParseTruncatedImage(t *testing.T) {
	_, err := export.Parse([]byte("MZ"))
	var fe *export.FormatError
	require.ErrorAs(t, err, &fe)
}
