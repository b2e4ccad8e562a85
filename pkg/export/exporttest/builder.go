// Package exporttest builds small loader-shaped PE images in memory so
// export parsing and resolution can be exercised without a live module.
package exporttest

import "encoding/binary"

// Fixed layout, shared with tests that patch specific header fields.
const (
	PEOff   = 0x80 // e_lfanew target
	OptOff  = PEOff + 24
	DirRVA  = 0x200
	ImgSize = 0x2000
)

type slot struct {
	name      string
	rva       uint32
	forwarder string
	unused    bool
}

// Builder assembles an image whose export directory holds the added slots in
// order. Tables follow the 40-byte directory at DirRVA: functions, names,
// ordinals, then strings. Code RVAs should be 0x1000 or higher so they land
// outside the directory; forwarder strings are placed inside it.
type Builder struct {
	OrdinalBase uint32
	PE32        bool
	slots       []slot
}

func New() *Builder { return &Builder{OrdinalBase: 1} }

// Add appends a named export whose code sits at rva.
func (b *Builder) Add(name string, rva uint32) *Builder {
	b.slots = append(b.slots, slot{name: name, rva: rva})
	return b
}

// AddOrdinalOnly appends an export reachable only by ordinal.
func (b *Builder) AddOrdinalOnly(rva uint32) *Builder {
	b.slots = append(b.slots, slot{rva: rva})
	return b
}

// AddForwarder appends a named export forwarding to target, e.g.
// "HOST.Func" or "HOST.#5".
func (b *Builder) AddForwarder(name, target string) *Builder {
	b.slots = append(b.slots, slot{name: name, forwarder: target})
	return b
}

// AddUnused appends an empty slot (zero RVA), as linkers emit for gaps in
// the ordinal range.
func (b *Builder) AddUnused() *Builder {
	b.slots = append(b.slots, slot{unused: true})
	return b
}

func (b *Builder) Build() []byte {
	img := make([]byte, ImgSize)
	img[0], img[1] = 'M', 'Z'
	put32(img, 0x3C, PEOff)
	copy(img[PEOff:], "PE\x00\x00")
	put16(img, PEOff+4, 0x8664) // Machine
	put16(img, PEOff+20, 240)   // SizeOfOptionalHeader

	magic, ddOff := uint32(0x20B), uint32(112)
	if b.PE32 {
		magic, ddOff = 0x10B, 96
	}
	put16(img, OptOff, uint16(magic))
	put32(img, OptOff+56, ImgSize) // SizeOfImage
	put32(img, OptOff+ddOff-4, 16) // NumberOfRvaAndSizes

	named := 0
	for _, s := range b.slots {
		if s.name != "" {
			named++
		}
	}
	n := len(b.slots)
	funcsOff := uint32(40)
	namesOff := funcsOff + uint32(4*n)
	ordsOff := namesOff + uint32(4*named)

	dir := make([]byte, ordsOff+uint32(2*named))
	addString := func(s string) uint32 {
		rva := uint32(DirRVA + len(dir))
		dir = append(dir, s...)
		dir = append(dir, 0)
		return rva
	}

	put32(dir, 16, b.OrdinalBase)
	put32(dir, 20, uint32(n))
	put32(dir, 24, uint32(named))
	put32(dir, 28, DirRVA+funcsOff)
	put32(dir, 32, DirRVA+namesOff)
	put32(dir, 36, DirRVA+ordsOff)

	ni := 0
	for i, s := range b.slots {
		switch {
		case s.unused:
			// funcs[i] stays zero
		case s.forwarder != "":
			put32(dir, funcsOff+uint32(4*i), addString(s.forwarder))
		default:
			put32(dir, funcsOff+uint32(4*i), s.rva)
		}
		if s.name != "" {
			put32(dir, namesOff+uint32(4*ni), addString(s.name))
			put16(dir, ordsOff+uint32(2*ni), uint16(i))
			ni++
		}
	}

	copy(img[DirRVA:], dir)
	put32(img, OptOff+ddOff, DirRVA)
	put32(img, OptOff+ddOff+4, uint32(len(dir)))
	return img
}

func put16(b []byte, off uint32, v uint16) { binary.LittleEndian.PutUint16(b[off:], v) }
func put32(b []byte, off uint32, v uint32) { binary.LittleEndian.PutUint32(b[off:], v) }
