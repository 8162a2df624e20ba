package envelope

import (
	"crypto/cipher"
	"encoding/binary"
)

// ghash computes the GCM authenticator incrementally. The standard library
// only exposes GCM as a one-shot AEAD, so the field arithmetic is reproduced
// here with the same 4-bit table layout crypto/cipher uses for its generic path.
type ghash struct {
	table   [16]fieldElement
	y       fieldElement
	partial [16]byte
	np      int
}

// fieldElement holds a GF(2^128) element in GCM bit order: low is the first
// eight bytes of the block, high the last eight.
type fieldElement struct {
	low, high uint64
}

var reductionTable = [16]uint16{
	0x0000, 0x1c20, 0x3840, 0x2460, 0x7080, 0x6ca0, 0x48c0, 0x54e0,
	0xe100, 0xfd20, 0xd940, 0xc560, 0x9180, 0x8da0, 0xa9c0, 0xb5e0,
}

func newGHash(block cipher.Block) *ghash {
	var h [16]byte
	block.Encrypt(h[:], h[:])

	g := &ghash{}
	x := fieldElement{
		low:  binary.BigEndian.Uint64(h[:8]),
		high: binary.BigEndian.Uint64(h[8:]),
	}
	// table lookups use bits in reverse order, so multiple i of H lives at reverseBits(i)
	g.table[reverseBits(1)] = x
	for i := 2; i < 16; i += 2 {
		g.table[reverseBits(i)] = double(g.table[reverseBits(i/2)])
		g.table[reverseBits(i+1)] = add(g.table[reverseBits(i)], x)
	}
	return g
}

func (g *ghash) write(p []byte) {
	if g.np > 0 {
		n := copy(g.partial[g.np:], p)
		g.np += n
		p = p[n:]
		if g.np < len(g.partial) {
			return
		}
		g.updateBlock(g.partial[:])
		g.np = 0
	}
	for len(p) >= 16 {
		g.updateBlock(p[:16])
		p = p[16:]
	}
	if len(p) > 0 {
		g.np = copy(g.partial[:], p)
	}
}

// sum finalizes the authenticator for a ciphertext of length bytes without
// additional data and returns the expected tag.
func (g *ghash) sum(length uint64, mask *[16]byte) [16]byte {
	if g.np > 0 {
		clear(g.partial[g.np:])
		g.updateBlock(g.partial[:])
		g.np = 0
	}

	g.y.high ^= length * 8
	g.mul(&g.y)

	var out [16]byte
	binary.BigEndian.PutUint64(out[:8], g.y.low)
	binary.BigEndian.PutUint64(out[8:], g.y.high)
	for i := range out {
		out[i] ^= mask[i]
	}
	return out
}

func (g *ghash) updateBlock(block []byte) {
	g.y.low ^= binary.BigEndian.Uint64(block[:8])
	g.y.high ^= binary.BigEndian.Uint64(block[8:16])
	g.mul(&g.y)
}

// mul sets y to y*H.
func (g *ghash) mul(y *fieldElement) {
	var z fieldElement
	for i := 0; i < 2; i++ {
		word := y.high
		if i == 1 {
			word = y.low
		}
		for j := 0; j < 64; j += 4 {
			msw := z.high & 0xf
			z.high >>= 4
			z.high |= z.low << 60
			z.low >>= 4
			z.low ^= uint64(reductionTable[msw]) << 48

			t := &g.table[word&0xf]
			z.low ^= t.low
			z.high ^= t.high
			word >>= 4
		}
	}
	*y = z
}

// double multiplies x by the field generator; with GCM bit order this is a right shift.
func double(x fieldElement) fieldElement {
	msbSet := x.high&1 == 1

	var d fieldElement
	d.high = x.high >> 1
	d.high |= x.low << 63
	d.low = x.low >> 1
	if msbSet {
		d.low ^= 0xe100000000000000
	}
	return d
}

func add(x, y fieldElement) fieldElement {
	return fieldElement{low: x.low ^ y.low, high: x.high ^ y.high}
}

func reverseBits(i int) int {
	i = ((i << 2) & 0xc) | ((i >> 2) & 0x3)
	i = ((i << 1) & 0xa) | ((i >> 1) & 0x5)
	return i
}
