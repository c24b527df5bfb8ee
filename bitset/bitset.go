// Package bitset provides a fixed-size bit set keyed by dense vertex
// indices. The path finder uses it as an allocation-free visited set: one
// set per search, cleared between start tokens.
package bitset

func New(size int) BitSet {
	words := (size + 63) / 64
	return make(BitSet, words)
}

type BitSet []uint64

func (b BitSet) IsSet(index int) bool {
	return b[index/64]&(uint64(1)<<(index%64)) != 0
}

func (b BitSet) Set(index int) {
	b[index/64] |= uint64(1) << (index % 64)
}

func (b BitSet) Unset(index int) {
	b[index/64] &^= uint64(1) << (index % 64)
}

func (b BitSet) Clear() {
	for i := range b {
		b[i] = 0
	}
}
