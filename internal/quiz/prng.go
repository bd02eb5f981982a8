package quiz

import "hash/fnv"

// Seed derives the generator seed from a story ID with 32-bit FNV-1a.
func Seed(storyID string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(storyID))
	return h.Sum32()
}

// mulberry32 is a small 32-bit PRNG. It is implemented here rather than taken
// from math/rand so quiz output never shifts with the Go release.
type mulberry32 struct {
	state uint32
}

func newMulberry32(seed uint32) *mulberry32 {
	return &mulberry32{state: seed}
}

func (m *mulberry32) next() uint32 {
	m.state += 0x6D2B79F5
	t := m.state
	t = (t ^ (t >> 15)) * (t | 1)
	t ^= t + (t^(t>>7))*(t|61)
	return t ^ (t >> 14)
}

// Float64 returns a value in [0, 1).
func (m *mulberry32) Float64() float64 {
	return float64(m.next()) / 4294967296.0
}

// IntN returns a value in [0, n). n <= 0 yields 0.
func (m *mulberry32) IntN(n int) int {
	if n <= 0 {
		return 0
	}
	return int(m.Float64() * float64(n))
}
