// Package drng is the deterministic random number generator shared with the
// on-chain contract. Every peer and the chain must produce the same sequence
// bit for bit, so nothing here may change without a schema bump.
package drng

import "math/bits"

// State is the 128-bit generator state.
type State [2]uint64

func splitMix64(x uint64) uint64 {
	z := x + 0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

// Seed expands s into a generator state by applying splitmix64 twice.
func Seed(s uint64) State {
	s0 := splitMix64(s)
	s1 := splitMix64(s0)
	return State{s0, s1}
}

// Next returns the next value and the state that follows it. All arithmetic
// wraps modulo 2^64.
func Next(st State) (uint64, State) {
	s0, s1 := st[0], st[1]
	value := s0 + s1
	s1 ^= s0
	next := State{
		bits.RotateLeft64(s0, 24) ^ s1 ^ (s1 << 16),
		bits.RotateLeft64(s1, 37),
	}
	return value, next
}
