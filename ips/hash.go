/* Copyright (c) 2018 Jason Ish
 * All rights reserved.
 *
 * Redistribution and use in source and binary forms, with or without
 * modification, are permitted provided that the following conditions
 * are met:
 *
 * 1. Redistributions of source code must retain the above copyright
 *    notice, this list of conditions and the following disclaimer.
 * 2. Redistributions in binary form must reproduce the above copyright
 *    notice, this list of conditions and the following disclaimer in the
 *    documentation and/or other materials provided with the distribution.
 *
 * THIS SOFTWARE IS PROVIDED ``AS IS'' AND ANY EXPRESS OR IMPLIED
 * WARRANTIES, INCLUDING, BUT NOT LIMITED TO, THE IMPLIED WARRANTIES OF
 * MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE ARE
 * DISCLAIMED. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR ANY DIRECT,
 * INDIRECT, INCIDENTAL, SPECIAL, EXEMPLARY, OR CONSEQUENTIAL DAMAGES
 * (INCLUDING, BUT NOT LIMITED TO, PROCUREMENT OF SUBSTITUTE GOODS OR
 * SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS INTERRUPTION)
 * HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY, WHETHER IN CONTRACT,
 * STRICT LIABILITY, OR TORT (INCLUDING NEGLIGENCE OR OTHERWISE) ARISING
 * IN ANY WAY OUT OF THE USE OF THIS SOFTWARE, EVEN IF ADVISED OF THE
 * POSSIBILITY OF SUCH DAMAGE.
 */

package ips

// HashState implements the mix and final steps of Bob Jenkins' lookup3
// hash. Options seed A, B and C with their configuration, mix in their
// kind name and return Final.
type HashState struct {
	A, B, C uint32
}

func rot(x uint32, k uint) uint32 {
	return (x << k) | (x >> (32 - k))
}

func (h *HashState) Mix() {
	a, b, c := h.A, h.B, h.C
	a -= c
	a ^= rot(c, 4)
	c += b
	b -= a
	b ^= rot(a, 6)
	a += c
	c -= b
	c ^= rot(b, 8)
	b += a
	a -= c
	a ^= rot(c, 16)
	c += b
	b -= a
	b ^= rot(a, 19)
	a += c
	c -= b
	c ^= rot(b, 4)
	b += a
	h.A, h.B, h.C = a, b, c
}

// Final scrambles the state and returns C.
func (h *HashState) Final() uint32 {
	a, b, c := h.A, h.B, h.C
	c ^= b
	c -= rot(b, 14)
	a ^= c
	a -= rot(c, 11)
	b ^= a
	b -= rot(a, 25)
	c ^= b
	c -= rot(b, 16)
	a ^= c
	a -= rot(c, 4)
	b ^= a
	b -= rot(a, 14)
	c ^= b
	c -= rot(b, 24)
	h.A, h.B, h.C = a, b, c
	return c
}

// MixStr adds s to the state four bytes (little endian) at a time,
// rotating through A, B and C and mixing after every third word.
func (h *HashState) MixStr(s string) {
	j := 0
	for i := 0; i < len(s); i += 4 {
		var tmp uint32
		k := len(s) - i
		if k > 4 {
			k = 4
		}
		for l := 0; l < k; l++ {
			tmp |= uint32(s[i+l]) << uint(l*8)
		}
		switch j {
		case 0:
			h.A += tmp
		case 1:
			h.B += tmp
		case 2:
			h.C += tmp
		}
		j++
		if j == 3 {
			h.Mix()
			j = 0
		}
	}
	if j != 0 {
		h.Mix()
	}
}

// HashOf is the usual option hash: three configuration words and the
// kind name.
func HashOf(name string, a, b, c uint32) uint32 {
	h := HashState{A: a, B: b, C: c}
	h.MixStr(name)
	return h.Final()
}
