// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package packet defines the external packet contract the qdisc core depends
// on, plus a concrete byte-backed implementation used by tests and the demo
// binary. Production callers (the simulator's link layer) are expected to
// supply their own implementation of Packet; the core never assumes bytes.
package packet

// IPv4Header is the subset of an IPv4 header the flow hasher needs.
type IPv4Header struct {
	Src   uint32
	Dst   uint32
	Proto uint8
}

// Packet is the minimal contract the qdisc core requires of a packet handle.
// Implementations are owned by the caller; the core neither mutates nor
// retains a copy beyond the call in which it was passed.
type Packet interface {
	// Size returns the packet's length in bytes, including any outer framing.
	Size() int
	// Clone returns an independent copy safe to mutate (e.g. to strip a
	// header) without affecting the original.
	Clone() Packet
	// StripOuterHeader removes the outermost link-layer framing and returns
	// the result. Implementations may mutate and return the receiver.
	StripOuterHeader() Packet
	// PeekIPv4 attempts to read an IPv4 header from the front of the packet
	// without consuming it. ok is false if the packet is too short or the
	// header is not IPv4.
	PeekIPv4() (hdr IPv4Header, ok bool)
}

// outerHeaderLen is the length, in bytes, of the point-to-point framing the
// extractor strips before looking for an IPv4 header. This mirrors the
// ns-3 PppHeader used by the reference sfq-queue.cc/fq_codel-queue.cc
// (address + control byte pair, RFC 1662 §3).
const outerHeaderLen = 2

// minIPv4HeaderLen is the minimum IPv4 header length (no options).
const minIPv4HeaderLen = 20

// Bytes is a concrete, slice-backed Packet used by tests, benchmarks, and the
// demo binary's synthetic traffic generator. raw holds the full wire image:
// outerHeaderLen bytes of link framing followed by an IPv4 header (and
// whatever payload accompanies it, which the qdisc never inspects).
type Bytes struct {
	raw []byte
}

// NewBytes wraps an already-framed wire image (outer header + IPv4 header +
// payload) as a Packet.
func NewBytes(raw []byte) *Bytes {
	cp := make([]byte, len(raw))
	copy(cp, raw)
	return &Bytes{raw: cp}
}

// NewIPv4 builds a framed packet of the given total size carrying the given
// 3-tuple. size must be at least outerHeaderLen+minIPv4HeaderLen; the
// remainder is zero-filled payload.
func NewIPv4(src, dst uint32, proto uint8, size int) *Bytes {
	if size < outerHeaderLen+minIPv4HeaderLen {
		size = outerHeaderLen + minIPv4HeaderLen
	}
	raw := make([]byte, size)
	raw[0], raw[1] = 0xff, 0x03 // PPP address/control, unused by the parser
	hdr := raw[outerHeaderLen:]
	hdr[0] = 0x45 // version 4, IHL 5
	hdr[9] = proto
	putUint32(hdr[12:16], src)
	putUint32(hdr[16:20], dst)
	return &Bytes{raw: raw}
}

func putUint32(b []byte, v uint32) {
	b[0] = byte(v >> 24)
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
}

func getUint32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

func (p *Bytes) Size() int { return len(p.raw) }

func (p *Bytes) Clone() Packet {
	cp := make([]byte, len(p.raw))
	copy(cp, p.raw)
	return &Bytes{raw: cp}
}

func (p *Bytes) StripOuterHeader() Packet {
	if len(p.raw) < outerHeaderLen {
		p.raw = p.raw[:0]
		return p
	}
	p.raw = p.raw[outerHeaderLen:]
	return p
}

func (p *Bytes) PeekIPv4() (IPv4Header, bool) {
	if len(p.raw) < minIPv4HeaderLen {
		return IPv4Header{}, false
	}
	versionIHL := p.raw[0]
	if versionIHL>>4 != 4 {
		return IPv4Header{}, false
	}
	return IPv4Header{
		Src:   getUint32(p.raw[12:16]),
		Dst:   getUint32(p.raw[16:20]),
		Proto: p.raw[9],
	}, true
}
