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

// Package flowkey extracts the IP-level flow identity the schedulers hash
// packets on.
package flowkey

import "fqsim/pkg/qdisc/packet"

// Key identifies a flow by its IP 3-tuple. Equality is by value.
type Key struct {
	Src   uint32
	Dst   uint32
	Proto uint8
}

// Sentinel is the key callers should hash unparseable packets against. It is
// a distinct value from any Key Extract can return for a well-formed packet
// (Extract's ok result, not value equality with Sentinel, is what tells the
// two apart): Proto 0xff is not a valid IP protocol number, so Sentinel can
// never collide with a genuine all-zero 3-tuple (src/dst 0.0.0.0, proto 0).
// It always hashes to bucket 0 (see pkg/qdisc/hash).
var Sentinel = Key{Proto: 0xff}

// Extract strips the outer link header from a clone of p and reads an IPv4
// header off the front. It never observes or mutates the caller's packet:
// all work happens on p.Clone(). ok is false when the outer header could not
// be parsed as IPv4, in which case the returned Key is the zero Key and
// callers should use Sentinel rather than treat it as a genuine flow.
func Extract(p packet.Packet) (key Key, ok bool) {
	working := p.Clone().StripOuterHeader()
	hdr, ok := working.PeekIPv4()
	if !ok {
		return Key{}, false
	}
	return Key{Src: hdr.Src, Dst: hdr.Dst, Proto: hdr.Proto}, true
}
