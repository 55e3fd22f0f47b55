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

package packet

import "testing"

func TestNewIPv4RoundTrip(t *testing.T) {
	p := NewIPv4(0x0a000001, 0x0a000002, 6, 100)
	if p.Size() != 100 {
		t.Fatalf("Size() = %d, want 100", p.Size())
	}
	working := p.Clone().StripOuterHeader()
	hdr, ok := working.PeekIPv4()
	if !ok {
		t.Fatal("expected a parseable IPv4 header")
	}
	if hdr.Src != 0x0a000001 || hdr.Dst != 0x0a000002 || hdr.Proto != 6 {
		t.Fatalf("unexpected header: %+v", hdr)
	}
}

func TestNewIPv4EnforcesMinimumSize(t *testing.T) {
	p := NewIPv4(1, 2, 6, 1)
	if p.Size() != outerHeaderLen+minIPv4HeaderLen {
		t.Fatalf("Size() = %d, want %d", p.Size(), outerHeaderLen+minIPv4HeaderLen)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	p := NewIPv4(1, 2, 6, 64)
	clone := p.Clone()
	clone.StripOuterHeader()
	if p.Size() == clone.Size() {
		t.Fatal("expected stripping the clone to leave the original untouched")
	}
}

func TestPeekIPv4RejectsShortPacket(t *testing.T) {
	p := NewBytes([]byte{0xff, 0x03, 0x45})
	if _, ok := p.PeekIPv4(); ok {
		t.Fatal("expected a truncated header to fail parsing")
	}
}

func TestStripOuterHeaderOnShortPacket(t *testing.T) {
	p := NewBytes([]byte{0xff})
	p.StripOuterHeader()
	if p.Size() != 0 {
		t.Fatalf("Size() = %d, want 0", p.Size())
	}
}
