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

package innerqueue

// FIFO is a tail-drop queue bounded by packet count: once full, Enqueue
// rejects new arrivals rather than evicting old ones. It stands in for the
// ns-3 RedQueue behind the reference SFQ implementation; spec.md §4.3
// explicitly allows any AQM or tail-drop queue satisfying this contract.
type FIFO struct {
	packets    []Packet
	maxPackets int
	bytes      uint64
}

// NewFIFO returns an empty FIFO that drops once it holds maxPackets packets.
func NewFIFO(maxPackets int) *FIFO {
	return &FIFO{maxPackets: maxPackets}
}

func (q *FIFO) Enqueue(p Packet) bool {
	if len(q.packets) >= q.maxPackets {
		return false
	}
	q.packets = append(q.packets, p)
	q.bytes += uint64(p.Size())
	return true
}

func (q *FIFO) Dequeue() (Packet, bool) {
	if len(q.packets) == 0 {
		return nil, false
	}
	p := q.packets[0]
	q.packets = q.packets[1:]
	q.bytes -= uint64(p.Size())
	return p, true
}

func (q *FIFO) Peek() (Packet, bool) {
	if len(q.packets) == 0 {
		return nil, false
	}
	return q.packets[0], true
}

func (q *FIFO) Size() int { return len(q.packets) }

// Bytes returns the total size, in bytes, of currently queued packets.
func (q *FIFO) Bytes() uint64 { return q.bytes }
