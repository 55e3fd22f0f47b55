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

// Package api implements a small read-only HTTP introspection server for a
// running qdisc: current backlog and per-bucket stats, for operators and
// the demo binary's own status page. There is no write surface — packets
// enter a scheduler through Enqueue calls made directly by the simulator's
// link layer, never through HTTP.
package api

import (
	"encoding/json"
	"net/http"
	"time"
)

// BucketStat is the wire shape for one bucket's current reading.
type BucketStat struct {
	Bucket         uint32 `json:"bucket"`
	BacklogBytes   uint64 `json:"backlog_bytes"`
	DroppedPackets uint64 `json:"dropped_packets,omitempty"`
	Active         bool   `json:"active"`
}

// Inspector is implemented by a scheduler wrapper capable of reporting its
// current state for a given discipline name.
type Inspector interface {
	Discipline() string
	Backlog() uint64
	BucketStats() []BucketStat
}

// Server serves read-only introspection endpoints over one or more running
// schedulers.
type Server struct {
	inspectors []Inspector
}

// NewServer creates a Server over the given inspectors.
func NewServer(inspectors ...Inspector) *Server {
	return &Server{inspectors: inspectors}
}

// RegisterRoutes sets up the HTTP routes for the server on the given
// ServeMux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/buckets", s.handleBuckets)
}

type statusEntry struct {
	Discipline string `json:"discipline"`
	Backlog    uint64 `json:"backlog_bytes"`
}

// handleStatus returns a one-line summary per discipline: its name and
// total backlog.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	out := make([]statusEntry, 0, len(s.inspectors))
	for _, ins := range s.inspectors {
		out = append(out, statusEntry{Discipline: ins.Discipline(), Backlog: ins.Backlog()})
	}
	writeJSON(w, out)
}

type bucketsEntry struct {
	Discipline string       `json:"discipline"`
	Buckets    []BucketStat `json:"buckets"`
}

// handleBuckets returns the full per-bucket breakdown for every discipline,
// or for just the one named by the "discipline" query parameter.
func (s *Server) handleBuckets(w http.ResponseWriter, r *http.Request) {
	want := r.URL.Query().Get("discipline")
	out := make([]bucketsEntry, 0, len(s.inspectors))
	for _, ins := range s.inspectors {
		if want != "" && ins.Discipline() != want {
			continue
		}
		out = append(out, bucketsEntry{Discipline: ins.Discipline(), Buckets: ins.BucketStats()})
	}
	writeJSON(w, out)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// ListenAndServe starts the HTTP server on the specified address.
func (s *Server) ListenAndServe(addr string) error {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return httpServer.ListenAndServe()
}
