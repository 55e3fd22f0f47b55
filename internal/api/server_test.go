package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

type fakeInspector struct {
	discipline string
	backlog    uint64
	buckets    []BucketStat
}

func (f fakeInspector) Discipline() string        { return f.discipline }
func (f fakeInspector) Backlog() uint64           { return f.backlog }
func (f fakeInspector) BucketStats() []BucketStat { return f.buckets }

func TestHandleStatus(t *testing.T) {
	s := NewServer(
		fakeInspector{discipline: "sfq", backlog: 100},
		fakeInspector{discipline: "fqcodel", backlog: 200},
	)
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var got []statusEntry
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
}

func TestHandleBucketsFiltersByDiscipline(t *testing.T) {
	s := NewServer(
		fakeInspector{discipline: "sfq", buckets: []BucketStat{{Bucket: 1, BacklogBytes: 10, Active: true}}},
		fakeInspector{discipline: "fqcodel", buckets: []BucketStat{{Bucket: 2, BacklogBytes: 20}}},
	)
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)

	req := httptest.NewRequest(http.MethodGet, "/buckets?discipline=sfq", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	var got []bucketsEntry
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(got) != 1 || got[0].Discipline != "sfq" {
		t.Fatalf("expected only the sfq entry, got %+v", got)
	}
}

func TestHandleBucketsReturnsAllWithoutFilter(t *testing.T) {
	s := NewServer(
		fakeInspector{discipline: "sfq"},
		fakeInspector{discipline: "fqcodel"},
	)
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)

	req := httptest.NewRequest(http.MethodGet, "/buckets", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	var got []bucketsEntry
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
}
