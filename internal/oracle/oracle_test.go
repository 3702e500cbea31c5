package oracle

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/atmx/settlement-engine/internal/contract"
)

func cityID(t *testing.T, name string) contract.CityID {
	t.Helper()
	id, err := contract.NewCityID(name)
	if err != nil {
		t.Fatalf("city id: %v", err)
	}
	return id
}

func TestStatic(t *testing.T) {
	s := NewStatic()
	london := cityID(t, "London")
	end := time.Date(2026, 7, 1, 15, 0, 0, 0, time.UTC)

	if _, ok, _ := s.Temperature(context.Background(), london, end); ok {
		t.Fatal("expected no reading before Set")
	}
	s.Set(london, end, 21500)
	v, ok, err := s.Temperature(context.Background(), london, end)
	if err != nil || !ok || v != 21500 {
		t.Errorf("expected 21500, got %d ok=%v err=%v", v, ok, err)
	}
	if _, ok, _ := s.Temperature(context.Background(), cityID(t, "Paris"), end); ok {
		t.Error("reading must be scoped to the city")
	}
}

// fakeOpenMeteo serves geocoding and archive endpoints.
type fakeOpenMeteo struct {
	geoHits     atomic.Int32
	archiveHits atomic.Int32
	failFirst   atomic.Int32 // number of archive requests answered with 500
	archiveBody string
}

func (f *fakeOpenMeteo) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/geo", func(w http.ResponseWriter, r *http.Request) {
		f.geoHits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("name") == "Atlantis" {
			w.Write([]byte(`{}`))
			return
		}
		w.Write([]byte(`{"results":[{"name":"London","latitude":51.5085,"longitude":-0.1257}]}`))
	})
	mux.HandleFunc("/archive", func(w http.ResponseWriter, r *http.Request) {
		f.archiveHits.Add(1)
		if f.failFirst.Load() > 0 {
			f.failFirst.Add(-1)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		q := r.URL.Query()
		if q.Get("hourly") != "temperature_2m" || q.Get("start_date") != "2026-07-01" {
			t.Errorf("unexpected archive query: %s", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, f.archiveBody)
	})
	return mux
}

func newAdapter(srv *httptest.Server, now time.Time) *OpenMeteo {
	return NewOpenMeteo(OpenMeteoConfig{
		GeocodeURL: srv.URL + "/geo",
		ArchiveURL: srv.URL + "/archive",
		Client:     srv.Client(),
		Backoff:    BackoffConfig{MaxRetries: 2, InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond},
		Now:        func() time.Time { return now },
	})
}

const archiveBody = `{"hourly":{"time":["2026-07-01T13:00","2026-07-01T14:00","2026-07-01T15:00"],"temperature_2m":[20.9,21.5,null]}}`

func TestOpenMeteo_Reading(t *testing.T) {
	f := &fakeOpenMeteo{archiveBody: archiveBody}
	srv := httptest.NewServer(f.handler(t))
	defer srv.Close()

	o := newAdapter(srv, time.Date(2026, 7, 2, 0, 0, 0, 0, time.UTC))
	end := time.Date(2026, 7, 1, 14, 30, 0, 0, time.UTC)

	v, ok, err := o.Temperature(context.Background(), cityID(t, "London"), end)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok || v != 21500 {
		t.Errorf("expected 21500, got %d ok=%v", v, ok)
	}

	// Coordinates are cached after the first lookup.
	if _, _, err := o.Temperature(context.Background(), cityID(t, "London"), end); err != nil {
		t.Fatalf("second call: %v", err)
	}
	if f.geoHits.Load() != 1 {
		t.Errorf("expected 1 geocoding request, got %d", f.geoHits.Load())
	}
}

func TestOpenMeteo_NullReadingUnavailable(t *testing.T) {
	f := &fakeOpenMeteo{archiveBody: archiveBody}
	srv := httptest.NewServer(f.handler(t))
	defer srv.Close()

	o := newAdapter(srv, time.Date(2026, 7, 2, 0, 0, 0, 0, time.UTC))
	_, ok, err := o.Temperature(context.Background(), cityID(t, "London"), time.Date(2026, 7, 1, 15, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("null reading must be reported as unavailable")
	}
}

func TestOpenMeteo_HourNotComplete(t *testing.T) {
	f := &fakeOpenMeteo{archiveBody: archiveBody}
	srv := httptest.NewServer(f.handler(t))
	defer srv.Close()

	end := time.Date(2026, 7, 1, 14, 30, 0, 0, time.UTC)
	o := newAdapter(srv, end.Add(10*time.Minute))

	_, ok, err := o.Temperature(context.Background(), cityID(t, "London"), end)
	if err != nil || ok {
		t.Errorf("expected unavailable without error, got ok=%v err=%v", ok, err)
	}
	if f.geoHits.Load() != 0 || f.archiveHits.Load() != 0 {
		t.Error("no upstream request should be made before the hour completes")
	}
}

func TestOpenMeteo_UnknownCity(t *testing.T) {
	f := &fakeOpenMeteo{archiveBody: archiveBody}
	srv := httptest.NewServer(f.handler(t))
	defer srv.Close()

	o := newAdapter(srv, time.Date(2026, 7, 2, 0, 0, 0, 0, time.UTC))
	_, _, err := o.Temperature(context.Background(), cityID(t, "Atlantis"), time.Date(2026, 7, 1, 14, 0, 0, 0, time.UTC))
	if !errors.Is(err, ErrUnknownCity) {
		t.Errorf("expected ErrUnknownCity, got %v", err)
	}
}

func TestOpenMeteo_RetriesServerErrors(t *testing.T) {
	f := &fakeOpenMeteo{archiveBody: archiveBody}
	f.failFirst.Store(2)
	srv := httptest.NewServer(f.handler(t))
	defer srv.Close()

	o := newAdapter(srv, time.Date(2026, 7, 2, 0, 0, 0, 0, time.UTC))
	v, ok, err := o.Temperature(context.Background(), cityID(t, "London"), time.Date(2026, 7, 1, 13, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("unexpected error after retries: %v", err)
	}
	if !ok || v != 20900 {
		t.Errorf("expected 20900, got %d ok=%v", v, ok)
	}
	if f.archiveHits.Load() != 3 {
		t.Errorf("expected 3 archive attempts, got %d", f.archiveHits.Load())
	}
}

func TestOpenMeteo_GivesUpAfterRetries(t *testing.T) {
	f := &fakeOpenMeteo{archiveBody: archiveBody}
	f.failFirst.Store(10)
	srv := httptest.NewServer(f.handler(t))
	defer srv.Close()

	o := newAdapter(srv, time.Date(2026, 7, 2, 0, 0, 0, 0, time.UTC))
	_, ok, err := o.Temperature(context.Background(), cityID(t, "London"), time.Date(2026, 7, 1, 13, 0, 0, 0, time.UTC))
	if err == nil || ok {
		t.Fatalf("expected error after exhausting retries, got ok=%v err=%v", ok, err)
	}
	if !errors.Is(err, errServerError) {
		t.Errorf("expected errServerError, got %v", err)
	}
}
