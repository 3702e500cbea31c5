package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"

	"github.com/atmx/settlement-engine/internal/contract"
)

const (
	DefaultGeocodeURL = "https://geocoding-api.open-meteo.com/v1/search"
	DefaultArchiveURL = "https://archive-api.open-meteo.com/v1/archive"

	hourLayout = "2006-01-02T15:04"
	dayLayout  = "2006-01-02"
)

// OpenMeteoConfig configures the Open-Meteo adapter. Zero values fall back
// to the public endpoints and a 15 s client.
type OpenMeteoConfig struct {
	GeocodeURL string
	ArchiveURL string
	Client     *http.Client
	Backoff    BackoffConfig
	Now        func() time.Time
}

// OpenMeteo reads the hourly 2 m temperature for the hour containing the
// window end from the Open-Meteo archive. City names are resolved to
// coordinates once through the geocoding API and cached.
type OpenMeteo struct {
	geocodeURL string
	archiveURL string
	client     *http.Client
	backoff    BackoffConfig
	circuit    *gobreaker.CircuitBreaker
	now        func() time.Time

	mu     sync.RWMutex
	coords map[contract.CityID]coordinates
}

type coordinates struct {
	lat float64
	lon float64
}

// NewOpenMeteo creates an Open-Meteo oracle adapter.
func NewOpenMeteo(cfg OpenMeteoConfig) *OpenMeteo {
	if cfg.GeocodeURL == "" {
		cfg.GeocodeURL = DefaultGeocodeURL
	}
	if cfg.ArchiveURL == "" {
		cfg.ArchiveURL = DefaultArchiveURL
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 15 * time.Second}
	}
	if cfg.Backoff.InitialInterval <= 0 {
		cfg.Backoff = BackoffConfig{
			MaxRetries:      3,
			InitialInterval: 500 * time.Millisecond,
			MaxInterval:     5 * time.Second,
		}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "openmeteo",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
	})

	return &OpenMeteo{
		geocodeURL: cfg.GeocodeURL,
		archiveURL: cfg.ArchiveURL,
		client:     cfg.Client,
		backoff:    cfg.Backoff,
		circuit:    cb,
		now:        cfg.Now,
		coords:     make(map[contract.CityID]coordinates),
	}
}

// Temperature implements Adapter.
func (o *OpenMeteo) Temperature(ctx context.Context, city contract.CityID, windowEnd time.Time) (int64, bool, error) {
	hour := windowEnd.UTC().Truncate(time.Hour)
	if o.now().UTC().Before(hour.Add(time.Hour)) {
		// The hour has not completed yet.
		return 0, false, nil
	}

	c, err := o.locate(ctx, city)
	if err != nil {
		return 0, false, err
	}

	build := func(ctx context.Context) (*http.Request, error) {
		values := url.Values{}
		values.Set("latitude", strconv.FormatFloat(c.lat, 'f', 4, 64))
		values.Set("longitude", strconv.FormatFloat(c.lon, 'f', 4, 64))
		values.Set("start_date", hour.Format(dayLayout))
		values.Set("end_date", hour.Format(dayLayout))
		values.Set("hourly", "temperature_2m")
		values.Set("timezone", "UTC")
		return http.NewRequestWithContext(ctx, http.MethodGet, o.archiveURL+"?"+values.Encode(), nil)
	}

	resp, err := doRequest(ctx, o.client, o.backoff, o.circuit, build)
	if err != nil {
		return 0, false, err
	}
	defer resp.Body.Close()

	var payload struct {
		Hourly struct {
			Time          []string   `json:"time"`
			Temperature2m []*float64 `json:"temperature_2m"`
		} `json:"hourly"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, false, fmt.Errorf("oracle: decode archive response: %w", err)
	}

	want := hour.Format(hourLayout)
	for i, ts := range payload.Hourly.Time {
		if ts != want || i >= len(payload.Hourly.Temperature2m) {
			continue
		}
		v := payload.Hourly.Temperature2m[i]
		if v == nil {
			return 0, false, nil
		}
		milliC := decimal.NewFromFloat(*v).Shift(3).Round(0).IntPart()
		slog.Debug("oracle reading", "city", city.Name(), "hour", want, "milli_c", milliC)
		return milliC, true, nil
	}
	return 0, false, nil
}

func (o *OpenMeteo) locate(ctx context.Context, city contract.CityID) (coordinates, error) {
	o.mu.RLock()
	c, ok := o.coords[city]
	o.mu.RUnlock()
	if ok {
		return c, nil
	}

	build := func(ctx context.Context) (*http.Request, error) {
		values := url.Values{}
		values.Set("name", city.Name())
		values.Set("count", "1")
		values.Set("format", "json")
		return http.NewRequestWithContext(ctx, http.MethodGet, o.geocodeURL+"?"+values.Encode(), nil)
	}

	resp, err := doRequest(ctx, o.client, o.backoff, o.circuit, build)
	if err != nil {
		return coordinates{}, err
	}
	defer resp.Body.Close()

	var payload struct {
		Results []struct {
			Latitude  float64 `json:"latitude"`
			Longitude float64 `json:"longitude"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return coordinates{}, fmt.Errorf("oracle: decode geocoding response: %w", err)
	}
	if len(payload.Results) == 0 {
		return coordinates{}, fmt.Errorf("%w: %s", ErrUnknownCity, city.Name())
	}

	c = coordinates{lat: payload.Results[0].Latitude, lon: payload.Results[0].Longitude}
	o.mu.Lock()
	o.coords[city] = c
	o.mu.Unlock()
	return c, nil
}
