// Package weather is the geocoding + weather collaborator: given a city name
// it resolves coordinates via Nominatim, then queries the OpenWeather onecall
// API for a 7-day forecast or a single historical day.
//
// This layer is deliberately dumb — no caching, no retries, no state. Every
// page load pays for its own upstream round-trips, exactly like the app it
// serves.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/doyensec/safeurl"

	"github.com/avkulikov/weatherhub/internal/apperror"
	"github.com/avkulikov/weatherhub/internal/metrics"
)

const (
	defaultGeocodeURL  = "https://nominatim.openstreetmap.org/search"
	defaultForecastURL = "https://api.openweathermap.org/data/2.5/onecall"
	defaultHistoryURL  = "https://api.openweathermap.org/data/2.5/onecall/timemachine"
)

// Config holds the client configuration. The URL fields exist so tests can
// point the client at an httptest server; production leaves them empty.
type Config struct {
	APIKey    string // OpenWeather API key
	UserAgent string // identifies us to Nominatim, which requires a UA
	Timeout   time.Duration

	GeocodeURL  string
	ForecastURL string
	HistoryURL  string

	// HTTPClient overrides the default SSRF-guarded client. Tests need this
	// because the guarded client refuses loopback addresses — which is
	// exactly what we want in production, where the URLs these requests hit
	// are assembled from user-supplied city names.
	HTTPClient *http.Client
}

// Location is a geocoded city.
type Location struct {
	Lat float64
	Lon float64
}

// Day is one day of weather, converted for display: OpenWeather reports
// Kelvin, we show rounded Celsius.
type Day struct {
	TempC      int
	FeelsLikeC int
	CloudsPct  int
	WindSpeed  float64 // m/s
}

// Client calls the geocoder and the weather API.
type Client struct {
	cfg       Config
	http      *http.Client
	collector *metrics.Collector
}

// New creates a weather Client. The outbound HTTP client is SSRF-guarded:
// requests resolving to private, loopback, link-local, or metadata addresses
// are blocked at the dialer, after DNS resolution.
func New(cfg Config, collector *metrics.Collector) *Client {
	if cfg.GeocodeURL == "" {
		cfg.GeocodeURL = defaultGeocodeURL
	}
	if cfg.ForecastURL == "" {
		cfg.ForecastURL = defaultForecastURL
	}
	if cfg.HistoryURL == "" {
		cfg.HistoryURL = defaultHistoryURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		guarded := safeurl.GetConfigBuilder().
			SetTimeout(cfg.Timeout).
			SetAllowedSchemes("http", "https").
			SetAllowedPorts(80, 443).
			Build()
		httpClient = safeurl.Client(guarded).Client
	}

	return &Client{cfg: cfg, http: httpClient, collector: collector}
}

// nominatimResult is one entry of Nominatim's search response. Coordinates
// arrive as strings, not numbers.
type nominatimResult struct {
	Lat string `json:"lat"`
	Lon string `json:"lon"`
}

// Geocode resolves a city name to coordinates. An unknown city is a
// not-found, not an upstream failure — the geocoder answered, the answer is
// just empty.
func (c *Client) Geocode(ctx context.Context, city string) (Location, error) {
	loc, err := c.geocode(ctx, city)
	c.collector.RecordWeatherRequest("geocode", err)
	return loc, err
}

func (c *Client) geocode(ctx context.Context, city string) (Location, error) {
	q := url.Values{
		"q":      {city},
		"format": {"json"},
		"limit":  {"1"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.GeocodeURL+"?"+q.Encode(), nil)
	if err != nil {
		return Location{}, fmt.Errorf("weather: building geocode request: %w", err)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return Location{}, apperror.Upstream("geocoding", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Location{}, apperror.Upstream("geocoding",
			fmt.Errorf("status %d from geocoder", resp.StatusCode))
	}

	var results []nominatimResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return Location{}, apperror.Upstream("geocoding",
			fmt.Errorf("decoding geocoder response: %w", err))
	}

	if len(results) == 0 {
		return Location{}, apperror.NotFound("city", city)
	}

	lat, err := strconv.ParseFloat(results[0].Lat, 64)
	if err != nil {
		return Location{}, apperror.Upstream("geocoding",
			fmt.Errorf("parsing latitude %q: %w", results[0].Lat, err))
	}
	lon, err := strconv.ParseFloat(results[0].Lon, 64)
	if err != nil {
		return Location{}, apperror.Upstream("geocoding",
			fmt.Errorf("parsing longitude %q: %w", results[0].Lon, err))
	}

	return Location{Lat: lat, Lon: lon}, nil
}

// onecall daily entry: temp and feels_like are nested per-time-of-day.
type dailyEntry struct {
	Temp struct {
		Day float64 `json:"day"`
	} `json:"temp"`
	FeelsLike struct {
		Day float64 `json:"day"`
	} `json:"feels_like"`
	Clouds    int     `json:"clouds"`
	WindSpeed float64 `json:"wind_speed"`
}

// DailyForecast returns up to seven days of forecast for a location.
func (c *Client) DailyForecast(ctx context.Context, loc Location) ([]Day, error) {
	days, err := c.dailyForecast(ctx, loc)
	c.collector.RecordWeatherRequest("forecast", err)
	return days, err
}

func (c *Client) dailyForecast(ctx context.Context, loc Location) ([]Day, error) {
	var payload struct {
		Daily []dailyEntry `json:"daily"`
	}
	if err := c.getJSON(ctx, c.cfg.ForecastURL, url.Values{
		"lat":   {formatCoord(loc.Lat)},
		"lon":   {formatCoord(loc.Lon)},
		"appid": {c.cfg.APIKey},
	}, &payload); err != nil {
		return nil, err
	}

	if len(payload.Daily) == 0 {
		return nil, apperror.Upstream("weather fetch",
			fmt.Errorf("forecast response has no daily data"))
	}

	limit := len(payload.Daily)
	if limit > 7 {
		limit = 7
	}

	days := make([]Day, 0, limit)
	for _, d := range payload.Daily[:limit] {
		days = append(days, Day{
			TempC:      kelvinToC(d.Temp.Day),
			FeelsLikeC: kelvinToC(d.FeelsLike.Day),
			CloudsPct:  d.Clouds,
			WindSpeed:  d.WindSpeed,
		})
	}
	return days, nil
}

// DayWeather returns the weather for a specific past day (the upstream keeps
// roughly the last five days).
func (c *Client) DayWeather(ctx context.Context, loc Location, day time.Time) (Day, error) {
	d, err := c.dayWeather(ctx, loc, day)
	c.collector.RecordWeatherRequest("history", err)
	return d, err
}

func (c *Client) dayWeather(ctx context.Context, loc Location, day time.Time) (Day, error) {
	var payload struct {
		Current struct {
			Temp      float64 `json:"temp"`
			FeelsLike float64 `json:"feels_like"`
			Clouds    int     `json:"clouds"`
			WindSpeed float64 `json:"wind_speed"`
		} `json:"current"`
	}
	if err := c.getJSON(ctx, c.cfg.HistoryURL, url.Values{
		"lat":   {formatCoord(loc.Lat)},
		"lon":   {formatCoord(loc.Lon)},
		"dt":    {strconv.FormatInt(day.Unix(), 10)},
		"appid": {c.cfg.APIKey},
	}, &payload); err != nil {
		return Day{}, err
	}

	return Day{
		TempC:      kelvinToC(payload.Current.Temp),
		FeelsLikeC: kelvinToC(payload.Current.FeelsLike),
		CloudsPct:  payload.Current.Clouds,
		WindSpeed:  payload.Current.WindSpeed,
	}, nil
}

// getJSON performs a GET against the weather API and decodes the body.
func (c *Client) getJSON(ctx context.Context, baseURL string, q url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("weather: building request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return apperror.Upstream("weather fetch", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apperror.Upstream("weather fetch",
			fmt.Errorf("status %d from weather API", resp.StatusCode))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperror.Upstream("weather fetch",
			fmt.Errorf("decoding weather response: %w", err))
	}
	return nil
}

// kelvinToC converts Kelvin to rounded Celsius, matching how the pages
// display temperatures.
func kelvinToC(k float64) int {
	return int(math.Round(k - 273.15))
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
