package handler

import (
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/avkulikov/weatherhub/internal/apperror"
	"github.com/avkulikov/weatherhub/internal/weather"
)

// dateLayout is the dd-mm-yyyy format the URL uses, e.g. 15-03-2022.
const dateLayout = "02-01-2006"

// WeatherHandler serves the weather pages. It is plain request/response glue
// around the weather collaborator — no state, no caching.
type WeatherHandler struct {
	weather *weather.Client
	logger  *slog.Logger
}

func NewWeatherHandler(client *weather.Client, logger *slog.Logger) *WeatherHandler {
	return &WeatherHandler{weather: client, logger: logger}
}

// HandleListHint explains how to use the 7-day forecast URL.
func (h *WeatherHandler) HandleListHint(w http.ResponseWriter, r *http.Request) {
	writeHTML(w, http.StatusOK,
		`<p><strong>Please, input a city name in the URL, for example:</strong></p>
<p>/list/<strong>minsk</strong></p>`)
}

// HandleWeekForecast serves GET /list/{city}: geocode the city, then render
// the next seven days.
func (h *WeatherHandler) HandleWeekForecast(w http.ResponseWriter, r *http.Request) {
	city := chi.URLParam(r, "city")

	loc, err := h.weather.Geocode(r.Context(), city)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	days, err := h.weather.DailyForecast(r.Context(), loc)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "<h1>Weather in %s</h1>\n<h2>for the next %d days</h2>\n",
		template.HTMLEscapeString(city), len(days))
	for i, d := range days {
		fmt.Fprintf(&b,
			"<p>day %d: temperature - %d, feels like %d, cloudiness - %d%%, wind speed - %gm/s</p>\n",
			i+1, d.TempC, d.FeelsLikeC, d.CloudsPct, d.WindSpeed)
	}

	writeHTML(w, http.StatusOK, b.String())
}

// HandleDateHint explains how to use the per-day URL.
func (h *WeatherHandler) HandleDateHint(w http.ResponseWriter, r *http.Request) {
	writeHTML(w, http.StatusOK,
		`<p><strong>Please, input a city name and a date in the URL, for example:</strong></p>
<p>/<strong>minsk/15-03-2022</strong></p>
<p>You can find information for the last 5 days only.</p>`)
}

// HandleDayWeather serves GET /{city}/{date}: the weather in a city on a
// specific past day.
func (h *WeatherHandler) HandleDayWeather(w http.ResponseWriter, r *http.Request) {
	city := chi.URLParam(r, "city")
	date := chi.URLParam(r, "date")

	day, err := time.Parse(dateLayout, date)
	if err != nil {
		writeError(w, h.logger,
			apperror.ValidationFailed("date", "date must look like 15-03-2022"))
		return
	}

	loc, err := h.weather.Geocode(r.Context(), city)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	d, err := h.weather.DayWeather(r.Context(), loc, day)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "<h1>Weather in %s</h1>\n<h2>%s</h2>\n",
		template.HTMLEscapeString(city), template.HTMLEscapeString(date))
	fmt.Fprintf(&b,
		"<p>temperature - %d, feels like %d, cloudiness - %d%%, wind speed - %gm/s</p>\n",
		d.TempC, d.FeelsLikeC, d.CloudsPct, d.WindSpeed)

	writeHTML(w, http.StatusOK, b.String())
}
