// Package weather looks up current, historical, and forecast conditions
// for a city. Results are formatted text for the agent to weave into its
// answer; lookup failures come back as "Error: ..." text rather than
// hard errors, so a broken tool degrades the answer instead of the
// request.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

const (
	// Historical data is only available from this date onwards.
	minHistoryDate = "2010-01-01"

	// Forecasts reach at most this many days ahead.
	maxForecastDays = 14

	dateLayout = "2006-01-02"
)

// Config locates the upstream weather API.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		BaseURL: "https://api.weatherapi.com/v1",
		Timeout: 10 * time.Second,
	}
}

// LoadConfigFromEnv reads WARD_WEATHER_API_KEY and WARD_WEATHER_API_URL.
// A missing key is not fatal; lookups then return an error message.
func LoadConfigFromEnv() Config {
	cfg := DefaultConfig()
	if v := os.Getenv("WARD_WEATHER_API_URL"); v != "" {
		cfg.BaseURL = v
	}
	cfg.APIKey = os.Getenv("WARD_WEATHER_API_KEY")
	return cfg
}

type Client struct {
	log  *slog.Logger
	cfg  Config
	http *http.Client
	now  func() time.Time
}

func NewClient(log *slog.Logger, cfg Config) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		log:  log,
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		now:  time.Now,
	}
}

type apiLocation struct {
	Name    string `json:"name"`
	Country string `json:"country"`
}

type apiCondition struct {
	Text string `json:"text"`
}

type apiCurrent struct {
	TempC       float64      `json:"temp_c"`
	TempF       float64      `json:"temp_f"`
	Condition   apiCondition `json:"condition"`
	Humidity    int          `json:"humidity"`
	WindKph     float64      `json:"wind_kph"`
	WindDir     string       `json:"wind_dir"`
	FeelslikeC  float64      `json:"feelslike_c"`
}

type apiDay struct {
	MaxTempC      float64      `json:"maxtemp_c"`
	MaxTempF      float64      `json:"maxtemp_f"`
	MinTempC      float64      `json:"mintemp_c"`
	MinTempF      float64      `json:"mintemp_f"`
	AvgTempC      float64      `json:"avgtemp_c"`
	AvgTempF      float64      `json:"avgtemp_f"`
	Condition     apiCondition `json:"condition"`
	MaxWindKph    float64      `json:"maxwind_kph"`
	TotalPrecipMM float64      `json:"totalprecip_mm"`
	AvgHumidity   float64      `json:"avghumidity"`
	ChanceOfRain  int          `json:"daily_chance_of_rain"`
	ChanceOfSnow  int          `json:"daily_chance_of_snow"`
}

type apiForecastDay struct {
	Day apiDay `json:"day"`
}

type apiResponse struct {
	Location apiLocation `json:"location"`
	Current  apiCurrent  `json:"current"`
	Forecast struct {
		ForecastDay []apiForecastDay `json:"forecastday"`
	} `json:"forecast"`
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

type lookupKind int

const (
	kindCurrent lookupKind = iota
	kindHistorical
	kindForecast
)

// Lookup fetches weather for city. date is optional ("" means current);
// past dates return historical data, future dates a forecast.
func (c *Client) Lookup(ctx context.Context, city, date string) string {
	c.log.Info("weather.lookup", "city", city, "date", orCurrent(date))

	if c.cfg.APIKey == "" {
		c.log.Error("weather.lookup.no_api_key")
		return "Error: Weather API key not configured"
	}

	kind, endpoint, params, errMsg := c.plan(city, date)
	if errMsg != "" {
		return errMsg
	}

	u := c.cfg.BaseURL + "/" + endpoint + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		c.log.Error("weather.lookup.build_request.fail", "err", err)
		return fmt.Sprintf("Error: Could not connect to weather service for %s", city)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Error("weather.lookup.request.fail", "city", city, "err", err)
		return fmt.Sprintf("Error: Could not connect to weather service for %s", city)
	}
	defer func() { _ = resp.Body.Close() }()

	var data apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		c.log.Error("weather.lookup.decode.fail", "city", city, "err", err)
		return fmt.Sprintf("Error: Invalid response from weather service for %s", city)
	}

	if resp.StatusCode != http.StatusOK {
		msg := data.Error.Message
		if msg == "" {
			msg = "Unknown error"
		}
		c.log.Warn("weather.lookup.upstream_error", "city", city, "status", resp.StatusCode, "msg", msg)
		return fmt.Sprintf("Error: Could not fetch weather for %s. %s", city, msg)
	}

	switch kind {
	case kindCurrent:
		return formatCurrent(data.Location, data.Current)
	case kindHistorical:
		if len(data.Forecast.ForecastDay) == 0 {
			return fmt.Sprintf("Error: Invalid response from weather service for %s", city)
		}
		return formatHistorical(data.Location, data.Forecast.ForecastDay[0].Day, date)
	default:
		if len(data.Forecast.ForecastDay) == 0 {
			return fmt.Sprintf("Error: Invalid response from weather service for %s", city)
		}
		return formatForecast(data.Location, data.Forecast.ForecastDay[0].Day, date)
	}
}

// plan picks the endpoint and parameters from the requested date.
func (c *Client) plan(city, date string) (lookupKind, string, url.Values, string) {
	params := url.Values{}
	params.Set("key", c.cfg.APIKey)
	params.Set("q", city)

	if date == "" {
		params.Set("aqi", "no")
		return kindCurrent, "current.json", params, ""
	}

	target, err := time.Parse(dateLayout, date)
	if err != nil {
		return 0, "", nil, fmt.Sprintf("Error: Invalid date format '%s'. Please use YYYY-MM-DD format.", date)
	}

	today := c.now().UTC().Truncate(24 * time.Hour)
	daysDiff := int(target.Sub(today).Hours() / 24)

	switch {
	case daysDiff < 0:
		minDate, _ := time.Parse(dateLayout, minHistoryDate)
		if target.Before(minDate) {
			return 0, "", nil, "Error: Historical data only available from 2010-01-01 onwards."
		}
		params.Set("dt", date)
		return kindHistorical, "history.json", params, ""
	case daysDiff == 0:
		params.Set("aqi", "no")
		return kindCurrent, "current.json", params, ""
	case daysDiff <= maxForecastDays:
		params.Set("dt", date)
		params.Set("days", "1")
		return kindForecast, "forecast.json", params, ""
	default:
		return 0, "", nil, fmt.Sprintf("Error: Forecast only available up to %d days ahead. Requested: %d days.", maxForecastDays, daysDiff)
	}
}

func orCurrent(date string) string {
	if date == "" {
		return "current"
	}
	return date
}

func formatCurrent(loc apiLocation, cur apiCurrent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Current Weather in %s, %s:\n\n", loc.Name, loc.Country)
	fmt.Fprintf(&b, "Temperature: %g°C (%g°F)\n", cur.TempC, cur.TempF)
	fmt.Fprintf(&b, "Condition: %s\n", cur.Condition.Text)
	fmt.Fprintf(&b, "Humidity: %d%%\n", cur.Humidity)
	fmt.Fprintf(&b, "Wind: %g km/h %s\n", cur.WindKph, cur.WindDir)
	fmt.Fprintf(&b, "Feels like: %g°C\n", cur.FeelslikeC)
	return b.String()
}

func formatHistorical(loc apiLocation, day apiDay, date string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Historical Weather in %s, %s on %s:\n\n", loc.Name, loc.Country, date)
	fmt.Fprintf(&b, "Max Temperature: %g°C (%g°F)\n", day.MaxTempC, day.MaxTempF)
	fmt.Fprintf(&b, "Min Temperature: %g°C (%g°F)\n", day.MinTempC, day.MinTempF)
	fmt.Fprintf(&b, "Average Temperature: %g°C (%g°F)\n", day.AvgTempC, day.AvgTempF)
	fmt.Fprintf(&b, "Condition: %s\n", day.Condition.Text)
	fmt.Fprintf(&b, "Max Wind: %g km/h\n", day.MaxWindKph)
	fmt.Fprintf(&b, "Total Precipitation: %g mm\n", day.TotalPrecipMM)
	fmt.Fprintf(&b, "Average Humidity: %g%%\n", day.AvgHumidity)
	return b.String()
}

func formatForecast(loc apiLocation, day apiDay, date string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Weather Forecast for %s, %s on %s:\n\n", loc.Name, loc.Country, date)
	fmt.Fprintf(&b, "Max Temperature: %g°C (%g°F)\n", day.MaxTempC, day.MaxTempF)
	fmt.Fprintf(&b, "Min Temperature: %g°C (%g°F)\n", day.MinTempC, day.MinTempF)
	fmt.Fprintf(&b, "Average Temperature: %g°C (%g°F)\n", day.AvgTempC, day.AvgTempF)
	fmt.Fprintf(&b, "Condition: %s\n", day.Condition.Text)
	fmt.Fprintf(&b, "Chance of Rain: %d%%\n", day.ChanceOfRain)
	fmt.Fprintf(&b, "Chance of Snow: %d%%\n", day.ChanceOfSnow)
	fmt.Fprintf(&b, "Max Wind: %g km/h\n", day.MaxWindKph)
	fmt.Fprintf(&b, "Average Humidity: %g%%\n", day.AvgHumidity)
	return b.String()
}
