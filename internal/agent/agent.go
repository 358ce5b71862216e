package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
)

// Event is one unit of agent output, shaped for the event stream.
type Event struct {
	Event string `json:"event"`
	Data  string `json:"data"`
}

// Model is the completion backend. *OllamaClient is the production
// implementation; tests substitute a scripted one.
type Model interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Stream(ctx context.Context, prompt string, emit func(chunk string) error) error
}

// WeatherTool resolves a city (and optional YYYY-MM-DD date) to a
// human-readable weather report. Failures come back as text so the
// model can relay them.
type WeatherTool interface {
	Lookup(ctx context.Context, city, date string) string
}

const classifierPrompt = `Analyze the following user query and determine if it requires the weather tool.

Respond with ONLY "YES" if the query is asking about:
- Weather conditions in a specific location
- Temperature, humidity, wind, or climate in a city
- Current or forecast weather for a location

Respond with ONLY "NO" if the query is:
- A math question
- General knowledge question
- Any non-weather related query

User query: %s

Answer (YES or NO):`

const directPrompt = `You are a helpful AI assistant. Answer the user's question directly and concisely.

User question: %s

Your answer:`

const extractPrompt = `Extract the city and date from the following weather question.

Respond with ONLY a JSON object of the form {"city": "<city name>", "date": "<YYYY-MM-DD or empty string>"}.
Leave "date" empty unless the question names a specific day.

Question: %s

JSON:`

const answerPrompt = `You are a helpful AI assistant with access to weather tools.

A weather lookup for the user's question returned:

%s

Using that report, answer the user's question. Remember to provide accurate, helpful information.

User question: %s

Your answer:`

// Service routes a query either through the weather tool or straight
// to the model, and streams the answer as message events.
type Service struct {
	log     *slog.Logger
	cfg     Config
	model   Model
	weather WeatherTool
}

func NewService(log *slog.Logger, cfg Config, model Model, weather WeatherTool) *Service {
	return &Service{log: log, cfg: cfg, model: model, weather: weather}
}

// needsWeatherTool asks the model whether the query is about weather.
// On classifier failure it falls back to a direct answer.
func (s *Service) needsWeatherTool(ctx context.Context, query string) bool {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ClassifyTimeout)
	defer cancel()

	out, err := s.model.Generate(ctx, fmt.Sprintf(classifierPrompt, query))
	if err != nil {
		s.log.Warn("agent.classify.fail", "error", err)
		return false
	}
	return strings.Contains(strings.ToLower(strings.TrimSpace(out)), "yes")
}

type extraction struct {
	City string `json:"city"`
	Date string `json:"date"`
}

// extractLocation pulls the city and optional date out of the query.
// If the model returns anything unparseable the raw query stands in
// for the city; the weather API is tolerant of free-form names.
func (s *Service) extractLocation(ctx context.Context, query string) extraction {
	out, err := s.model.Generate(ctx, fmt.Sprintf(extractPrompt, query))
	if err != nil {
		s.log.Warn("agent.extract.fail", "error", err)
		return extraction{City: query}
	}

	out = strings.TrimSpace(out)
	if start := strings.Index(out, "{"); start >= 0 {
		if end := strings.LastIndex(out, "}"); end > start {
			out = out[start : end+1]
		}
	}

	var ex extraction
	if err := json.Unmarshal([]byte(out), &ex); err != nil || strings.TrimSpace(ex.City) == "" {
		return extraction{City: query}
	}
	ex.City = strings.TrimSpace(ex.City)
	ex.Date = strings.TrimSpace(ex.Date)
	return ex
}

// Respond streams the answer to query as message events. It does not
// emit a terminal event; the transport owns stream framing.
func (s *Service) Respond(ctx context.Context, query string, emit func(Event) error) error {
	emitChunk := func(chunk string) error {
		return emit(Event{Event: "message", Data: chunk})
	}

	if !s.needsWeatherTool(ctx, query) {
		return s.model.Stream(ctx, fmt.Sprintf(directPrompt, query), emitChunk)
	}

	ex := s.extractLocation(ctx, query)
	s.log.Info("agent.tool.weather", "city", ex.City, "date", ex.Date)
	report := s.weather.Lookup(ctx, ex.City, ex.Date)

	return s.model.Stream(ctx, fmt.Sprintf(answerPrompt, report, query), emitChunk)
}
