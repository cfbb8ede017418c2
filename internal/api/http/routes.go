package httpapi

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/i474232898/wind-harvest/internal/observability"
	"github.com/i474232898/wind-harvest/internal/store"
	"github.com/i474232898/wind-harvest/internal/weather"
)

var validate = validator.New()

// Backend is the read side the API serves from.
type Backend interface {
	ListStations(ctx context.Context, types []weather.ProviderType) ([]weather.Station, error)
	ListOutputs(ctx context.Context, from, to time.Time) ([]weather.Output, error)
	FindAPIKey(ctx context.Context, key string) (weather.APIKey, error)
}

// Meter counts calls per key and calendar month.
type Meter interface {
	Increment(ctx context.Context, key, month string) (int64, error)
}

// Deps bundles what the routes need.
type Deps struct {
	Backend Backend
	Meter   Meter
	Clock   clockwork.Clock
	Metrics *observability.Metrics
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, deps Deps) {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "wind-harvest",
		})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	v1 := app.Group("/v1", countRequests(deps.Metrics), requireKey(deps))

	v1.Get("/stations/geojson", func(c *fiber.Ctx) error {
		stations, err := deps.Backend.ListStations(c.UserContext(), nil)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "failed to load stations")
		}
		return c.JSON(toFeatureCollection(stations))
	})

	v1.Get("/outputs", func(c *fiber.Ctx) error {
		var req outputsQuery
		if err := req.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		outputs, err := deps.Backend.ListOutputs(c.UserContext(), req.From, req.To)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "failed to load outputs")
		}
		resp := make([]outputResponse, 0, len(outputs))
		for _, o := range outputs {
			resp = append(resp, outputResponse{Time: o.Time.Unix(), URL: o.URL})
		}
		return c.JSON(resp)
	})
}

// requireKey authorizes the request's API key and meters it against the
// key's monthly limit.
func requireKey(deps Deps) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := strings.TrimSpace(c.Query("key"))
		if key == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing API key")
		}

		apiKey, err := deps.Backend.FindAPIKey(c.UserContext(), key)
		if errors.Is(err, store.ErrNotFound) {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid API key")
		}
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "failed to authorize")
		}

		month := deps.Clock.Now().UTC().Format("2006-01")
		used, err := deps.Meter.Increment(c.UserContext(), apiKey.Key, month)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "failed to meter request")
		}
		if apiKey.MonthlyLimit > 0 && used > apiKey.MonthlyLimit {
			return fiber.NewError(fiber.StatusForbidden,
				fmt.Sprintf("monthly limit of %d requests exceeded", apiKey.MonthlyLimit))
		}
		return c.Next()
	}
}

func countRequests(m *observability.Metrics) fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()
		if m == nil {
			return err
		}
		status := c.Response().StatusCode()
		var fe *fiber.Error
		if errors.As(err, &fe) {
			status = fe.Code
		}
		m.APIRequests.WithLabelValues(c.Route().Path, strconv.Itoa(status)).Inc()
		return err
	}
}

type outputResponse struct {
	Time int64  `json:"time"`
	URL  string `json:"url"`
}

// outputsQuery holds query parameters for the outputs endpoint.
type outputsQuery struct {
	From time.Time
	To   time.Time `validate:"omitempty,gtefield=From"`
}

func (q *outputsQuery) bind(c *fiber.Ctx) error {
	if s := c.Query("dateFrom"); s != "" {
		t, err := parseTime(s)
		if err != nil {
			return fmt.Errorf("dateFrom: %w", err)
		}
		q.From = t
	}
	if s := c.Query("dateTo"); s != "" {
		t, err := parseTime(s)
		if err != nil {
			return fmt.Errorf("dateTo: %w", err)
		}
		q.To = t
	}
	return nil
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"02 Jan 2006",
	time.RFC1123,
}

// parseTime accepts unix seconds or one of the common date layouts (UTC unless
// the input carries a zone).
func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	for _, layout := range dateLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, errors.New("invalid time format; use unix seconds or a date such as 2006-01-02")
}
