// Package devserver is an in-memory stand-in for the ERP backend. It serves
// the visit tracking, attendance and daily report endpoints with the same
// rules and error bodies as production, for local development and tests.
package devserver

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/google/uuid"
)

// DefaultLateCutoff is the business-time check-in after which attendance is Late.
const DefaultLateCutoff = 9*time.Hour + 30*time.Minute

// Options configure a Server.
type Options struct {
	// Token, when set, is the only accepted bearer token.
	Token string
	// Location is the business timezone. Default is a fixed IST zone.
	Location *time.Location
	// LateCutoff is the offset from business midnight. Default 09:30.
	LateCutoff time.Duration
	Now        func() time.Time
}

// Server holds all backend state in memory.
type Server struct {
	app      *fiber.App
	validate *validator.Validate
	opts     Options

	mu         sync.Mutex
	nextID     int64
	visits     []*visit
	points     []LocationPoint
	attendance map[string]*attendanceRow // by business date
	reports    map[string]*reportRow     // by business date
}

// New creates a server with its routes registered.
func New(opts Options) *Server {
	if opts.Location == nil {
		opts.Location = time.FixedZone("IST", 5*3600+1800)
	}
	if opts.LateCutoff <= 0 {
		opts.LateCutoff = DefaultLateCutoff
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &Server{
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		opts:       opts,
		attendance: make(map[string]*attendanceRow),
		reports:    make(map[string]*reportRow),
	}
	s.app = fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	})
	s.routes()
	return s
}

func (s *Server) routes() {
	s.app.Use(s.requestID)
	s.app.Get("/health", func(c *fiber.Ctx) error { return c.SendString("ok") })

	api := s.app.Group("/api", s.auth)

	tracking := api.Group("/tracking")
	tracking.Get("/visits/active", s.activeVisit)
	tracking.Get("/visits/history", s.visitHistory)
	tracking.Post("/visits/check-in", s.visitCheckIn)
	tracking.Post("/visits/check-out", s.visitCheckOut)
	tracking.Post("/location/update", s.locationUpdate)

	att := api.Group("/attendance")
	att.Get("/today", s.attendanceToday)
	att.Post("/check-in", s.attendanceCheckIn)

	api.Get("/sales/salesman/daily-report/today", s.reportPrefill)
	api.Post("/sales/salesman/daily-report", s.submitReport)
	api.Get("/sales/salesman/daily-report/:date", s.getReport)
	api.Patch("/sales/salesman/daily-report/:date", s.updateReport)
}

// App returns the fiber app.
func (s *Server) App() *fiber.App { return s.app }

// Handler adapts the app to net/http.
func (s *Server) Handler() http.HandlerFunc { return adaptor.FiberApp(s.app) }

// Listen serves on addr until Shutdown.
func (s *Server) Listen(addr string) error { return s.app.Listen(addr) }

// Shutdown stops the listener and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error { return s.app.ShutdownWithContext(ctx) }

// requestID echoes X-Request-ID and logs each request at debug level
func (s *Server) requestID(c *fiber.Ctx) error {
	id := c.Get("X-Request-ID")
	if id == "" {
		id = uuid.NewString()
	}
	c.Set("X-Request-ID", id)
	start := time.Now()
	err := c.Next()
	slog.Debug("devserver: request", "id", id, "method", c.Method(), "path", c.Path(),
		"status", c.Response().StatusCode(), "dur", time.Since(start))
	return err
}

func (s *Server) auth(c *fiber.Ctx) error {
	if s.opts.Token == "" {
		return c.Next()
	}
	token, ok := strings.CutPrefix(c.Get(fiber.HeaderAuthorization), "Bearer ")
	if !ok || token != s.opts.Token {
		return fiber.NewError(fiber.StatusUnauthorized, "Could not validate credentials")
	}
	return c.Next()
}

// fieldErrors is a 422 carrying a list of field problems.
type fieldErrors []fiber.Map

func (e fieldErrors) Error() string { return "validation failed" }

// errorHandler renders every error as {"detail": ...}.
func errorHandler(c *fiber.Ctx, err error) error {
	var fields fieldErrors
	if errors.As(err, &fields) {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"detail": []fiber.Map(fields)})
	}
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	return c.Status(code).JSON(fiber.Map{"detail": err.Error()})
}

func (s *Server) check(v any) error {
	err := s.validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
	}
	fields := make(fieldErrors, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fiber.Map{
			"loc":  []string{"body", fe.Field()},
			"msg":  "failed " + fe.Tag(),
			"type": "value_error",
		})
	}
	return fields
}

func (s *Server) now() time.Time { return s.opts.Now().In(s.opts.Location) }

func (s *Server) today() string { return s.now().Format(time.DateOnly) }

func (s *Server) id() int64 {
	s.nextID++
	return s.nextID
}
