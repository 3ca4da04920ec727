package devserver

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

type visit struct {
	ID           int64
	CustomerName string
	Notes        string
	Address      string
	CheckinTime  time.Time
	CheckoutTime *time.Time
	Latitude     float64
	Longitude    float64
	EndLatitude  *float64
	EndLongitude *float64
}

// LocationPoint is one accepted location update.
type LocationPoint struct {
	VisitID   int64
	Latitude  float64
	Longitude float64
	Accuracy  float64
	At        time.Time
}

type checkInBody struct {
	CustomerName string  `json:"customername" validate:"required,max=255"`
	Notes        string  `json:"notes"`
	Latitude     float64 `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude    float64 `json:"longitude" validate:"gte=-180,lte=180"`
	Accuracy     float64 `json:"accuracy" validate:"gte=0"`
	Address      string  `json:"address"`
	CheckinTime  string  `json:"checkin_time"`
}

type checkOutBody struct {
	VisitID      int64    `json:"visit_id"`
	Latitude     *float64 `json:"latitude" validate:"omitempty,gte=-90,lte=90"`
	Longitude    *float64 `json:"longitude" validate:"omitempty,gte=-180,lte=180"`
	CheckoutTime string   `json:"checkout_time"`
}

type locationBody struct {
	Latitude  float64 `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude float64 `json:"longitude" validate:"gte=-180,lte=180"`
	Accuracy  float64 `json:"accuracy" validate:"gte=0"`
}

func (s *Server) openVisitLocked() *visit {
	for i := len(s.visits) - 1; i >= 0; i-- {
		if s.visits[i].CheckoutTime == nil {
			return s.visits[i]
		}
	}
	return nil
}

func (s *Server) activeVisit(c *fiber.Ctx) error {
	s.mu.Lock()
	v := s.openVisitLocked()
	s.mu.Unlock()
	if v == nil {
		return c.JSON(fiber.Map{"status": "no_active_visit"})
	}
	return c.JSON(fiber.Map{
		"status":       "active_visit",
		"visit_id":     v.ID,
		"customername": v.CustomerName,
		"notes":        v.Notes,
		"checkintime":  v.CheckinTime.Format(time.RFC3339),
		"latitude":     v.Latitude,
		"longitude":    v.Longitude,
	})
}

func (s *Server) visitHistory(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 20)
	if limit <= 0 {
		limit = 20
	}

	s.mu.Lock()
	rows := make([]fiber.Map, 0, limit)
	for i := len(s.visits) - 1; i >= 0 && len(rows) < limit; i-- {
		v := s.visits[i]
		var out *string
		status := "active"
		if v.CheckoutTime != nil {
			t := v.CheckoutTime.Format(time.RFC3339)
			out = &t
			status = "completed"
		}
		rows = append(rows, fiber.Map{
			"id":                 v.ID,
			"customername":       v.CustomerName,
			"notes":              v.Notes,
			"checkintime":        v.CheckinTime.Format(time.RFC3339),
			"checkouttime":       out,
			"checkin_latitude":   v.Latitude,
			"checkin_longitude":  v.Longitude,
			"checkout_latitude":  v.EndLatitude,
			"checkout_longitude": v.EndLongitude,
			"status":             status,
		})
	}
	s.mu.Unlock()
	return c.JSON(fiber.Map{"visits": rows})
}

func (s *Server) visitCheckIn(c *fiber.Ctx) error {
	var body checkInBody
	if err := c.BodyParser(&body); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if body.CustomerName == "" {
		return fiber.NewError(fiber.StatusBadRequest, "Customer name is required")
	}
	if err := s.check(&body); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.openVisitLocked() != nil {
		return fiber.NewError(fiber.StatusBadRequest, "You already have an active visit. Check out first.")
	}
	v := &visit{
		ID:           s.id(),
		CustomerName: body.CustomerName,
		Notes:        body.Notes,
		Address:      body.Address,
		CheckinTime:  s.now(),
		Latitude:     body.Latitude,
		Longitude:    body.Longitude,
	}
	s.visits = append(s.visits, v)
	s.points = append(s.points, LocationPoint{
		VisitID: v.ID, Latitude: body.Latitude, Longitude: body.Longitude, Accuracy: body.Accuracy, At: v.CheckinTime,
	})
	return c.JSON(fiber.Map{
		"visit_id": v.ID,
		"status":   "tracking_started",
		"message":  "Visit started, GPS tracking active",
	})
}

func (s *Server) visitCheckOut(c *fiber.Ctx) error {
	var body checkOutBody
	if err := c.BodyParser(&body); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if body.VisitID == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "visit_id required")
	}
	if err := s.check(&body); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.openVisitLocked()
	if v == nil || v.ID != body.VisitID {
		return fiber.NewError(fiber.StatusNotFound, "Active visit not found")
	}
	now := s.now()
	v.CheckoutTime = &now
	v.EndLatitude = body.Latitude
	v.EndLongitude = body.Longitude
	return c.JSON(fiber.Map{"status": "visit_completed", "message": "Visit completed, GPS tracking stopped"})
}

func (s *Server) locationUpdate(c *fiber.Ctx) error {
	var body locationBody
	if err := c.BodyParser(&body); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if err := s.check(&body); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.openVisitLocked()
	if v == nil {
		return c.JSON(fiber.Map{"status": "no_active_session"})
	}
	s.points = append(s.points, LocationPoint{
		VisitID: v.ID, Latitude: body.Latitude, Longitude: body.Longitude, Accuracy: body.Accuracy, At: s.now(),
	})
	return c.JSON(fiber.Map{"status": "location_updated"})
}

// CloseOpenVisits closes any open visit the way the server-side timeout job
// does, and returns how many were closed.
func (s *Server) CloseOpenVisits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	now := s.now()
	for _, v := range s.visits {
		if v.CheckoutTime == nil {
			t := now
			v.CheckoutTime = &t
			n++
		}
	}
	return n
}

// Locations returns every accepted location point in arrival order.
func (s *Server) Locations() []LocationPoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]LocationPoint(nil), s.points...)
}
