package devserver

import (
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type attendanceRow struct {
	ID             int64   `json:"id"`
	Date           string  `json:"date"`
	AttendanceDate string  `json:"attendance_date"`
	Time           string  `json:"time"`
	Status         string  `json:"status"`
	Location       string  `json:"location"`
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
	PhotoPath      string  `json:"photo_path"`
}

func (s *Server) attendanceToday(c *fiber.Ctx) error {
	s.mu.Lock()
	row := s.attendance[s.today()]
	s.mu.Unlock()
	if row == nil {
		return c.JSON(nil)
	}
	return c.JSON(row)
}

func (s *Server) attendanceCheckIn(c *fiber.Ctx) error {
	photo, err := c.FormFile("photo")
	if err != nil || photo.Size == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "Photo required for attendance")
	}

	var fields fieldErrors
	coord := func(name string, limit float64) float64 {
		v, err := strconv.ParseFloat(strings.TrimSpace(c.FormValue(name)), 64)
		if err != nil || v < -limit || v > limit {
			fields = append(fields, fiber.Map{
				"loc":  []string{"body", name},
				"msg":  "invalid coordinate",
				"type": "value_error",
			})
		}
		return v
	}
	lat := coord("latitude", 90)
	lon := coord("longitude", 180)
	if len(fields) > 0 {
		return fields
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	date := now.Format(time.DateOnly)
	if s.attendance[date] != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Already checked in today")
	}

	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	status := "Present"
	if now.Sub(midnight) > s.opts.LateCutoff {
		status = "Late"
	}
	row := &attendanceRow{
		ID:             s.id(),
		Date:           now.UTC().Format(time.RFC3339),
		AttendanceDate: date,
		Time:           now.Format(time.TimeOnly),
		Status:         status,
		Location:       c.FormValue("location"),
		Latitude:       lat,
		Longitude:      lon,
		PhotoPath:      "attendance/" + uuid.NewString() + strings.ToLower(filepath.Ext(photo.Filename)),
	}
	s.attendance[date] = row
	return c.JSON(row)
}
