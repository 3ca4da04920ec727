package syncclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"strconv"

	"github.com/marcus/fieldops/internal/models"
)

const (
	pathAttendanceToday   = "/api/attendance/today"
	pathAttendanceCheckIn = "/api/attendance/check-in"
)

// attendanceRow is the attendance record as the backend serializes it.
type attendanceRow struct {
	ID             int64   `json:"id"`
	AttendanceDate string  `json:"attendance_date"`
	Date           string  `json:"date"`
	Time           string  `json:"time"`
	Status         string  `json:"status"`
	Location       string  `json:"location"`
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
	PhotoPath      string  `json:"photo_path"`
}

func (r *attendanceRow) record() *models.AttendanceRecord {
	date := r.AttendanceDate
	if date == "" && len(r.Date) >= 10 {
		date = r.Date[:10]
	}
	return &models.AttendanceRecord{
		ID:             r.ID,
		Date:           date,
		CheckInTime:    r.Time,
		PhotoReference: r.PhotoPath,
		Location:       r.Location,
		Latitude:       r.Latitude,
		Longitude:      r.Longitude,
		Status:         models.ParseAttendanceStatus(r.Status),
	}
}

// AttendanceCheckIn is the multipart attendance check-in.
type AttendanceCheckIn struct {
	Photo     io.Reader `validate:"-"`
	PhotoName string
	Latitude  float64 `validate:"gte=-90,lte=90"`
	Longitude float64 `validate:"gte=-180,lte=180"`
	Accuracy  float64 `validate:"gte=0"`
	Location  string
	Time      string `validate:"required"`
}

// AttendanceToday returns today's attendance record, or nil when none exists.
func (c *Client) AttendanceToday(ctx context.Context) (*models.AttendanceRecord, error) {
	var row *attendanceRow
	if err := c.do(ctx, "attendance-today", "GET", pathAttendanceToday, nil, &row); err != nil {
		return nil, err
	}
	if row == nil || row.ID == 0 {
		return nil, nil
	}
	return row.record(), nil
}

// CheckInAttendance uploads the attendance photo with the current fix.
func (c *Client) CheckInAttendance(ctx context.Context, in *AttendanceCheckIn) (*models.AttendanceRecord, error) {
	if err := c.check(in); err != nil {
		return nil, err
	}
	if in.Photo == nil {
		return nil, fmt.Errorf("attendance check-in: photo is required")
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	name := in.PhotoName
	if name == "" {
		name = "attendance.jpg"
	}
	part, err := mw.CreateFormFile("photo", filepath.Base(name))
	if err != nil {
		return nil, fmt.Errorf("create photo part: %w", err)
	}
	if _, err := io.Copy(part, in.Photo); err != nil {
		return nil, fmt.Errorf("copy photo: %w", err)
	}

	location := in.Location
	if location == "" {
		location = models.LocationSample{Latitude: in.Latitude, Longitude: in.Longitude}.String()
	}
	fields := []struct{ k, v string }{
		{"latitude", strconv.FormatFloat(in.Latitude, 'f', -1, 64)},
		{"longitude", strconv.FormatFloat(in.Longitude, 'f', -1, 64)},
		{"accuracy", strconv.FormatFloat(in.Accuracy, 'f', -1, 64)},
		{"attendance_status", "present"},
		{"time", in.Time},
		{"location", location},
	}
	for _, f := range fields {
		if err := mw.WriteField(f.k, f.v); err != nil {
			return nil, fmt.Errorf("write field %s: %w", f.k, err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart: %w", err)
	}

	var row attendanceRow
	if err := c.send(ctx, "attendance-checkin", "POST", pathAttendanceCheckIn, mw.FormDataContentType(), &buf, &row); err != nil {
		return nil, err
	}
	return row.record(), nil
}
