package syncclient

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/marcus/fieldops/internal/fielderr"
	"github.com/marcus/fieldops/internal/models"
)

const (
	pathActiveVisit    = "/api/tracking/visits/active"
	pathVisitHistory   = "/api/tracking/visits/history"
	pathVisitCheckIn   = "/api/tracking/visits/check-in"
	pathVisitCheckOut  = "/api/tracking/visits/check-out"
	pathLocationUpdate = "/api/tracking/location/update"
)

// --- Visit wire types ---

// activeVisitResponse is the body of GET /api/tracking/visits/active.
type activeVisitResponse struct {
	Status       string   `json:"status"`
	VisitID      int64    `json:"visit_id"`
	CustomerName string   `json:"customername"`
	Notes        string   `json:"notes"`
	CheckinTime  string   `json:"checkintime"`
	Latitude     *float64 `json:"latitude"`
	Longitude    *float64 `json:"longitude"`
}

// ActiveVisit is the server's answer to "is a visit open".
type ActiveVisit struct {
	Active       bool
	VisitID      int64
	CustomerName string
	Notes        string
	CheckinTime  time.Time
	Location     *models.LocationSample
}

// CheckInRequest is the body for POST /api/tracking/visits/check-in.
type CheckInRequest struct {
	CustomerName string  `json:"customername" validate:"required,max=255"`
	Notes        string  `json:"notes" validate:"max=2000"`
	Latitude     float64 `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude    float64 `json:"longitude" validate:"gte=-180,lte=180"`
	Accuracy     float64 `json:"accuracy" validate:"gte=0"`
	Address      string  `json:"address"`
	CheckinTime  string  `json:"checkin_time"`
}

// CheckInResponse is the acknowledgment of a check-in.
type CheckInResponse struct {
	VisitID int64  `json:"visit_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// CheckOutRequest is the body for POST /api/tracking/visits/check-out.
type CheckOutRequest struct {
	VisitID      int64   `json:"visit_id" validate:"gt=0"`
	Latitude     float64 `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude    float64 `json:"longitude" validate:"gte=-180,lte=180"`
	CheckoutTime string  `json:"checkout_time"`
}

// CheckOutResult reports how a check-out completed.
type CheckOutResult struct {
	// SoftSuccess is set when the server answered 404: the visit was
	// already closed server-side, which counts as a completed check-out.
	SoftSuccess bool
	Message     string
}

// LocationUpdate is the body for POST /api/tracking/location/update.
type LocationUpdate struct {
	Latitude  float64 `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude float64 `json:"longitude" validate:"gte=-180,lte=180"`
	Accuracy  float64 `json:"accuracy" validate:"gte=0"`
}

type visitHistoryResponse struct {
	Visits []visitRow `json:"visits"`
}

type visitRow struct {
	ID                int64    `json:"id"`
	VisitID           int64    `json:"visit_id"`
	CustomerName      string   `json:"customername"`
	Notes             string   `json:"notes"`
	CheckinTime       string   `json:"checkintime"`
	CheckoutTime      *string  `json:"checkouttime"`
	CheckinLatitude   float64  `json:"checkin_latitude"`
	CheckinLongitude  float64  `json:"checkin_longitude"`
	CheckoutLatitude  *float64 `json:"checkout_latitude"`
	CheckoutLongitude *float64 `json:"checkout_longitude"`
	Status            string   `json:"status"`
}

// --- Visit methods ---

// ActiveVisit asks the server whether the user has an open visit.
func (c *Client) ActiveVisit(ctx context.Context) (*ActiveVisit, error) {
	var resp activeVisitResponse
	if err := c.do(ctx, "active-visit", "GET", pathActiveVisit, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Status != "active_visit" {
		return &ActiveVisit{Active: false}, nil
	}

	av := &ActiveVisit{
		Active:       true,
		VisitID:      resp.VisitID,
		CustomerName: resp.CustomerName,
		Notes:        resp.Notes,
	}
	if t, err := parseTime(resp.CheckinTime); err == nil {
		av.CheckinTime = t
	}
	if resp.Latitude != nil && resp.Longitude != nil {
		av.Location = &models.LocationSample{
			Latitude:   *resp.Latitude,
			Longitude:  *resp.Longitude,
			CapturedAt: av.CheckinTime,
		}
	}
	return av, nil
}

// CheckIn opens a visit on the server.
func (c *Client) CheckIn(ctx context.Context, req *CheckInRequest) (*CheckInResponse, error) {
	if err := c.check(req); err != nil {
		return nil, err
	}
	var resp CheckInResponse
	if err := c.do(ctx, "visit-checkin", "POST", pathVisitCheckIn, req, &resp); err != nil {
		return nil, err
	}
	if resp.VisitID <= 0 {
		return nil, fmt.Errorf("%w: check-in acknowledged without visit_id", fielderr.ErrServerRejected)
	}
	return &resp, nil
}

// CheckOut closes a visit. A 404 means the server has already closed it
// (for example a server-side timeout job) and is reported as SoftSuccess.
func (c *Client) CheckOut(ctx context.Context, req *CheckOutRequest) (*CheckOutResult, error) {
	if err := c.check(req); err != nil {
		return nil, err
	}
	var resp struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	}
	err := c.do(ctx, "visit-checkout", "POST", pathVisitCheckOut, req, &resp)
	if errors.Is(err, fielderr.ErrNotFound) {
		return &CheckOutResult{SoftSuccess: true, Message: fielderr.Message(err)}, nil
	}
	if err != nil {
		return nil, err
	}
	return &CheckOutResult{Message: resp.Message}, nil
}

// PushLocation sends one live location sample.
func (c *Client) PushLocation(ctx context.Context, s models.LocationSample) error {
	req := &LocationUpdate{Latitude: s.Latitude, Longitude: s.Longitude, Accuracy: s.Accuracy}
	if err := c.check(req); err != nil {
		return err
	}
	return c.do(ctx, "location-update", "POST", pathLocationUpdate, req, nil)
}

// VisitHistory returns the most recent visits, newest first.
func (c *Client) VisitHistory(ctx context.Context, limit int) ([]models.VisitRecord, error) {
	params := url.Values{}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	path := pathVisitHistory
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var resp visitHistoryResponse
	if err := c.do(ctx, "visit-history", "GET", path, nil, &resp); err != nil {
		return nil, err
	}

	records := make([]models.VisitRecord, 0, len(resp.Visits))
	for _, row := range resp.Visits {
		rec := models.VisitRecord{
			ID:                row.ID,
			CustomerName:      row.CustomerName,
			Notes:             row.Notes,
			CheckinLatitude:   row.CheckinLatitude,
			CheckinLongitude:  row.CheckinLongitude,
			CheckoutLatitude:  row.CheckoutLatitude,
			CheckoutLongitude: row.CheckoutLongitude,
			Completed:         row.Status == "completed",
		}
		if rec.ID == 0 {
			rec.ID = row.VisitID
		}
		if t, err := parseTime(row.CheckinTime); err == nil {
			rec.CheckinTime = t
		}
		if row.CheckoutTime != nil {
			if t, err := parseTime(*row.CheckoutTime); err == nil && !t.IsZero() {
				rec.CheckoutTime = &t
				rec.Completed = true
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

// NewCheckIn builds a check-in body from a fix.
func NewCheckIn(customer, notes, address string, fix models.LocationSample) *CheckInRequest {
	return &CheckInRequest{
		CustomerName: customer,
		Notes:        notes,
		Latitude:     fix.Latitude,
		Longitude:    fix.Longitude,
		Accuracy:     fix.Accuracy,
		Address:      address,
		CheckinTime:  formatTime(fix.CapturedAt),
	}
}

// NewCheckOut builds a check-out body from a fix.
func NewCheckOut(visitID int64, fix models.LocationSample) *CheckOutRequest {
	return &CheckOutRequest{
		VisitID:      visitID,
		Latitude:     fix.Latitude,
		Longitude:    fix.Longitude,
		CheckoutTime: formatTime(fix.CapturedAt),
	}
}
