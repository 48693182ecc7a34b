package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/habedi/salonctl/pkg/apierr"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
)

// Salon is a bookable venue returned by the search endpoint.
type Salon struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Address   string  `json:"address"`
	City      string  `json:"city"`
	Rating    float64 `json:"rating"`
	Latitude  float64 `json:"latitude,omitempty"`
	Longitude float64 `json:"longitude,omitempty"`
}

// Appointment is a booking owned by the signed-in user.
type Appointment struct {
	ID        string    `json:"id"`
	SalonID   string    `json:"salonId"`
	SalonName string    `json:"salonName"`
	Service   string    `json:"service"`
	StartsAt  time.Time `json:"startsAt"`
	Status    string    `json:"status"`
}

// SalonQuery filters a salon search. Empty fields are not sent.
type SalonQuery struct {
	Text  string
	City  string
	Page  int
	Limit int
}

func (q SalonQuery) values() url.Values {
	v := url.Values{}
	if q.Text != "" {
		v.Set("q", q.Text)
	}
	if q.City != "" {
		v.Set("city", q.City)
	}
	if q.Page > 0 {
		v.Set("page", strconv.Itoa(q.Page))
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	return v
}

// SearchSalons queries the public salon search. It works with or without a session.
func (c *Client) SearchSalons(ctx context.Context, q SalonQuery) ([]Salon, error) {
	var salons []Salon
	if err := c.GetJSON(ctx, "/salons", q.values(), &salons); err != nil {
		return nil, fmt.Errorf("failed to search salons: %w", err)
	}
	log.Info().Int("count", len(salons)).Msg("Fetched salons")
	return salons, nil
}

// ListAppointments returns the signed-in user's appointments.
func (c *Client) ListAppointments(ctx context.Context) ([]Appointment, error) {
	var appointments []Appointment
	if err := c.GetJSON(ctx, "/appointments", nil, &appointments); err != nil {
		return nil, fmt.Errorf("failed to list appointments: %w", err)
	}
	return appointments, nil
}

// GetAppointment fetches one appointment by ID.
func (c *Client) GetAppointment(ctx context.Context, id string) (*Appointment, error) {
	var appt Appointment
	if err := c.GetJSON(ctx, "/appointments/"+url.PathEscape(id), nil, &appt); err != nil {
		return nil, fmt.Errorf("failed to fetch appointment %s: %w", id, err)
	}
	return &appt, nil
}

// ListFavorites returns the salons the user marked as favorite.
func (c *Client) ListFavorites(ctx context.Context) ([]Salon, error) {
	var salons []Salon
	if err := c.GetJSON(ctx, "/favorites", nil, &salons); err != nil {
		return nil, fmt.Errorf("failed to list favorites: %w", err)
	}
	return salons, nil
}

// AddFavorite marks a salon as favorite.
func (c *Client) AddFavorite(ctx context.Context, salonID string) error {
	body := map[string]string{"salonId": salonID}
	if err := c.SendJSON(ctx, http.MethodPost, "/favorites", body, nil); err != nil {
		return fmt.Errorf("failed to add favorite %s: %w", salonID, err)
	}
	return nil
}

// RemoveFavorite unmarks a salon.
func (c *Client) RemoveFavorite(ctx context.Context, salonID string) error {
	if err := c.SendJSON(ctx, http.MethodDelete, "/favorites/"+url.PathEscape(salonID), nil, nil); err != nil {
		return fmt.Errorf("failed to remove favorite %s: %w", salonID, err)
	}
	return nil
}

// decodeData unmarshals body into out, unwrapping a {"data": ...} envelope
// when the API sends one.
func decodeData(body []byte, out any) error {
	payload := body
	if gjson.ValidBytes(body) {
		if data := gjson.GetBytes(body, "data"); data.Exists() && data.Type != gjson.Null {
			payload = []byte(data.Raw)
		}
	}
	if err := json.Unmarshal(payload, out); err != nil {
		log.Error().Err(err).Str("body_preview", string(body[:min(len(body), 200)])).Msg("Failed to parse response JSON")
		return apierr.New(apierr.Unknown, "malformed response body", err)
	}
	return nil
}
