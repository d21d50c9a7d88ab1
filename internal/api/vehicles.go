package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"

	"github.com/rentvehical/rent-compass/internal/vehicle"
)

// ListVehicles fetches the full listing collection
func (c *Client) ListVehicles(ctx context.Context) ([]vehicle.Vehicle, error) {
	env, err := c.do(ctx, request{method: http.MethodGet, path: "/vehicle/"})
	if err != nil {
		return nil, err
	}
	if env.Success == nil || !*env.Success {
		return nil, rejectedError(env, "Failed to fetch vehicles")
	}

	vehicles := []vehicle.Vehicle{}
	if err := decodeField("data", env.Data, &vehicles, true); err != nil {
		return nil, err
	}
	for _, v := range vehicles {
		if v.MalformedLocation() {
			c.logger.Debug().Str("vehicle_id", v.ID).
				Str("latitude", v.Location.Latitude.Raw).
				Str("longitude", v.Location.Longitude.Raw).
				Msg("Unreadable coordinates, listing treated as unlocated")
		}
	}
	c.logger.Info().Int("count", len(vehicles)).Msg("Fetched vehicles")
	return vehicles, nil
}

// GetVehicle fetches a single listing
func (c *Client) GetVehicle(ctx context.Context, id string) (*vehicle.Vehicle, error) {
	env, err := c.do(ctx, request{method: http.MethodGet, path: "/vehicle/vehicle_id/" + url.PathEscape(id)})
	if err != nil {
		if KindOf(err) == KindNotFound {
			return nil, notFound(err)
		}
		return nil, err
	}
	if env.Success == nil || !*env.Success {
		return nil, rejectedError(env, "Failed to fetch vehicle details")
	}

	var v *vehicle.Vehicle
	if err := decodeField("data", env.Data, &v, true); err != nil {
		return nil, err
	}
	if v == nil {
		return nil, &Error{Kind: KindNotFound, Message: "Vehicle not found", Err: fmt.Errorf("vehicle %s: %w", id, ErrNotFound)}
	}
	return v, nil
}

func notFound(err error) error {
	var apiErr *Error
	if errors.As(err, &apiErr) && apiErr.Message == "" {
		apiErr.Message = "Vehicle not found"
	}
	return err
}

// ListUserVehicles fetches every listing owned by userID, published or not
func (c *Client) ListUserVehicles(ctx context.Context, userID string) ([]vehicle.Vehicle, error) {
	env, err := c.do(ctx, request{method: http.MethodGet, path: "/vehicle/user_id/" + url.PathEscape(userID)})
	if err != nil {
		return nil, err
	}
	if env.rejected() {
		return nil, rejectedError(env, "Failed to fetch vehicles")
	}

	vehicles := []vehicle.Vehicle{}
	if err := decodeField("data", env.Data, &vehicles, true); err != nil {
		return nil, err
	}
	return vehicles, nil
}

// DeleteVehicle removes a listing owned by the caller
func (c *Client) DeleteVehicle(ctx context.Context, id string) error {
	env, err := c.do(ctx, request{method: http.MethodDelete, path: "/vehicle/delete-vehicle/" + url.PathEscape(id), auth: true})
	if err != nil {
		return err
	}
	if env.rejected() {
		return rejectedError(env, "Failed to delete vehicle")
	}
	c.logger.Info().Str("vehicle_id", id).Msg("Deleted vehicle")
	return nil
}

// TogglePublish flips the publication flag of a listing owned by the caller
func (c *Client) TogglePublish(ctx context.Context, id string) error {
	env, err := c.do(ctx, request{method: http.MethodPut, path: "/vehicle/toggle-publish-vehicle/" + url.PathEscape(id), auth: true})
	if err != nil {
		return err
	}
	if env.rejected() {
		return rejectedError(env, "Failed to publish vehicle")
	}
	c.logger.Info().Str("vehicle_id", id).Msg("Toggled vehicle publication")
	return nil
}

// RevealContact returns the owner contact of a listing, spending one unit of
// the caller's request quota
func (c *Client) RevealContact(ctx context.Context, id string) (string, error) {
	env, err := c.do(ctx, request{method: http.MethodGet, path: "/vehicle/vehicle_contact/" + url.PathEscape(id), auth: true})
	if err != nil {
		var apiErr *Error
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests {
			apiErr.Kind = KindQuotaExhausted
			apiErr.Retriable = false
		}
		return "", err
	}
	if env.Success == nil || !*env.Success {
		e := rejectedError(env, "No contact requests left")
		e.Kind = KindQuotaExhausted
		return "", e
	}

	var data struct {
		Contact string `json:"contact"`
	}
	if err := decodeField("vehicleData", env.VehicleData, &data, false); err != nil {
		return "", err
	}
	return data.Contact, nil
}

// CreateVehicle submits a new listing as multipart form fields. The returned
// listing is nil when the server does not echo it back.
func (c *Client) CreateVehicle(ctx context.Context, draft vehicle.Draft) (*vehicle.Vehicle, error) {
	if err := draft.Validate(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, field := range draft.Fields() {
		if err := w.WriteField(field[0], field[1]); err != nil {
			return nil, fmt.Errorf("failed to encode field %s: %w", field[0], err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode form: %w", err)
	}

	env, err := c.do(ctx, request{
		method:      http.MethodPost,
		path:        "/vehicle/create-vehicle",
		body:        buf.Bytes(),
		contentType: w.FormDataContentType(),
		auth:        true,
	})
	if err != nil {
		return nil, err
	}
	if env.rejected() {
		return nil, rejectedError(env, "Failed to upload vehicle")
	}

	var v *vehicle.Vehicle
	if err := decodeField("data", env.Data, &v, true); err != nil {
		return nil, err
	}
	return v, nil
}
