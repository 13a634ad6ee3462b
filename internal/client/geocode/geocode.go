package geocode

import (
	"context"
	"fmt"

	"github.com/DALE-GH/location-tracker/pkg/e"

	"googlemaps.github.io/maps"
)

// Geocoder turns coordinates into a human readable address.
type Geocoder interface {
	ReverseGeocode(ctx context.Context, lat, lng float64) (string, error)
}

// Google uses the Maps Geocoding API.
type Google struct {
	client *maps.Client
}

func NewGoogle(apiKey string, opts ...maps.ClientOption) (*Google, error) {
	c, err := maps.NewClient(append([]maps.ClientOption{maps.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, e.Wrap("geocode.NewGoogle", err)
	}
	return &Google{client: c}, nil
}

func (g *Google) ReverseGeocode(ctx context.Context, lat, lng float64) (string, error) {
	const op = "geocode.Google.ReverseGeocode"

	results, err := g.client.ReverseGeocode(ctx, &maps.GeocodingRequest{
		LatLng: &maps.LatLng{Lat: lat, Lng: lng},
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w: %v", op, e.ErrUnavailable, err)
	}
	if len(results) == 0 || results[0].FormattedAddress == "" {
		return "", fmt.Errorf("%s: %w", op, e.ErrNotFound)
	}
	return results[0].FormattedAddress, nil
}

// Nop never resolves anything. Used when no Maps key is configured.
type Nop struct{}

func (Nop) ReverseGeocode(context.Context, float64, float64) (string, error) {
	return "", fmt.Errorf("geocode.Nop: %w", e.ErrNotFound)
}

// New picks Google when apiKey is set, Nop otherwise.
func New(apiKey string) (Geocoder, error) {
	if apiKey == "" {
		return Nop{}, nil
	}
	return NewGoogle(apiKey)
}
