package location

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"googlemaps.github.io/maps"
)

// GoogleGeolocationProvider resolves the device position from nearby Wi-Fi
// access points and cell towers with the Google Maps Geolocation API.
type GoogleGeolocationProvider struct {
	client     *maps.Client // Maps API client for making geolocation requests
	modemIndex int
	considerIP bool
	logger     zerolog.Logger

	scanWiFi  func(ctx context.Context) ([]maps.WiFiAccessPoint, error)
	scanCells func(ctx context.Context, modemIndex int) ([]maps.CellTower, error)
	now       func() time.Time
}

// NewGoogleGeolocationProvider creates a network fetcher. Extra client
// options are passed to the Maps client.
func NewGoogleGeolocationProvider(apiKey string, modemIndex int, considerIP bool, logger zerolog.Logger, opts ...maps.ClientOption) (*GoogleGeolocationProvider, error) {
	c, err := maps.NewClient(append([]maps.ClientOption{maps.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, err
	}

	return &GoogleGeolocationProvider{
		client:     c,
		modemIndex: modemIndex,
		considerIP: considerIP,
		logger:     logger,
		scanWiFi:   getWiFiAccessPoints,
		scanCells:  getCellTowers,
		now:        time.Now,
	}, nil
}

// Fetch collects radio observations and asks the API for a position. A
// failing scanner is logged and skipped so the request can still rely on
// the other observations or the IP address.
func (g *GoogleGeolocationProvider) Fetch(ctx context.Context) (*Sample, error) {
	wifiAPs, err := g.scanWiFi(ctx)
	if err != nil {
		g.logger.Debug().Err(err).Msg("Wi-Fi scan unavailable")
	}

	cellTowers, err := g.scanCells(ctx, g.modemIndex)
	if err != nil {
		g.logger.Debug().Err(err).Int("modem", g.modemIndex).Msg("Cell tower scan unavailable")
	}

	req := &maps.GeolocationRequest{
		ConsiderIP:       g.considerIP,
		WiFiAccessPoints: wifiAPs,
		CellTowers:       cellTowers,
	}

	resp, err := g.client.Geolocate(ctx, req)
	if err != nil {
		return nil, err
	}

	return NewSample(NETWORK, g.now().UnixMilli(), resp.Location.Lat, resp.Location.Lng,
		WithAccuracy(resp.Accuracy)), nil
}
