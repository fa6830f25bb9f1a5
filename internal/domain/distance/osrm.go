package distance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ErrQuotaExceeded is returned when the provider rate-limits us.
var ErrQuotaExceeded = errors.New("routing provider quota exceeded")

// OSRMProvider calls an OSRM-compatible /route/v1 endpoint.
type OSRMProvider struct {
	baseURL string
	profile string
	client  *http.Client
}

func NewOSRMProvider(baseURL, profile string, timeout time.Duration) *OSRMProvider {
	if profile == "" {
		profile = "driving"
	}
	return &OSRMProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		profile: profile,
		client:  &http.Client{Timeout: timeout},
	}
}

type osrmResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Routes  []struct {
		Distance float64         `json:"distance"`
		Duration float64         `json:"duration"`
		Geometry json.RawMessage `json:"geometry"`
	} `json:"routes"`
}

func (p *OSRMProvider) Route(ctx context.Context, points []Point) (*ProviderRoute, error) {
	coords := make([]string, len(points))
	for i, pt := range points {
		coords[i] = strconv.FormatFloat(pt.Lon, 'f', 6, 64) + "," + strconv.FormatFloat(pt.Lat, 'f', 6, 64)
	}
	url := fmt.Sprintf("%s/route/v1/%s/%s?overview=simplified&geometries=geojson",
		p.baseURL, p.profile, strings.Join(coords, ";"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, err
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, ErrQuotaExceeded
	case resp.StatusCode >= 300:
		return nil, fmt.Errorf("routing provider returned status %d", resp.StatusCode)
	}

	var parsed osrmResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if parsed.Code != "Ok" || len(parsed.Routes) == 0 {
		return nil, fmt.Errorf("%w: code=%q message=%q", ErrMalformedResponse, parsed.Code, parsed.Message)
	}

	route := parsed.Routes[0]
	return &ProviderRoute{
		DistanceKm:      route.Distance / 1000,
		DurationMinutes: route.Duration / 60,
		Geometry:        route.Geometry,
	}, nil
}
