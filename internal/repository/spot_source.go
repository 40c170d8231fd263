package repository

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/csfest/vendor-booking/internal/fault"
	"github.com/csfest/vendor-booking/internal/model"
)

// RemoteSpotSource fetches the authoritative spot list over HTTP. It
// is the read-only fallback consulted on first load when the local
// snapshot is empty; the endpoint returns a JSON array of spots
// ordered by id.
type RemoteSpotSource struct {
	URL    string
	Client *http.Client
}

// NewRemoteSpotSource builds a source with a bounded request timeout.
func NewRemoteSpotSource(url string) *RemoteSpotSource {
	return &RemoteSpotSource{
		URL:    url,
		Client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Fetch retrieves and decodes the spot list. All failure modes are
// reported as transport faults so the registry can degrade soft.
func (s *RemoteSpotSource) Fetch(ctx context.Context) ([]model.Spot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, fault.Wrap(fault.ErrTransport, "build spots request")
	}
	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, fault.Wrap(fault.ErrTransport, "fetch spots: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fault.Wrap(fault.ErrTransport, "fetch spots: status %d", resp.StatusCode)
	}
	var spots []model.Spot
	if err := json.NewDecoder(resp.Body).Decode(&spots); err != nil {
		return nil, fault.Wrap(fault.ErrTransport, "decode spots: %v", err)
	}
	return spots, nil
}
