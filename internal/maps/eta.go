// README: Travel-time estimates via the Google Distance Matrix API. Used to
// fill estimated_time on the stage a driver is about to start.
package maps

import (
	"context"
	"errors"
	"fmt"

	gmaps "googlemaps.github.io/maps"

	"flashfood/internal/types"
)

var ErrNoRoute = errors.New("no route between points")

type Estimator struct {
	client *gmaps.Client
}

func NewEstimator(apiKey string) (*Estimator, error) {
	c, err := gmaps.NewClient(gmaps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("maps client: %w", err)
	}
	return &Estimator{client: c}, nil
}

// TravelSeconds returns the driving time between two points.
func (e *Estimator) TravelSeconds(ctx context.Context, origin, dest types.Point) (int64, error) {
	resp, err := e.client.DistanceMatrix(ctx, &gmaps.DistanceMatrixRequest{
		Origins:      []string{formatPoint(origin)},
		Destinations: []string{formatPoint(dest)},
		Mode:         gmaps.TravelModeDriving,
	})
	if err != nil {
		return 0, fmt.Errorf("distance matrix: %w", err)
	}
	if len(resp.Rows) == 0 || len(resp.Rows[0].Elements) == 0 {
		return 0, ErrNoRoute
	}
	el := resp.Rows[0].Elements[0]
	if el.Status != "OK" {
		return 0, fmt.Errorf("%w: element status %s", ErrNoRoute, el.Status)
	}
	return int64(el.Duration.Seconds()), nil
}

func formatPoint(p types.Point) string {
	return fmt.Sprintf("%.7f,%.7f", p.Lat, p.Lng)
}
