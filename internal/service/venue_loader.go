package service

import (
	"context"
	"time"

	"github.com/prohmpiriya/pitch-booking/internal/domain"
	"github.com/prohmpiriya/pitch-booking/internal/repository"
	"golang.org/x/sync/singleflight"
)

const defaultVenueLoadTimeout = 5 * time.Second

// venueLoader coalesces concurrent loads of the same venue. Availability
// reads are advisory, so a shared in-flight result is good enough.
type venueLoader struct {
	venues  repository.VenueRepository
	group   singleflight.Group
	timeout time.Duration
}

func newVenueLoader(venues repository.VenueRepository) *venueLoader {
	return &venueLoader{venues: venues, timeout: defaultVenueLoadTimeout}
}

// load runs the shared query detached from any one caller; each caller
// stops waiting when its own context ends.
func (l *venueLoader) load(ctx context.Context, id string) (*domain.Venue, error) {
	ch := l.group.DoChan(id, func() (any, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.timeout)
		defer cancel()
		return l.venues.GetByID(loadCtx, id)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*domain.Venue), nil
	}
}
