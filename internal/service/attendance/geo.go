package attendance

import (
	"fmt"
	"log/slog"

	"github.com/cmlabs-hris/geo-attendance/internal/domain/attendance"
	"github.com/cmlabs-hris/geo-attendance/internal/pkg/utils"
)

// DefaultRadiusMeters applies to sites stored without a radius.
const DefaultRadiusMeters = 1000

type GeoResult struct {
	WithinRange    bool
	DistanceMeters float64
}

// GeoValidator decides whether a coordinate falls inside a site's geofence.
type GeoValidator struct {
	defaultRadius float64
}

func NewGeoValidator(defaultRadiusMeters float64) GeoValidator {
	if defaultRadiusMeters <= 0 {
		defaultRadiusMeters = DefaultRadiusMeters
	}
	return GeoValidator{defaultRadius: defaultRadiusMeters}
}

func (g GeoValidator) radius(site attendance.Site) float64 {
	if site.RadiusMeters > 0 {
		return site.RadiusMeters
	}
	return g.defaultRadius
}

// Validate measures coord against site. Out-of-domain coordinates fail with
// attendance.ErrInvalidCoordinate before any distance is computed.
func (g GeoValidator) Validate(coord attendance.Coordinate, site attendance.Site) (GeoResult, error) {
	if err := coord.Validate(); err != nil {
		return GeoResult{}, err
	}
	if err := site.Coordinate.Validate(); err != nil {
		return GeoResult{}, fmt.Errorf("site %s: %w", site.ID, err)
	}

	distance := utils.CalculateHaversineDistance(
		coord.Latitude, coord.Longitude,
		site.Coordinate.Latitude, site.Coordinate.Longitude,
	)

	return GeoResult{
		WithinRange:    distance <= g.radius(site),
		DistanceMeters: distance,
	}, nil
}

// Nearest returns the first site whose geofence contains coord. When none
// does, it returns the closest site with WithinRange false. Sites with an
// invalid coordinate are skipped.
func (g GeoValidator) Nearest(coord attendance.Coordinate, sites []attendance.Site) (attendance.Site, GeoResult, error) {
	if len(sites) == 0 {
		return attendance.Site{}, GeoResult{}, attendance.ErrNoSiteAssigned
	}
	if err := coord.Validate(); err != nil {
		return attendance.Site{}, GeoResult{}, err
	}

	var closest attendance.Site
	var closestResult GeoResult
	found := false
	for _, site := range sites {
		res, err := g.Validate(coord, site)
		if err != nil {
			slog.Warn("Skipping site with invalid coordinate", "site_id", site.ID, "error", err)
			continue
		}
		if res.WithinRange {
			return site, res, nil
		}
		if !found || res.DistanceMeters < closestResult.DistanceMeters {
			closest, closestResult, found = site, res, true
		}
	}

	if !found {
		return attendance.Site{}, GeoResult{}, attendance.ErrNoSiteAssigned
	}
	return closest, closestResult, nil
}
