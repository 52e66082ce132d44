package geo_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/example/tablebook/internal/geo"
)

func TestDistanceKMZeroAtSamePoint(t *testing.T) {
	require.Zero(t, geo.DistanceKM(37.5665, 126.978, 37.5665, 126.978))
}

func TestDistanceKMReferencePoints(t *testing.T) {
	// Paris to London.
	d := geo.DistanceKM(48.8566, 2.3522, 51.5074, -0.1278)
	require.InDelta(t, 343.6, d, 1.0)

	// One degree of longitude on the equator.
	d = geo.DistanceKM(0, 0, 0, 1)
	require.InDelta(t, 111.19, d, 0.05)
}

func TestDistanceKMSymmetry(t *testing.T) {
	ab := geo.DistanceKM(37.5665, 126.978, 35.1796, 129.0756)
	ba := geo.DistanceKM(35.1796, 129.0756, 37.5665, 126.978)
	require.InDelta(t, ab, ba, 1e-9)
}
