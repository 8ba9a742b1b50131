package geofence

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(v float64) *float64 { return &v }

func TestHaversineDistanceSamePointIsZero(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0.0, HaversineDistance(-23.5505, -46.6333, -23.5505, -46.6333))
}

func TestHaversineDistanceIsSymmetric(t *testing.T) {
	t.Parallel()

	ab := HaversineDistance(-23.5505, -46.6333, -22.9068, -43.1729)
	ba := HaversineDistance(-22.9068, -43.1729, -23.5505, -46.6333)
	assert.InDelta(t, ab, ba, 1e-6)
	// São Paulo to Rio de Janeiro is roughly 360 km.
	assert.InDelta(t, 360000, ab, 10000)
}

func TestHaversineDistanceOneDegreeOfLatitude(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 111195, HaversineDistance(0, 0, 1, 0), 1)
}

func TestHaversineDistanceAntipodalIsHalfCircumference(t *testing.T) {
	t.Parallel()

	half := math.Pi * EarthRadiusMeters
	for lat := -89.5; lat <= 89.5; lat += 0.5 {
		for lon := -179.0; lon <= 179.0; lon += 7.3 {
			d := HaversineDistance(lat, lon, -lat, lon+180)
			require.False(t, math.IsNaN(d), "lat=%v lon=%v", lat, lon)
			assert.InDelta(t, half, d, 1, "lat=%v lon=%v", lat, lon)
		}
	}

	v := Validate(ptr(-23.5505), ptr(-46.6333), ptr(23.5505), ptr(133.3667), 300)
	require.True(t, v.Valid)
	assert.Equal(t, int(math.Round(half)), *v.Distance)
	assert.True(t, v.Outside)
}

func TestValidateMissingCoordinateCannotAssert(t *testing.T) {
	t.Parallel()

	cases := [][4]*float64{
		{nil, ptr(1), ptr(1), ptr(1)},
		{ptr(1), nil, ptr(1), ptr(1)},
		{ptr(1), ptr(1), nil, ptr(1)},
		{ptr(1), ptr(1), ptr(1), nil},
	}
	for _, c := range cases {
		v := Validate(c[0], c[1], c[2], c[3], 300)
		assert.False(t, v.Valid)
		assert.Nil(t, v.Distance)
		assert.False(t, v.Outside)
	}
}

func TestValidateInsideAndOutsideRadius(t *testing.T) {
	t.Parallel()

	// 0.001 degrees of latitude is about 111 m.
	inside := Validate(ptr(0), ptr(0), ptr(0.001), ptr(0), 300)
	require.True(t, inside.Valid)
	require.NotNil(t, inside.Distance)
	assert.Equal(t, 111, *inside.Distance)
	assert.False(t, inside.Outside)

	outside := Validate(ptr(0), ptr(0), ptr(0.01), ptr(0), 300)
	require.True(t, outside.Valid)
	assert.Equal(t, 1112, *outside.Distance)
	assert.True(t, outside.Outside)
}

func TestValidateDefaultsRadius(t *testing.T) {
	t.Parallel()

	v := Validate(ptr(0), ptr(0), ptr(0.002), ptr(0), 0)
	require.True(t, v.Valid)
	assert.Equal(t, 222, *v.Distance)
	assert.False(t, v.Outside)
}
