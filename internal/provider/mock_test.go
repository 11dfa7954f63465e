package provider

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marinerlabs/gridseed/internal/catalog"
	"github.com/marinerlabs/gridseed/internal/geo"
)

func mockRequest(t *testing.T) Request {
	t.Helper()
	region, err := geo.NewRegion(20, 22, -140, -137)
	require.NoError(t, err)
	return Request{
		Region:        region,
		Run:           time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC),
		LeadHours:     []int{0, 3, 6},
		Variables:     []string{"u10", "swh", "msl"},
		ResolutionDeg: 0.25,
	}
}

func TestMockDeterministic(t *testing.T) {
	req := mockRequest(t)

	first, err := NewMock(DefaultSeed).Fetch(context.Background(), req)
	require.NoError(t, err)
	second, err := NewMock(DefaultSeed).Fetch(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first.Latitudes, second.Latitudes)
	assert.Equal(t, first.Longitudes, second.Longitudes)
	for name := range first.Variables {
		assert.Equal(t, first.Variables[name].Values, second.Variables[name].Values, "variable %s", name)
	}

	// A different seed gives different weather.
	other, err := NewMock(7).Fetch(context.Background(), req)
	require.NoError(t, err)
	assert.NotEqual(t, first.Variables["u10"].Values, other.Variables["u10"].Values)
}

func TestMockGridGeometry(t *testing.T) {
	req := mockRequest(t)
	result, err := NewMock(DefaultSeed).Fetch(context.Background(), req)
	require.NoError(t, err)

	// 20..22 at 0.25 inclusive is 9 points; -140..-137 is 13.
	require.Len(t, result.Latitudes, 9)
	require.Len(t, result.Longitudes, 13)
	assert.Equal(t, 20.0, result.Latitudes[0])
	assert.InDelta(t, 22.0, result.Latitudes[8], 1e-9)
	assert.InDelta(t, -137.0, result.Longitudes[12], 1e-9)

	for name, g := range result.Variables {
		nt, nlat, nlon := g.Shape()
		assert.Equal(t, 3, nt, name)
		assert.Equal(t, 9, nlat, name)
		assert.Equal(t, 13, nlon, name)
	}
}

func TestMockValuesWithinCatalogRange(t *testing.T) {
	req := mockRequest(t)
	req.Variables = catalog.FullSet()

	result, err := NewMock(DefaultSeed).Fetch(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, result.Variables, len(req.Variables))

	for name, g := range result.Variables {
		variable, ok := catalog.Lookup(name)
		require.True(t, ok)
		for _, v := range g.Values {
			assert.GreaterOrEqual(t, float64(v), variable.Min, name)
			assert.LessOrEqual(t, float64(v), variable.Max, name)
		}
	}
}

func TestMockFieldsAreSmooth(t *testing.T) {
	req := mockRequest(t)
	result, err := NewMock(DefaultSeed).Fetch(context.Background(), req)
	require.NoError(t, err)

	// Adjacent grid cells differ by far less than the variable's full
	// range: no per-point noise.
	u10 := result.Variables["u10"]
	variable, _ := catalog.Lookup("u10")
	span := variable.Max - variable.Min
	for j := 1; j < 13; j++ {
		diff := float64(u10.At(0, 0, j) - u10.At(0, 0, j-1))
		assert.Less(t, diff*diff, (0.1*span)*(0.1*span))
	}
}

func TestMockRejectsBadRequests(t *testing.T) {
	mock := NewMock(DefaultSeed)

	req := mockRequest(t)
	req.Variables = []string{"not_a_variable"}
	_, err := mock.Fetch(context.Background(), req)
	assert.ErrorIs(t, err, ErrProvider)

	req = mockRequest(t)
	req.LeadHours = nil
	_, err = mock.Fetch(context.Background(), req)
	assert.ErrorIs(t, err, ErrProvider)

	req = mockRequest(t)
	req.ResolutionDeg = 0
	_, err = mock.Fetch(context.Background(), req)
	assert.ErrorIs(t, err, ErrProvider)
}
