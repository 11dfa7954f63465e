package cost

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimateCost(t *testing.T) {
	const size = 3 * 1024 * 1024 // 3 MB

	t.Run("cost is exactly sizeMB times rate", func(t *testing.T) {
		for provider, rate := range rates {
			est := EstimateCost(size, provider)
			assert.Equal(t, provider, est.Provider)
			assert.Equal(t, rate, est.RatePerMB)
			assert.InEpsilon(t, 3.0*rate, est.CostUSD, 1e-12)
		}
	})

	t.Run("unknown provider uses conservative fallback", func(t *testing.T) {
		est := EstimateCost(size, Provider("carrier_pigeon"))
		assert.Equal(t, 10.0, est.RatePerMB)
		assert.InEpsilon(t, 30.0, est.CostUSD, 1e-12)
	})

	t.Run("zero bytes cost nothing", func(t *testing.T) {
		assert.Zero(t, EstimateCost(0, Starlink).CostUSD)
	})
}

func TestEstimateAll(t *testing.T) {
	all := EstimateAll(2 * 1024 * 1024)

	assert.Len(t, all, 5)
	assert.InEpsilon(t, 2*0.002, all["starlink"], 1e-12)
	assert.InEpsilon(t, 2*6.00, all["iridium_certus_100"], 1e-12)
	assert.InEpsilon(t, 2*1.50, all["iridium_certus_700"], 1e-12)
	assert.InEpsilon(t, 2*0.50, all["kvh_vsat"], 1e-12)
	assert.InEpsilon(t, 2*10.00, all["generic_metered"], 1e-12)
}
