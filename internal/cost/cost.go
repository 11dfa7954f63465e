// Package cost estimates satellite transmission cost for exported
// seeds. Rates reflect 2026 metered pricing for the major maritime
// providers; unknown providers fall back to a deliberately
// conservative rate so a bad configuration overestimates rather than
// surprises.
package cost

// Provider identifies a satellite connectivity provider.
type Provider string

const (
	Starlink         Provider = "starlink"
	IridiumCertus100 Provider = "iridium_certus_100"
	IridiumCertus700 Provider = "iridium_certus_700"
	KVHVSat          Provider = "kvh_vsat"
	GenericMetered   Provider = "generic_metered"
)

// USD per MB.
var rates = map[Provider]float64{
	Starlink:         0.002, // ~$2/GB metered overage
	IridiumCertus100: 6.00,
	IridiumCertus700: 1.50,
	KVHVSat:          0.50,
	GenericMetered:   10.00, // conservative fallback
}

const bytesPerMB = 1024 * 1024

// Estimate is the transfer cost of one payload on one provider.
type Estimate struct {
	Provider  Provider `json:"provider"`
	CostUSD   float64  `json:"cost_usd"`
	RatePerMB float64  `json:"rate_per_mb"`
}

// RateFor returns the per-MB rate for provider, or the generic
// metered fallback for an unknown one.
func RateFor(provider Provider) float64 {
	if rate, ok := rates[provider]; ok {
		return rate
	}
	return rates[GenericMetered]
}

// EstimateCost returns size_MB × rate for the given provider.
func EstimateCost(sizeBytes int, provider Provider) Estimate {
	rate := RateFor(provider)
	return Estimate{
		Provider:  provider,
		CostUSD:   float64(sizeBytes) / bytesPerMB * rate,
		RatePerMB: rate,
	}
}

// EstimateAll returns the cost for every known provider, keyed by
// provider name.
func EstimateAll(sizeBytes int) map[string]float64 {
	out := make(map[string]float64, len(rates))
	for provider := range rates {
		out[string(provider)] = EstimateCost(sizeBytes, provider).CostUSD
	}
	return out
}
