// Package stats implements robust outlier filtering and summary statistics
// over collected prices.
package stats

import (
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/rateright/rateright/internal/model"
)

const (
	// MinSampleForOutlierFilter is the minimum number of priced providers
	// required before the MAD filter runs at all.
	MinSampleForOutlierFilter = 5

	// MADZThreshold is the modified Z-score above which a price is an outlier.
	MADZThreshold = 3.5
)

// OutlierPrices identifies outliers using the modified Z-score over the median
// absolute deviation, computed in log-space. Prices are multiplicative, so
// log-space symmetrizes the distribution; MAD is used because a single extreme
// value cannot distort the median the way it can distort quartiles.
func OutlierPrices(values []float64) map[float64]bool {
	logs := make([]float64, len(values))
	for i, v := range values {
		logs[i] = math.Log(v)
	}
	med := median(logs)

	devs := make([]float64, len(logs))
	for i, lv := range logs {
		devs[i] = math.Abs(lv - med)
	}
	mad := median(devs)
	if mad == 0 {
		return nil
	}

	outliers := make(map[float64]bool)
	for i, v := range values {
		z := 0.6745 * math.Abs(logs[i]-med) / mad
		if z > MADZThreshold {
			outliers[v] = true
		}
	}
	return outliers
}

// FilterPriceOutliers removes observations whose prices are extreme outliers
// across the provider set. Each provider contributes its lowest positive price
// to the sample; any observation carrying a flagged price is dropped from
// every provider's list, not just the flagged one. Mutates providers in place
// and returns the number of observations removed.
func FilterPriceOutliers(providers []model.ProviderWithPrices) int {
	sample := make([]float64, 0, len(providers))
	for i := range providers {
		if lowest, _ := providers[i].LowestPrice(); lowest > 0 {
			sample = append(sample, lowest)
		}
	}
	if len(sample) < MinSampleForOutlierFilter {
		return 0
	}

	bad := OutlierPrices(sample)
	if len(bad) == 0 {
		return 0
	}

	removed := 0
	for i := range providers {
		kept := providers[i].Observations[:0]
		for _, o := range providers[i].Observations {
			if o.Price > 0 && bad[o.Price] {
				removed++
				continue
			}
			kept = append(kept, o)
		}
		providers[i].Observations = kept
	}

	if removed > 0 {
		prices := make([]float64, 0, len(bad))
		for p := range bad {
			prices = append(prices, p)
		}
		sort.Float64s(prices)
		zap.L().Info("outlier filter removed observations",
			zap.Float64("z_threshold", MADZThreshold),
			zap.Int("removed", removed),
			zap.Float64s("prices", prices),
		)
	}
	return removed
}

// ComputePriceStats aggregates each provider's lowest positive price into
// summary statistics. Returns nil when no provider has a positive price.
// The currency is chosen by plurality across the contributing prices.
func ComputePriceStats(providers []model.ProviderWithPrices) *model.PriceStats {
	var values []float64
	currencyCounts := make(map[string]int)
	for i := range providers {
		lowest, currency := providers[i].LowestPrice()
		if lowest <= 0 {
			continue
		}
		values = append(values, lowest)
		currencyCounts[currency]++
	}
	if len(values) == 0 {
		return nil
	}

	dominant := ""
	for c, n := range currencyCounts {
		if dominant == "" || n > currencyCounts[dominant] {
			dominant = c
		}
	}

	sum, minV, maxV := 0.0, values[0], values[0]
	for _, v := range values {
		sum += v
		if v < minV {
			minV = v
		}
		if v > maxV {
			maxV = v
		}
	}

	return &model.PriceStats{
		AvgPrice:    round2(sum / float64(len(values))),
		MinPrice:    round2(minV),
		MaxPrice:    round2(maxV),
		MedianPrice: round2(median(values)),
		Currency:    dominant,
		SampleSize:  len(values),
	}
}

// median returns the median of values without mutating the input.
func median(values []float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
