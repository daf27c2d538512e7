package aggregator

import (
	"math"

	"github.com/rodiolabs/oraclenode/internal/model"
)

// aggregateGPS runs the coordinate-wise counterpart of Aggregate's scalar
// pipeline for SensorGPS readings: lat and lon are IQR-filtered and scored
// independently (in lock-step, via iqrRetainIndices, so a reading dropped
// on one axis is dropped on both), then a consensus ratio is computed from
// each retained reading's distance from the consensus point. valid must
// already have passed the signature and min-nodes gates.
func (a *Aggregator) aggregateGPS(valid []model.Reading) Outcome {
	lats := make([]float64, len(valid))
	lons := make([]float64, len(valid))
	alts := make([]float64, len(valid))
	for i, r := range valid {
		if r.GPS == nil {
			return Outcome{Err: model.New(model.KindInvalidReading, "gps reading missing coordinates")}
		}
		lats[i] = r.GPS.Lat
		lons[i] = r.GPS.Lon
		alts[i] = r.GPS.Alt
	}

	idx := iqrRetainIndices(lats)
	lonIdx := iqrRetainIndices(lons)
	idx = intersectSorted(idx, lonIdx)
	if len(idx) == 0 {
		idx = make([]int, len(valid))
		for i := range valid {
			idx[i] = i
		}
	}

	filteredLat := make([]float64, len(idx))
	filteredLon := make([]float64, len(idx))
	filteredAlt := make([]float64, len(idx))
	filteredReadings := make([]model.Reading, len(idx))
	for i, j := range idx {
		filteredLat[i] = lats[j]
		filteredLon[i] = lons[j]
		filteredAlt[i] = alts[j]
		filteredReadings[i] = valid[j]
	}

	weights, haveWeights := a.weightsFor(valid, lats, filteredLat)

	scorer, ok := LookupScorer(a.cfg.ScorerName)
	if !ok {
		scorer, _ = LookupScorer("iqr_median")
	}
	cLat, err := scorer.Score(filteredLat, weights)
	if err != nil {
		return Outcome{Err: model.New(model.KindNoConsensus, err.Error())}
	}
	cLon, err := scorer.Score(filteredLon, weights)
	if err != nil {
		return Outcome{Err: model.New(model.KindNoConsensus, err.Error())}
	}
	cAlt := median(filteredAlt)

	// Spatial tolerance: outlier_tolerance has no fractional-of-value
	// meaning for a coordinate pair, so the absolute floor doubles as the
	// consensus distance tolerance, in the same units as GPSValue.Lat/Lon.
	tau := a.cfg.AbsoluteFloor

	agreeCount := 0
	agreeWeight := 0.0
	totalWeight := 0.0
	for i := range filteredReadings {
		w := 1.0
		if haveWeights && i < len(weights) {
			w = weights[i]
		}
		totalWeight += w
		if gpsDistance(filteredLat[i], filteredLon[i], cLat, cLon) <= tau {
			agreeCount++
			agreeWeight += w
		}
	}
	var ratio float64
	if haveWeights && totalWeight > 0 {
		ratio = agreeWeight / totalWeight
	} else {
		ratio = float64(agreeCount) / float64(len(filteredReadings))
	}
	if ratio < a.cfg.ConsensusThreshold {
		return Outcome{Err: model.New(model.KindNoConsensus, "consensus ratio below threshold")}
	}

	method := model.MethodMedianIQR
	if haveWeights {
		method = model.MethodWeightedMedianIQR
	}

	maxTs := valid[0].Timestamp
	for _, r := range valid {
		if r.Timestamp.After(maxTs) {
			maxTs = r.Timestamp
		}
	}

	result := &model.ConsensusResult{
		SensorID: valid[0].SensorID,
		GPS: &model.GPSValue{
			Lat: cLat,
			Lon: cLon,
			Alt: cAlt,
		},
		Timestamp:         maxTs,
		Confidence:        clamp01(ratio),
		NodesParticipated: len(valid),
		OutliersRemoved:   len(valid) - len(idx),
		Method:            method,
	}

	flags := detectMaliciousGPS(valid, cLat, cLon, tau)

	return Outcome{Result: result, Flags: flags}
}

// detectMaliciousGPS flags any reading whose coordinates fall outside tau
// of the consensus point, the coordinate-wise counterpart of
// detectMalicious's scalar deviation check.
func detectMaliciousGPS(valid []model.Reading, cLat, cLon, tau float64) []Flag {
	var flags []Flag
	for _, r := range valid {
		if r.GPS == nil {
			continue
		}
		if gpsDistance(r.GPS.Lat, r.GPS.Lon, cLat, cLon) > tau {
			flags = append(flags, Flag{NodeID: r.NodeID, Value: r.GPS.Lat, Reason: model.ReasonDataQualityLow})
		}
	}
	return flags
}

// gpsDistance is the planar Euclidean distance between two lat/lon points,
// sufficient at the local-consensus scale this aggregator operates at (no
// geodesic correction needed over the distances outlier detection cares
// about).
func gpsDistance(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := lat1 - lat2
	dLon := lon1 - lon2
	return math.Sqrt(dLat*dLat + dLon*dLon)
}

// intersectSorted returns the sorted intersection of two ascending,
// duplicate-free index slices.
func intersectSorted(a, b []int) []int {
	var out []int
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			out = append(out, a[i])
			i++
			j++
		case a[i] < b[j]:
			i++
		default:
			j++
		}
	}
	return out
}
