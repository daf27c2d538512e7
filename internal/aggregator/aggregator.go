package aggregator

import (
	"sort"

	"github.com/rodiolabs/oraclenode/internal/model"
)

// Config holds the tunables from SPEC_FULL §6 consensus.* keys.
type Config struct {
	MinNodes            int
	ConsensusThreshold  float64 // default 0.8
	OutlierTolerance    float64 // default 0.05
	AbsoluteFloor       float64 // default 0.1
	ScorerName          string  // default "iqr_median"
	RequireMinStake     bool
}

// DefaultConfig returns the spec defaults.
func DefaultConfig() Config {
	return Config{
		MinNodes:           3,
		ConsensusThreshold: 0.8,
		OutlierTolerance:   0.05,
		AbsoluteFloor:      0.1,
		ScorerName:         "iqr_median",
	}
}

// ReputationLookup provides per-node consensus weight and stake. The
// Aggregator only ever reads through this interface; the reputation
// component is the sole writer of the underlying state.
type ReputationLookup interface {
	ConsensusWeight(nodeID string) (weight float64, known bool)
	Stake(nodeID string) (stake int64, known bool)
}

// Flag records a reading that deviated enough from the consensus value to
// warrant a reputation signal, without affecting this window's result.
type Flag struct {
	NodeID string
	Value  float64
	Reason model.SlashReason
}

// Outcome is the full result of one aggregation pass: either a
// ConsensusResult or a *model.Error describing why none was produced, plus
// any malicious-deviation flags raised as a side effect.
type Outcome struct {
	Result *model.ConsensusResult
	Err    *model.Error
	Flags  []Flag
}

// Aggregator runs the consensus pipeline for one window at a time; it holds
// no per-window state between calls, so one instance is safe to reuse
// across windows and sensors.
type Aggregator struct {
	cfg  Config
	rep  ReputationLookup
}

func New(cfg Config, rep ReputationLookup) *Aggregator {
	return &Aggregator{cfg: cfg, rep: rep}
}

// Aggregate runs steps 1-8 of the consensus core over readings, all of
// which must belong to the same (sensor_id, window_ts).
func (a *Aggregator) Aggregate(readings []model.Reading) Outcome {
	valid := make([]model.Reading, 0, len(readings))
	for _, r := range readings {
		if model.VerifySignature(r.Signature) {
			valid = append(valid, r)
		}
	}
	// Deterministic ordering by (sensor_id, node_id).
	sort.Slice(valid, func(i, j int) bool {
		if valid[i].SensorID != valid[j].SensorID {
			return valid[i].SensorID < valid[j].SensorID
		}
		return valid[i].NodeID < valid[j].NodeID
	})

	if len(valid) < a.cfg.MinNodes {
		return Outcome{Err: model.New(model.KindInsufficientContribs, "fewer than min_nodes valid contributors")}
	}

	if valid[0].SensorType == model.SensorGPS {
		return a.aggregateGPS(valid)
	}

	values := make([]float64, len(valid))
	for i, r := range valid {
		values[i] = r.Value
	}

	filtered, removed := iqrFilter(values)

	weights, haveWeights := a.weightsFor(valid, values, filtered)

	scorer, ok := LookupScorer(a.cfg.ScorerName)
	if !ok {
		scorer, _ = LookupScorer("iqr_median")
	}
	m, err := scorer.Score(filtered, weights)
	if err != nil {
		return Outcome{Err: model.New(model.KindNoConsensus, err.Error())}
	}

	// τ = max(|m|·outlier_tolerance, absolute_floor): the floor keeps the
	// tolerance from collapsing when the consensus value is at or near zero.
	tau := abs(m) * a.cfg.OutlierTolerance
	if tau < a.cfg.AbsoluteFloor {
		tau = a.cfg.AbsoluteFloor
	}

	agreeCount := 0
	agreeWeight := 0.0
	totalWeight := 0.0
	for i, v := range filtered {
		w := 1.0
		if haveWeights && i < len(weights) {
			w = weights[i]
		}
		totalWeight += w
		if abs(v-m) <= tau {
			agreeCount++
			agreeWeight += w
		}
	}
	var ratio float64
	if haveWeights && totalWeight > 0 {
		ratio = agreeWeight / totalWeight
	} else {
		ratio = float64(agreeCount) / float64(len(filtered))
	}

	if ratio < a.cfg.ConsensusThreshold {
		return Outcome{Err: model.New(model.KindNoConsensus, "consensus ratio below threshold")}
	}

	method := model.MethodMedianIQR
	if haveWeights {
		method = model.MethodWeightedMedianIQR
	}

	mu := mean(filtered)
	sd := stddev(filtered, mu)
	var confidence float64
	if len(filtered) <= 1 {
		confidence = 1.0
	} else if mu != 0 {
		cv := sd / abs(mu)
		confidence = clamp01(1 - cv)
	} else {
		confidence = clamp01(1 - 0)
	}

	maxTs := valid[0].Timestamp
	for _, r := range valid {
		if r.Timestamp.After(maxTs) {
			maxTs = r.Timestamp
		}
	}

	result := &model.ConsensusResult{
		SensorID:          valid[0].SensorID,
		Value:             m,
		Timestamp:         maxTs,
		Confidence:        confidence,
		NodesParticipated: len(valid),
		OutliersRemoved:   removed,
		Method:            method,
	}

	flags := detectMalicious(valid, m)

	return Outcome{Result: result, Flags: flags}
}

// weightsFor returns per-filtered-value reputation weights aligned to
// filtered, and whether weights were available at all. Values dropped by
// the IQR filter are excluded from the weight slice to stay index-aligned
// with filtered.
func (a *Aggregator) weightsFor(valid []model.Reading, values, filtered []float64) ([]float64, bool) {
	if a.rep == nil {
		return nil, false
	}
	byValue := make(map[float64][]model.Reading, len(valid))
	for i, v := range values {
		byValue[v] = append(byValue[v], valid[i])
	}
	weights := make([]float64, 0, len(filtered))
	any := false
	for _, v := range filtered {
		w := 1.0
		if rs, ok := byValue[v]; ok && len(rs) > 0 {
			r := rs[0]
			rs = rs[1:]
			byValue[v] = rs
			if wt, known := a.rep.ConsensusWeight(r.NodeID); known {
				w = wt
				any = true
			}
		}
		weights = append(weights, w)
	}
	return weights, any
}

// detectMalicious flags any reading deviating more than 10% from the
// consensus value m, as a side effect that does not alter this window's
// result.
func detectMalicious(valid []model.Reading, m float64) []Flag {
	threshold := abs(m) * 0.1
	var flags []Flag
	for _, r := range valid {
		if abs(r.Value-m) > threshold {
			flags = append(flags, Flag{NodeID: r.NodeID, Value: r.Value, Reason: model.ReasonDataQualityLow})
		}
	}
	return flags
}
