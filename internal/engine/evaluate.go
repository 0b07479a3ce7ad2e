package engine

import "math"

const eqTolerance = 1e-9

// Evaluate reports whether every condition holds against the snapshot.
// Conditions on absent metrics are false, so is an empty list.
func Evaluate(conditions []Condition, snap MetricSnapshot) bool {
	if len(conditions) == 0 {
		return false
	}
	for _, c := range conditions {
		if !holds(c, snap) {
			return false
		}
	}
	return true
}

func holds(c Condition, snap MetricSnapshot) bool {
	v, ok := snap.Value(c.Metric)
	if !ok {
		return false
	}
	switch c.Operator {
	case OpLT:
		return v < c.Threshold
	case OpLTE:
		return v <= c.Threshold
	case OpGT:
		return v > c.Threshold
	case OpGTE:
		return v >= c.Threshold
	case OpEQ:
		return math.Abs(v-c.Threshold) <= eqTolerance
	default:
		return false
	}
}
