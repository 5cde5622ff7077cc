package models

// ModelKind identifies a registered forecaster. The set is closed: unknown
// kinds are rejected at the registry boundary with a failed result rather
// than a free-form string lookup.
type ModelKind string

const (
	ModelKindMovingAverage ModelKind = "moving_average"
	ModelKindARIMA         ModelKind = "arima"
	ModelKindRidge         ModelKind = "ridge"
	ModelKindRandomForest  ModelKind = "random_forest"
	ModelKindGradientBoost ModelKind = "gradient_boost"
	ModelKindLSTM          ModelKind = "lstm"
)

// AllModelKinds lists every registered forecaster kind in registry order.
func AllModelKinds() []ModelKind {
	return []ModelKind{
		ModelKindMovingAverage,
		ModelKindARIMA,
		ModelKindRidge,
		ModelKindRandomForest,
		ModelKindGradientBoost,
		ModelKindLSTM,
	}
}

// Valid reports whether k is one of the registered kinds.
func (k ModelKind) Valid() bool {
	for _, known := range AllModelKinds() {
		if k == known {
			return true
		}
	}
	return false
}
