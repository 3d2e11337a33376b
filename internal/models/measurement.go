package models

type MeasurementResult struct {
	ID          int64    `json:"id"`
	ResultID    int64    `json:"resultId"`
	Nominal     float64  `json:"nominalValue"`
	Measured    float64  `json:"measuredValue"`
	Error       float64  `json:"error"`
	Uncertainty *float64 `json:"uncertainty,omitempty"`
}

type MeasurementInput struct {
	Nominal     float64
	Measured    float64
	Uncertainty *float64
}

// MeasurementError is the only way the error of a point is derived.
func MeasurementError(nominal, measured float64) float64 {
	return measured - nominal
}

// NewMeasurement builds a point with its error derived from the inputs.
func NewMeasurement(resultID int64, in MeasurementInput) MeasurementResult {
	return MeasurementResult{
		ResultID:    resultID,
		Nominal:     in.Nominal,
		Measured:    in.Measured,
		Error:       MeasurementError(in.Nominal, in.Measured),
		Uncertainty: in.Uncertainty,
	}
}
