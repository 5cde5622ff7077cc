package forecast

import (
	"errors"
	"fmt"

	"stock-forecast/models"
)

// InsufficientDataError is returned synchronously from Predict/Backtest when
// the supplied history is shorter than the model's minimum. There is no
// meaningful partial result, so this is the one error class that propagates
// to the immediate caller instead of becoming a failed-status result.
type InsufficientDataError struct {
	Model    models.ModelKind
	Required int
	Got      int
}

func (e *InsufficientDataError) Error() string {
	if e.Model == "" {
		return fmt.Sprintf("need at least %d price points, got %d", e.Required, e.Got)
	}
	return fmt.Sprintf("%s: need at least %d price points, got %d", e.Model, e.Required, e.Got)
}

// IsInsufficientData reports whether err is an InsufficientDataError.
func IsInsufficientData(err error) bool {
	var ide *InsufficientDataError
	return errors.As(err, &ide)
}

// ModelUnavailableError indicates a request for a model kind that is not
// registered.
type ModelUnavailableError struct {
	Name string
}

func (e *ModelUnavailableError) Error() string {
	return fmt.Sprintf("Model %s not available", e.Name)
}

// FittingError wraps a numerical failure inside a model's fit or forecast
// step. It is caught at the forecaster boundary and converted into a
// failed-status result.
type FittingError struct {
	Model models.ModelKind
	Err   error
}

func (e *FittingError) Error() string {
	return fmt.Sprintf("%s: fitting failed: %v", e.Model, e.Err)
}

func (e *FittingError) Unwrap() error { return e.Err }
