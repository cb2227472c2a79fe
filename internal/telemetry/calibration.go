package telemetry

import (
	"fmt"
	"math"

	"github.com/RMahshie/voltsense/pkg/models"
)

// ValidateMultiplier rejects factors outside [0.8, 1.2]; both bounds are valid
func ValidateMultiplier(m float64) error {
	if math.IsNaN(m) || m < models.MinMultiplier || m > models.MaxMultiplier {
		return fmt.Errorf("%w: %g not in [%g, %g]", ErrMultiplierOutOfRange, m, models.MinMultiplier, models.MaxMultiplier)
	}
	return nil
}

// ClampMultiplier pins a factor into the accepted band
func ClampMultiplier(m float64) float64 {
	if math.IsNaN(m) {
		return models.DefaultMultiplier
	}
	return math.Min(models.MaxMultiplier, math.Max(models.MinMultiplier, m))
}

// ValidateBaudRate accepts only the two supported serial speeds
func ValidateBaudRate(baud int) error {
	switch baud {
	case models.BaudRate9600, models.BaudRate115200:
		return nil
	default:
		return fmt.Errorf("%w: %d", ErrUnsupportedBaudRate, baud)
	}
}

// ValidateCalibration checks both settings
func ValidateCalibration(c models.Calibration) error {
	if err := ValidateMultiplier(c.Multiplier); err != nil {
		return err
	}
	return ValidateBaudRate(c.BaudRate)
}
