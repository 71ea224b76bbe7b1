package bytesize

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// units in ascending order, each 1024 times the previous
var units = []string{"B", "KB", "MB", "GB", "TB", "PB", "EB", "ZB", "YB"}

var printer = message.NewPrinter(language.English)

func scale(bytes uint64) (float64, int) {
	val := float64(bytes)
	steps := 0
	for val > 1024 && steps < len(units)-1 {
		val /= 1024
		steps++
	}
	return val, steps
}

// Pretty formats bytes as "1.50 GB", optionally followed by the exact count
// with thousands separators.
func Pretty(bytes uint64, withBytes bool) string {
	val, steps := scale(bytes)
	if withBytes {
		return fmt.Sprintf("%.2f %s (%s bytes)", val, units[steps], printer.Sprintf("%d", bytes))
	}
	return fmt.Sprintf("%.2f %s", val, units[steps])
}

// Parse is the inverse of Pretty. A bare number is read as bytes; any
// other unit must be one Pretty produces.
func Parse(pretty string) (uint64, error) {
	fields := strings.Fields(pretty)
	if len(fields) == 0 || len(fields) > 2 {
		return 0, errors.Errorf("invalid size %q", pretty)
	}

	val, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid size %q", pretty)
	}
	if val < 0 {
		return 0, errors.Errorf("invalid size %q: negative", pretty)
	}
	if len(fields) == 1 {
		return uint64(val), nil
	}

	unit := strings.ToUpper(fields[1])
	for steps, u := range units {
		if u == unit {
			return uint64(val * math.Pow(1024, float64(steps))), nil
		}
	}
	return 0, errors.Errorf("invalid size %q: unknown unit %q", pretty, fields[1])
}

// Numeric returns the number Pretty would display, without its unit
func Numeric(bytes uint64) float64 {
	val, _ := scale(bytes)
	return val
}

// Step returns an increment for size inputs: one unit of the denomination
// Pretty would use for bytes.
func Step(bytes uint64) float64 {
	_, steps := scale(bytes)
	return math.Pow(1024, float64(steps))
}
