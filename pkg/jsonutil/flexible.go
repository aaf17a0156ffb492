// Package jsonutil handles loosely-typed JSON values from classifier output,
// where models return numbers as strings and vice versa.
package jsonutil

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// FlexibleString converts a json.RawMessage to a string, handling cases
// where a model returns a number or boolean instead. Returns empty string
// for null/empty.
func FlexibleString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}

	var strVal string
	if err := json.Unmarshal(raw, &strVal); err == nil {
		return strVal
	}

	var numVal float64
	if err := json.Unmarshal(raw, &numVal); err == nil {
		if numVal == float64(int64(numVal)) {
			return fmt.Sprintf("%d", int64(numVal))
		}
		return fmt.Sprintf("%g", numVal)
	}

	var boolVal bool
	if err := json.Unmarshal(raw, &boolVal); err == nil {
		return fmt.Sprintf("%t", boolVal)
	}

	return string(raw)
}

// FlexibleFloat converts a json.RawMessage to a float64, handling cases
// where a model returns the number as a quoted string ("3" or "2.5").
// Returns 0 for null, empty, or unparseable values.
func FlexibleFloat(raw json.RawMessage) float64 {
	if len(raw) == 0 || string(raw) == "null" {
		return 0
	}

	var numVal float64
	if err := json.Unmarshal(raw, &numVal); err == nil {
		return numVal
	}

	var strVal string
	if err := json.Unmarshal(raw, &strVal); err == nil {
		parsed, err := strconv.ParseFloat(strings.TrimSpace(strVal), 64)
		if err == nil {
			return parsed
		}
	}

	return 0
}
