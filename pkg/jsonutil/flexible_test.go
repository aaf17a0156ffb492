package jsonutil

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFlexibleString(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"plain string", `"12"`, "12"},
		{"integer", `12`, "12"},
		{"float", `2.5`, "2.5"},
		{"bool", `true`, "true"},
		{"null", `null`, ""},
		{"empty", ``, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FlexibleString(json.RawMessage(tt.raw)))
		})
	}
}

func TestFlexibleFloat(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want float64
	}{
		{"number", `0.85`, 0.85},
		{"integer", `40`, 40},
		{"quoted number", `"0.85"`, 0.85},
		{"quoted with spaces", `" 12 "`, 12},
		{"null", `null`, 0},
		{"empty", ``, 0},
		{"garbage string", `"lots"`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FlexibleFloat(json.RawMessage(tt.raw)))
		})
	}
}
