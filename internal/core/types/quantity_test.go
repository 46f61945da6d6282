package types_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"traceledger/internal/core/types"
)

func TestParseQuantity(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    types.Quantity
		wantErr bool
	}{
		{name: "whole", in: "100", want: types.NewQuantity(100)},
		{name: "fraction", in: "12.5", want: 125_000},
		{name: "four digits", in: "1.2345", want: 12_345},
		{name: "trailing zero past scale", in: "1.23450", want: 12_345},
		{name: "leading dot", in: ".5", want: 5_000},
		{name: "trailing dot", in: "7.", want: types.NewQuantity(7)},
		{name: "signed", in: "-3.25", want: -32_500},
		{name: "plus sign", in: "+2", want: types.NewQuantity(2)},
		{name: "max whole units", in: "922337203685477.5807", want: types.Quantity(9223372036854775807)},
		{name: "fifth fractional digit", in: "1.23456", wantErr: true},
		{name: "integer overflow", in: "99999999999999999", wantErr: true},
		{name: "just past max", in: "922337203685477.5808", wantErr: true},
		{name: "exponent", in: "1e3", wantErr: true},
		{name: "exponent upper", in: "2.5E2", wantErr: true},
		{name: "empty", in: "  ", wantErr: true},
		{name: "garbage", in: "12a", wantErr: true},
		{name: "double dot", in: "1.2.3", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := types.ParseQuantity(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestQuantity_JSON(t *testing.T) {
	var body struct {
		Number types.Quantity `json:"number"`
		Text   types.Quantity `json:"text"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"number": 12.5, "text": "0.0001"}`), &body))
	assert.Equal(t, "12.5000", body.Number.String())
	assert.Equal(t, types.Quantity(1), body.Text)

	out, err := json.Marshal(body.Number)
	require.NoError(t, err)
	assert.Equal(t, "12.5000", string(out))

	assert.Error(t, json.Unmarshal([]byte(`{"number": 1.23456}`), &body))
	assert.Error(t, json.Unmarshal([]byte(`{"number": 1e2}`), &body))
}
