package pipeline

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YoshitsuguKoike/gatechain/internal/domain/chain"
	"github.com/YoshitsuguKoike/gatechain/internal/domain/gate"
)

func TestRequest_DecodeMixedGates(t *testing.T) {
	raw := `{
		"command": ">>research",
		"gates": [
			"clarity",
			{"name": "Code Quality", "description": "no dead code"},
			{"id": "sec", "criteria": ["no secrets"], "blocking": true, "mode": "advisory"}
		],
		"options": {"gate_mode": "informational", "gates_disabled": true}
	}`
	var req Request
	require.NoError(t, json.Unmarshal([]byte(raw), &req))
	require.NoError(t, req.Validate())
	require.Len(t, req.Gates, 3)

	assert.False(t, req.Gates[0].Temporary)
	assert.Equal(t, "clarity", req.Gates[0].Key())

	assert.True(t, req.Gates[1].Temporary)
	assert.Equal(t, "code-quality", req.Gates[1].Key())
	assert.Equal(t, []string{"no dead code"}, req.Gates[1].ReviewCriteria())

	assert.True(t, req.Gates[2].Blocking)
	assert.Equal(t, gate.ModeAdvisory, req.Gates[2].Mode)
	assert.Equal(t, []string{"no secrets"}, req.Gates[2].ReviewCriteria())

	assert.Equal(t, gate.ModeInformational, req.GateMode())
	assert.True(t, req.GatesDisabled())
}

func TestRequest_RejectsBadGates(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"Empty id", `{"gates": [""]}`},
		{"Number", `{"gates": [42]}`},
		{"No id or name", `{"gates": [{"description": "x"}]}`},
		{"Unknown mode", `{"gates": [{"id": "x", "mode": "strict"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req Request
			assert.Error(t, json.Unmarshal([]byte(tt.raw), &req))
		})
	}
}

func TestGateInput_MarshalKeepsShape(t *testing.T) {
	gates := []GateInput{
		{Definition: gate.Definition{ID: "clarity"}},
		{Definition: gate.Definition{Name: "Tone", Description: "friendly"}, Temporary: true},
	}
	data, err := json.Marshal(gates)
	require.NoError(t, err)
	assert.JSONEq(t, `["clarity", {"id": "", "name": "Tone", "description": "friendly"}]`, string(data))
}

func TestRequest_ValidateChainContinuation(t *testing.T) {
	assert.NoError(t, Request{ChainID: "chain-a#1", GateAction: "skip"}.Validate())
	assert.Error(t, Request{GateVerdict: "GATE_REVIEW: PASS - ok"}.Validate())
}

func TestErrorResponse_MapsChainErrors(t *testing.T) {
	resp := errorResponse(chain.ErrSessionNotFound.WithDetails(map[string]interface{}{"chainId": "x"}))
	assert.Equal(t, StatusError, resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "CHAIN_SESSION_NOT_FOUND", resp.Error.Kind)
	assert.Equal(t, "x", resp.Error.Details["chainId"])
}
