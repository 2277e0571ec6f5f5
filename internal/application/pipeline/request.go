package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/YoshitsuguKoike/gatechain/internal/domain/gate"
)

var requestValidate = validator.New()

// Request is one inbound call from the transport layer
type Request struct {
	Command      string                 `json:"command,omitempty" validate:"required_without=ChainID,max=20000"`
	ChainID      string                 `json:"chain_id,omitempty" validate:"max=512"`
	GateVerdict  string                 `json:"gate_verdict,omitempty" validate:"max=20000"`
	GateAction   string                 `json:"gate_action,omitempty" validate:"omitempty,oneof=retry skip abort"`
	UserResponse string                 `json:"user_response,omitempty"`
	ForceRestart bool                   `json:"force_restart,omitempty"`
	Gates        []GateInput            `json:"gates,omitempty" validate:"max=50"`
	Options      map[string]interface{} `json:"options,omitempty"`
}

// Request options understood by the engine
const (
	OptionGateMode      = "gate_mode"
	OptionGatesDisabled = "gates_disabled"
)

// Validate checks the request shape
func (r Request) Validate() error {
	if err := requestValidate.Struct(r); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid request: field %s failed %q", fe.Field(), fe.Tag())
		}
		return fmt.Errorf("invalid request: %w", err)
	}
	if mode, ok := r.Options[OptionGateMode].(string); ok && mode != "" && !gate.EnforcementMode(mode).IsValid() {
		return fmt.Errorf("invalid request: unknown gate_mode %q", mode)
	}
	return nil
}

// GateMode returns the per-request enforcement override, empty when unset
func (r Request) GateMode() gate.EnforcementMode {
	mode, _ := r.Options[OptionGateMode].(string)
	return gate.EnforcementMode(mode)
}

// GatesDisabled reports whether the caller turned gates off for this request
func (r Request) GatesDisabled() bool {
	v, _ := r.Options[OptionGatesDisabled].(bool)
	return v
}

// GateInput is one entry of the request's gates list: a gate ID string, a
// simple {name, description} check or a full definition.
type GateInput struct {
	gate.Definition
	Temporary bool `json:"-"`
}

func (g *GateInput) UnmarshalJSON(data []byte) error {
	var id string
	if err := json.Unmarshal(data, &id); err == nil {
		id = strings.TrimSpace(id)
		if id == "" {
			return errors.New("gate id must not be empty")
		}
		*g = GateInput{Definition: gate.Definition{ID: id}}
		return nil
	}

	var def gate.Definition
	if err := json.Unmarshal(data, &def); err != nil {
		return fmt.Errorf("gate must be an id string or an object: %w", err)
	}
	if def.Key() == "" {
		return errors.New("gate object needs an id or a name")
	}
	if def.Mode != "" && !def.Mode.IsValid() {
		return fmt.Errorf("gate %s: unknown mode %q", def.Key(), def.Mode)
	}
	*g = GateInput{Definition: def, Temporary: true}
	return nil
}

func (g GateInput) MarshalJSON() ([]byte, error) {
	if !g.Temporary {
		return json.Marshal(g.ID)
	}
	return json.Marshal(g.Definition)
}

// ReviewCriteria returns what the reviewer checks for this gate
func (g GateInput) ReviewCriteria() []string {
	if len(g.Definition.Criteria) > 0 {
		return g.Definition.Criteria
	}
	if d := strings.TrimSpace(g.Description); d != "" {
		return []string{d}
	}
	return nil
}
