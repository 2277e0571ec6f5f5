package output

import "context"

// PromptCatalog looks up prompt definitions by ID or display name
type PromptCatalog interface {
	FindByID(id string) (*PromptInfo, bool)
	List() []PromptInfo
}

// PromptInfo describes one executable prompt
type PromptInfo struct {
	ID          string         `json:"id" yaml:"id"`
	Name        string         `json:"name" yaml:"name"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	Category    string         `json:"category,omitempty" yaml:"category,omitempty"`
	Gates       []string       `json:"gates,omitempty" yaml:"gates,omitempty"`
	Template    string         `json:"template,omitempty" yaml:"template,omitempty"`
	Arguments   []ArgumentSpec `json:"arguments,omitempty" yaml:"arguments,omitempty"`
}

// ArgumentSpec describes one prompt argument
type ArgumentSpec struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Required    bool   `json:"required,omitempty" yaml:"required,omitempty"`
}

// PromptRenderer turns a prompt plus arguments into the text handed to the caller
type PromptRenderer interface {
	Render(ctx context.Context, prompt PromptInfo, args map[string]interface{}, chainCtx map[string]interface{}) (string, error)
}
