package catalog

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"text/template"

	"github.com/YoshitsuguKoike/gatechain/internal/application/port/output"
)

// Renderer renders prompt templates with text/template. Chain context
// variables are visible alongside the step's arguments; arguments win.
type Renderer struct{}

var _ output.PromptRenderer = Renderer{}

// Render produces the text handed to the caller for one step
func (Renderer) Render(_ context.Context, prompt output.PromptInfo, args map[string]interface{}, chainCtx map[string]interface{}) (string, error) {
	data := make(map[string]interface{}, len(chainCtx)+len(args))
	for k, v := range chainCtx {
		data[k] = v
	}
	for k, v := range args {
		data[k] = v
	}

	if strings.TrimSpace(prompt.Template) == "" {
		return fallback(prompt, args), nil
	}

	tmpl, err := template.New(prompt.ID).Option("missingkey=zero").Parse(prompt.Template)
	if err != nil {
		return "", fmt.Errorf("parse template %s: %w", prompt.ID, err)
	}
	var b strings.Builder
	if err := tmpl.Execute(&b, data); err != nil {
		return "", fmt.Errorf("render template %s: %w", prompt.ID, err)
	}
	return strings.ReplaceAll(b.String(), "<no value>", ""), nil
}

// fallback describes a prompt that has no template
func fallback(prompt output.PromptInfo, args map[string]interface{}) string {
	var b strings.Builder
	title := prompt.Name
	if title == "" {
		title = prompt.ID
	}
	fmt.Fprintf(&b, "# %s\n", title)
	if prompt.Description != "" {
		fmt.Fprintf(&b, "\n%s\n", prompt.Description)
	}
	if len(args) > 0 {
		keys := make([]string, 0, len(args))
		for k := range args {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("\n## Arguments\n")
		for _, k := range keys {
			fmt.Fprintf(&b, "- %s: %v\n", k, args[k])
		}
	}
	return b.String()
}
