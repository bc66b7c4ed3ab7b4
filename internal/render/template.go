package render

import (
	"context"
	"fmt"
	"strings"
	"text/template"

	"helpdesk/internal/schema"
)

// TemplateRenderer renders answers from the registry's response templates.
// It serves deployments without a remote knowledge-base renderer.
type TemplateRenderer struct {
	registry *schema.Registry
}

func NewTemplateRenderer(registry *schema.Registry) *TemplateRenderer {
	return &TemplateRenderer{registry: registry}
}

func (r *TemplateRenderer) Render(_ context.Context, intentName string, slots map[string]string) (string, error) {
	spec, ok := r.registry.Spec(intentName)
	if !ok || strings.TrimSpace(spec.ResponseTemplate) == "" {
		return "", fmt.Errorf("%w: intent %q", ErrTemplateMissing, intentName)
	}

	tmpl, err := template.New(intentName).Option("missingkey=zero").Parse(spec.ResponseTemplate)
	if err != nil {
		return "", fmt.Errorf("parse template for %q: %w", intentName, err)
	}

	var sb strings.Builder
	if err := tmpl.Execute(&sb, slots); err != nil {
		return "", fmt.Errorf("render template for %q: %w", intentName, err)
	}
	return sb.String(), nil
}
