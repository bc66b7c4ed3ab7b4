package schema

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"helpdesk/internal/domain"
)

// Registry holds the intent catalog loaded from the intents YAML file. It is
// immutable after Load; getters copy out so callers cannot alias internals.
type Registry struct {
	intents   map[string]domain.IntentSpec
	order     []string
	slotKinds map[string]domain.SlotKind
}

type intentFile struct {
	Intents yaml.Node `yaml:"intents"`
	Slots   yaml.Node `yaml:"slots"`
}

type intentEntry struct {
	Description       string            `yaml:"description"`
	RequiredSlots     []string          `yaml:"required_slots"`
	OptionalSlots     []string          `yaml:"optional_slots"`
	FollowupQuestions map[string]string `yaml:"followup_questions"`
	ResponseTemplate  string            `yaml:"response_template"`
}

type slotEntry struct {
	Type        string `yaml:"type"`
	Description string `yaml:"description"`
}

// Load reads and validates the intents file. Any schema error is returned so
// the caller can refuse to start.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read intents file: %w", err)
	}
	return Parse(data)
}

// Parse builds a Registry from YAML bytes, preserving intent declaration order.
func Parse(data []byte) (*Registry, error) {
	var file intentFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse intents yaml: %w", err)
	}
	if file.Intents.Kind == 0 {
		return nil, fmt.Errorf("intents section is missing")
	}
	if file.Intents.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("intents section must be a mapping")
	}

	r := &Registry{
		intents:   map[string]domain.IntentSpec{},
		slotKinds: map[string]domain.SlotKind{},
	}

	if err := r.parseSlots(&file.Slots); err != nil {
		return nil, err
	}

	// Walk the mapping node directly: a plain map would silently drop
	// duplicate intent names and lose declaration order.
	content := file.Intents.Content
	for i := 0; i+1 < len(content); i += 2 {
		name := content[i].Value
		if name == "" {
			return nil, fmt.Errorf("intent with empty name at line %d", content[i].Line)
		}
		if _, dup := r.intents[name]; dup {
			return nil, fmt.Errorf("duplicate intent %q", name)
		}

		var entry intentEntry
		if err := content[i+1].Decode(&entry); err != nil {
			return nil, fmt.Errorf("intent %q: %w", name, err)
		}

		spec := domain.IntentSpec{
			Name:              name,
			Description:       entry.Description,
			RequiredSlots:     entry.RequiredSlots,
			OptionalSlots:     entry.OptionalSlots,
			FollowupQuestions: entry.FollowupQuestions,
			ResponseTemplate:  entry.ResponseTemplate,
		}
		if err := r.validateIntent(spec); err != nil {
			return nil, err
		}

		r.intents[name] = spec
		r.order = append(r.order, name)
	}

	if len(r.order) == 0 {
		return nil, fmt.Errorf("intents section is empty")
	}
	return r, nil
}

func (r *Registry) parseSlots(node *yaml.Node) error {
	if node.Kind == 0 {
		return fmt.Errorf("slots section is missing")
	}
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("slots section must be a mapping")
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		name := node.Content[i].Value
		if _, dup := r.slotKinds[name]; dup {
			return fmt.Errorf("duplicate slot %q", name)
		}
		var entry slotEntry
		if err := node.Content[i+1].Decode(&entry); err != nil {
			return fmt.Errorf("slot %q: %w", name, err)
		}
		kind := domain.SlotKind(entry.Type)
		if entry.Type == "" {
			kind = domain.SlotText
		}
		switch kind {
		case domain.SlotText, domain.SlotNumber, domain.SlotDate:
		default:
			return fmt.Errorf("slot %q: unknown type %q", name, entry.Type)
		}
		r.slotKinds[name] = kind
	}
	return nil
}

func (r *Registry) validateIntent(spec domain.IntentSpec) error {
	required := map[string]bool{}
	for _, s := range spec.RequiredSlots {
		if required[s] {
			return fmt.Errorf("intent %q: slot %q listed twice in required_slots", spec.Name, s)
		}
		required[s] = true
		if _, ok := r.slotKinds[s]; !ok {
			return fmt.Errorf("intent %q: required slot %q is not defined in slots section", spec.Name, s)
		}
	}
	for _, s := range spec.OptionalSlots {
		if required[s] {
			return fmt.Errorf("intent %q: slot %q is both required and optional", spec.Name, s)
		}
		if _, ok := r.slotKinds[s]; !ok {
			return fmt.Errorf("intent %q: optional slot %q is not defined in slots section", spec.Name, s)
		}
	}
	for s := range spec.FollowupQuestions {
		if !required[s] {
			return fmt.Errorf("intent %q: follow-up question for %q, which is not a required slot", spec.Name, s)
		}
	}
	for _, s := range spec.RequiredSlots {
		if q := spec.FollowupQuestions[s]; q == "" {
			return fmt.Errorf("intent %q: required slot %q has no follow-up question", spec.Name, s)
		}
	}
	return nil
}

// Spec returns the intent spec by name.
func (r *Registry) Spec(name string) (domain.IntentSpec, bool) {
	spec, ok := r.intents[name]
	if !ok {
		return domain.IntentSpec{}, false
	}
	return copySpec(spec), true
}

// List returns all intent specs in declaration order.
func (r *Registry) List() []domain.IntentSpec {
	out := make([]domain.IntentSpec, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, copySpec(r.intents[name]))
	}
	return out
}

// SlotKind returns the declared value type for a slot name.
func (r *Registry) SlotKind(name string) (domain.SlotKind, bool) {
	kind, ok := r.slotKinds[name]
	return kind, ok
}

func copySpec(spec domain.IntentSpec) domain.IntentSpec {
	out := spec
	out.RequiredSlots = append([]string(nil), spec.RequiredSlots...)
	out.OptionalSlots = append([]string(nil), spec.OptionalSlots...)
	out.FollowupQuestions = make(map[string]string, len(spec.FollowupQuestions))
	for k, v := range spec.FollowupQuestions {
		out.FollowupQuestions[k] = v
	}
	return out
}
