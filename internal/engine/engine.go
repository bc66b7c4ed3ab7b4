// Package engine holds the slot-filling decision logic. Advance is pure: it
// never touches the store and never blocks, so turns are reproducible given
// the same state and extraction.
package engine

import (
	"strconv"
	"strings"
	"time"

	"helpdesk/internal/domain"
)

// Thresholds centralizes the two confidence cut-offs the dialogue policy
// depends on.
type Thresholds struct {
	// MinAcceptConfidence is the floor below which a classification cannot
	// start a new conversation topic.
	MinAcceptConfidence float64
	// ReclassifyConfidence is how confident a new, different intent label
	// must be to override the current topic mid-conversation.
	ReclassifyConfidence float64
}

// SchemaSource is the read-only registry view the engine needs.
type SchemaSource interface {
	Spec(name string) (domain.IntentSpec, bool)
	SlotKind(name string) (domain.SlotKind, bool)
}

var dateLayouts = []string{"2006-01-02", "January 2, 2006", "Jan 2, 2006"}

// Advance applies one extraction result to a session snapshot and decides the
// next action: clarify, ask a follow-up for the first missing required slot,
// or respond. The input state is not mutated.
func Advance(state *domain.ConversationState, extraction domain.ExtractionResult, schema SchemaSource, th Thresholds) (*domain.ConversationState, domain.Action) {
	next := state.Clone()
	next.TurnCount++

	spec, ok := resolveIntent(next, extraction, schema, th)
	if !ok {
		// No usable intent yet: ask the user to rephrase, leaving no slot
		// state behind.
		return next, domain.Action{Type: domain.ActionClarify}
	}

	mergeSlots(next, spec, extraction, schema)

	missing := spec.MissingSlots(next.Slots)
	if len(missing) == 0 {
		next.Phase = domain.PhaseComplete
		return next, domain.Action{Type: domain.ActionRespond}
	}

	next.Phase = domain.PhaseSlotFilling
	first := missing[0]
	return next, domain.Action{
		Type:     domain.ActionAskFollowup,
		Slot:     first,
		Question: spec.FollowupQuestions[first],
	}
}

// resolveIntent picks the intent this turn runs under, switching topics only
// on a confident re-classification. A topic switch discards all filled slots.
func resolveIntent(state *domain.ConversationState, extraction domain.ExtractionResult, schema SchemaSource, th Thresholds) (domain.IntentSpec, bool) {
	if state.Intent == "" {
		if extraction.Confidence < th.MinAcceptConfidence {
			return domain.IntentSpec{}, false
		}
		spec, ok := schema.Spec(extraction.Intent)
		if !ok {
			return domain.IntentSpec{}, false
		}
		state.Intent = spec.Name
		state.Phase = domain.PhaseSlotFilling
		return spec, true
	}

	if extraction.Intent != "" && extraction.Intent != state.Intent && extraction.Confidence >= th.ReclassifyConfidence {
		if spec, ok := schema.Spec(extraction.Intent); ok {
			state.Intent = spec.Name
			state.Phase = domain.PhaseSlotFilling
			state.Slots = map[string]domain.SlotValue{}
			return spec, true
		}
	}

	// Continuing turn: the extraction's intent label is noise here.
	spec, ok := schema.Spec(state.Intent)
	return spec, ok
}

// mergeSlots writes the top valid candidate of each extracted slot into the
// state, last write wins. Slots outside the intent's vocabulary and values
// that fail their type rule are discarded.
func mergeSlots(state *domain.ConversationState, spec domain.IntentSpec, extraction domain.ExtractionResult, schema SchemaSource) {
	for name, candidates := range extraction.Slots {
		if !spec.HasSlot(name) {
			continue
		}
		kind, ok := schema.SlotKind(name)
		if !ok {
			kind = domain.SlotText
		}
		for _, candidate := range candidates {
			value, ok := parseSlotValue(kind, candidate)
			if ok {
				state.Slots[name] = value
				break
			}
		}
	}
}

func parseSlotValue(kind domain.SlotKind, raw string) (domain.SlotValue, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return domain.SlotValue{}, false
	}

	switch kind {
	case domain.SlotNumber:
		n, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", ""), 64)
		if err != nil {
			return domain.SlotValue{}, false
		}
		return domain.SlotValue{Kind: domain.SlotNumber, Number: n}, true
	case domain.SlotDate:
		for _, layout := range dateLayouts {
			if d, err := time.Parse(layout, raw); err == nil {
				return domain.SlotValue{Kind: domain.SlotDate, Date: d}, true
			}
		}
		return domain.SlotValue{}, false
	default:
		return domain.SlotValue{Kind: domain.SlotText, Text: strings.ToLower(raw)}, true
	}
}
