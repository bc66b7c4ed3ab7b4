package schema

import (
	"strings"
	"testing"

	"helpdesk/internal/domain"
)

const validYAML = `
intents:
  fee_payment:
    description: Paying university fees
    required_slots: [fee_type]
    optional_slots: [fee_amount]
    followup_questions:
      fee_type: "Which type of fee are you asking about?"
    response_template: "To pay your {{.fee_type}} fee, visit the finance office."
  registration_help:
    description: Course registration help
    required_slots: [semester, year]
    followup_questions:
      semester: "Which semester are you referring to?"
      year: "Which academic year are you asking about?"
    response_template: "Registration for semester {{.semester}}, {{.year}}."
slots:
  fee_type:
    type: text
  fee_amount:
    type: number
  semester:
    type: text
  year:
    type: number
`

func TestParseValid(t *testing.T) {
	r, err := Parse([]byte(validYAML))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	spec, ok := r.Spec("fee_payment")
	if !ok {
		t.Fatalf("fee_payment not found")
	}
	if len(spec.RequiredSlots) != 1 || spec.RequiredSlots[0] != "fee_type" {
		t.Fatalf("required_slots = %v, want [fee_type]", spec.RequiredSlots)
	}
	if spec.FollowupQuestions["fee_type"] == "" {
		t.Fatalf("missing follow-up question for fee_type")
	}

	if _, ok := r.Spec("unknown_intent"); ok {
		t.Fatalf("expected unknown intent to be absent")
	}

	kind, ok := r.SlotKind("fee_amount")
	if !ok || kind != domain.SlotNumber {
		t.Fatalf("fee_amount kind = %v ok=%v, want number", kind, ok)
	}
}

func TestListKeepsDeclarationOrder(t *testing.T) {
	r, err := Parse([]byte(validYAML))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	list := r.List()
	if len(list) != 2 {
		t.Fatalf("len(list) = %d, want 2", len(list))
	}
	if list[0].Name != "fee_payment" || list[1].Name != "registration_help" {
		t.Fatalf("order = [%s %s], want [fee_payment registration_help]", list[0].Name, list[1].Name)
	}
}

func TestParseRejectsDuplicateIntent(t *testing.T) {
	yaml := `
intents:
  fee_payment:
    required_slots: [fee_type]
    followup_questions:
      fee_type: "Which fee?"
  fee_payment:
    required_slots: [fee_type]
    followup_questions:
      fee_type: "Which fee?"
slots:
  fee_type:
    type: text
`
	if _, err := Parse([]byte(yaml)); err == nil || !strings.Contains(err.Error(), "duplicate intent") {
		t.Fatalf("err = %v, want duplicate intent error", err)
	}
}

func TestParseRejectsFollowupForNonRequiredSlot(t *testing.T) {
	yaml := `
intents:
  fee_payment:
    required_slots: [fee_type]
    optional_slots: [fee_amount]
    followup_questions:
      fee_type: "Which fee?"
      fee_amount: "How much?"
slots:
  fee_type:
    type: text
  fee_amount:
    type: number
`
	if _, err := Parse([]byte(yaml)); err == nil || !strings.Contains(err.Error(), "not a required slot") {
		t.Fatalf("err = %v, want non-required follow-up error", err)
	}
}

func TestParseRejectsOverlappingRequiredOptional(t *testing.T) {
	yaml := `
intents:
  fee_payment:
    required_slots: [fee_type]
    optional_slots: [fee_type]
    followup_questions:
      fee_type: "Which fee?"
slots:
  fee_type:
    type: text
`
	if _, err := Parse([]byte(yaml)); err == nil || !strings.Contains(err.Error(), "both required and optional") {
		t.Fatalf("err = %v, want overlap error", err)
	}
}

func TestParseRejectsUndefinedSlot(t *testing.T) {
	yaml := `
intents:
  fee_payment:
    required_slots: [fee_type]
    followup_questions:
      fee_type: "Which fee?"
slots:
  department:
    type: text
`
	if _, err := Parse([]byte(yaml)); err == nil || !strings.Contains(err.Error(), "not defined in slots section") {
		t.Fatalf("err = %v, want undefined slot error", err)
	}
}

func TestParseRejectsMissingFollowupQuestion(t *testing.T) {
	yaml := `
intents:
  registration_help:
    required_slots: [semester, year]
    followup_questions:
      semester: "Which semester?"
slots:
  semester:
    type: text
  year:
    type: number
`
	if _, err := Parse([]byte(yaml)); err == nil || !strings.Contains(err.Error(), "no follow-up question") {
		t.Fatalf("err = %v, want missing follow-up error", err)
	}
}

func TestParseRejectsBadSlotType(t *testing.T) {
	yaml := `
intents:
  fee_payment:
    required_slots: [fee_type]
    followup_questions:
      fee_type: "Which fee?"
slots:
  fee_type:
    type: boolean
`
	if _, err := Parse([]byte(yaml)); err == nil || !strings.Contains(err.Error(), "unknown type") {
		t.Fatalf("err = %v, want unknown type error", err)
	}
}

func TestShippedCatalogIsValid(t *testing.T) {
	r, err := Load("../../config/intents.yaml")
	if err != nil {
		t.Fatalf("shipped catalog failed to load: %v", err)
	}

	list := r.List()
	if len(list) != 10 {
		t.Fatalf("len(list) = %d, want 10", len(list))
	}
	if list[0].Name != "admission_inquiry" {
		t.Fatalf("first intent = %s, want admission_inquiry", list[0].Name)
	}

	fee, ok := r.Spec("fee_payment")
	if !ok {
		t.Fatalf("fee_payment missing from shipped catalog")
	}
	if len(fee.RequiredSlots) != 1 || fee.RequiredSlots[0] != "fee_type" {
		t.Fatalf("fee_payment required = %v, want [fee_type]", fee.RequiredSlots)
	}

	if kind, _ := r.SlotKind("year"); kind != domain.SlotNumber {
		t.Fatalf("year kind = %v, want number", kind)
	}
}

func TestSpecCopiesOut(t *testing.T) {
	r, err := Parse([]byte(validYAML))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	spec, _ := r.Spec("registration_help")
	spec.RequiredSlots[0] = "mutated"
	spec.FollowupQuestions["semester"] = "mutated"

	again, _ := r.Spec("registration_help")
	if again.RequiredSlots[0] != "semester" {
		t.Fatalf("registry slice mutated through copy")
	}
	if again.FollowupQuestions["semester"] != "Which semester are you referring to?" {
		t.Fatalf("registry map mutated through copy")
	}
}
