package validator

import (
	"testing"

	"github.com/go-playground/validator/v10"
)

type folderPayload struct {
	ProjectID string  `json:"project_id" validate:"required"`
	Name      string  `json:"name" validate:"notblank,max=255"`
	ParentID  *string `json:"parent_id" validate:"omitempty,notblank"`
	Role      string  `json:"role" validate:"omitempty,oneof=owner admin editor viewer"`
}

func TestValidateStructSuccess(t *testing.T) {
	parent := "f1"
	payload := folderPayload{ProjectID: "p1", Name: "Designs", ParentID: &parent, Role: "editor"}

	if err := ValidateStruct(payload); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestValidateStructFailures(t *testing.T) {
	payload := folderPayload{Name: "   ", Role: "guest"}

	err := ValidateStruct(payload)
	if err == nil {
		t.Fatal("expected validation error")
	}

	vErrs, ok := err.(ValidationErrors)
	if !ok {
		t.Fatalf("expected ValidationErrors, got %T", err)
	}
	if len(vErrs) != 3 {
		t.Fatalf("expected 3 validation errors, got %d: %v", len(vErrs), vErrs)
	}

	fields := map[string]string{}
	for _, v := range vErrs {
		fields[v.Field] = v.Tag
	}
	if fields["project_id"] != "required" || fields["name"] != "notblank" || fields["role"] != "oneof" {
		t.Fatalf("unexpected failures: %v", fields)
	}
}

func TestRegisterValidation(t *testing.T) {
	type payload struct {
		Value string `validate:"even_len"`
	}

	if err := RegisterValidation("even_len", func(fl validator.FieldLevel) bool {
		return len(fl.Field().String())%2 == 0
	}); err != nil {
		t.Fatalf("register validation: %v", err)
	}

	if err := ValidateStruct(payload{Value: "ab"}); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if err := ValidateStruct(payload{Value: "abc"}); err == nil {
		t.Fatal("expected failure for odd length")
	}
}
