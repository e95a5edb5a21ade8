package httpserver

import "testing"

type sampleRequest struct {
	Name string `validate:"required"`
	Age  int    `validate:"gte=0,lte=130"`
}

func TestValidateReportsRequiredField(t *testing.T) {
	err := Validate(sampleRequest{Age: 30})
	if err == nil {
		t.Fatal("expected a validation error for missing Name")
	}
}

func TestValidatePassesValidStruct(t *testing.T) {
	if err := Validate(sampleRequest{Name: "agent", Age: 5}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidateReportsOutOfRangeField(t *testing.T) {
	err := Validate(sampleRequest{Name: "agent", Age: 999})
	if err == nil {
		t.Fatal("expected a validation error for out-of-range Age")
	}
}
