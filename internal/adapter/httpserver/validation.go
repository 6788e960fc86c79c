package httpserver

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/fairyhunter13/quantum-task-queue/internal/domain"
)

// submitRequest is the POST /tasks body. Shots is a pointer so an explicit
// 0 fails validation instead of reading as absent; nil defaults downstream
// to domain.DefaultShots.
type submitRequest struct {
	Circuit string `json:"circuit" validate:"required,min=1"`
	Shots   *int   `json:"shots" validate:"omitempty,min=1,max=100000"`
}

var (
	vldOnce sync.Once
	vld     *validator.Validate
)

func getValidator() *validator.Validate {
	vldOnce.Do(func() { vld = validator.New() })
	return vld
}

// validateSubmit returns per-field reasons, empty when the request is valid.
func validateSubmit(req submitRequest) map[string]string {
	err := getValidator().Struct(req)
	if err == nil {
		return nil
	}
	details := map[string]string{}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		details["body"] = "invalid request"
		return details
	}
	for _, fe := range verrs {
		details[jsonField(fe.Field())] = reasonFor(fe)
	}
	return details
}

func jsonField(structField string) string { return strings.ToLower(structField) }

func reasonFor(fe validator.FieldError) string {
	switch fe.Field() {
	case "Circuit":
		return "circuit must not be empty"
	case "Shots":
		return fmt.Sprintf("shots must be between %d and %d", domain.MinShots, domain.MaxShots)
	}
	return fe.Tag()
}
