package attendance

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Sales form field IDs, also used as metric labels.
const (
	FieldModel       = "modelo"
	FieldGross       = "monto_bruto"
	FieldSubscribers = "fans_suscritos"
)

// Length bounds of the sales form inputs.
const (
	MaxModelLength  = 100
	MaxAmountLength = 20
)

// ValidationError rejects a sales form submission before anything is recorded.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// SalesForm is the raw text submitted through the logout modal. Its tags also lay
// out the modal; max must match MaxModelLength and MaxAmountLength.
type SalesForm struct {
	Model       string `discord:"modelo,label:MODELO,placeholder:Ingresa el modelo trabajado...,max:100"`
	Gross       string `discord:"monto_bruto,label:Monto Bruto:,placeholder:Ejemplo: 150.50,max:20"`
	Subscribers string `discord:"fans_suscritos,label:Fans Suscritos:,placeholder:Ejemplo: 25,max:20"`
}

// Parse validates the form and builds the sales report.
func (f SalesForm) Parse() (SalesReport, error) {
	model, err := ParseModel(f.Model)
	if err != nil {
		return SalesReport{}, err
	}
	gross, err := ParseGross(f.Gross)
	if err != nil {
		return SalesReport{}, err
	}
	subscribers, err := ParseSubscribers(f.Subscribers)
	if err != nil {
		return SalesReport{}, err
	}
	return NewSalesReport(model, gross, subscribers), nil
}

// ParseModel trims the label and checks it is present and bounded.
func ParseModel(raw string) (string, error) {
	model := strings.TrimSpace(raw)
	if model == "" {
		return "", &ValidationError{Field: FieldModel, Message: "El modelo es obligatorio."}
	}
	if utf8.RuneCountInString(model) > MaxModelLength {
		return "", &ValidationError{
			Field:   FieldModel,
			Message: fmt.Sprintf("El modelo no puede superar %d caracteres.", MaxModelLength),
		}
	}
	return model, nil
}

// ParseGross strips currency decoration and parses a finite, non-negative amount.
func ParseGross(raw string) (float64, error) {
	cleaned := strings.TrimSpace(strings.NewReplacer("$", "", ",", "").Replace(raw))
	invalid := &ValidationError{
		Field:   FieldGross,
		Message: "El monto bruto debe ser un número válido mayor o igual a 0.",
	}
	if cleaned == "" {
		return 0, invalid
	}
	gross, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || math.IsNaN(gross) || math.IsInf(gross, 0) || gross < 0 {
		return 0, invalid
	}
	// The net is computed in cents and must stay finite.
	if math.IsInf(gross*NetShare*100, 0) {
		return 0, &ValidationError{Field: FieldGross, Message: "El monto bruto es demasiado grande."}
	}
	// Abs turns "-0" into 0.
	return math.Abs(gross), nil
}

// ParseSubscribers strips hash decoration and parses a non-negative integer.
func ParseSubscribers(raw string) (int, error) {
	cleaned := strings.TrimSpace(strings.NewReplacer("#", "", ",", "").Replace(raw))
	subscribers, err := strconv.Atoi(cleaned)
	if err != nil || subscribers < 0 {
		return 0, &ValidationError{
			Field:   FieldSubscribers,
			Message: "Los fans suscritos deben ser un número entero mayor o igual a 0.",
		}
	}
	return subscribers, nil
}
