package service

import (
	"bytes"
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/trade-ledger/internal/models"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func inputValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		validate.RegisterTagNameFunc(jsonName)
	})
	return validate
}

func jsonName(f reflect.StructField) string {
	name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
	if name == "-" {
		return ""
	}
	if name == "" {
		return f.Name
	}
	return name
}

// checkStruct runs the declarative tag rules and collects every failure.
func checkStruct(v interface{}, verr *ValidationError) {
	err := inputValidator().Struct(v)
	if err == nil {
		return
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		verr.Add("body", err.Error())
		return
	}
	for _, fe := range fieldErrs {
		verr.Add(fe.Field(), ruleMessage(fe))
	}
}

func ruleMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "min":
		return "must be at least " + fe.Param()
	case "gte":
		return "must be >= " + fe.Param()
	}
	return "failed rule " + fe.Tag()
}

// DecodeInput decodes a JSON object into dst, a pointer to an input struct.
// Unlike encoding/json it keeps going after a type mismatch so that every
// mistyped field is reported in one ValidationError.
func DecodeInput(data []byte, dst interface{}) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return NewValidationError("body", "request body is empty")
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return NewValidationError("body", "must be a JSON object")
	}

	rv := reflect.ValueOf(dst).Elem()
	rt := rv.Type()
	verr := &ValidationError{}
	for i := 0; i < rt.NumField(); i++ {
		sf := rt.Field(i)
		if !sf.IsExported() {
			continue
		}
		name := jsonName(sf)
		msg, ok := raw[name]
		if !ok || name == "" {
			continue
		}
		target := reflect.New(sf.Type)
		if err := json.Unmarshal(msg, target.Interface()); err != nil {
			verr.Add(name, "has the wrong type")
			continue
		}
		rv.Field(i).Set(target.Elem())
	}
	return verr.OrNil()
}

// checkMoney enforces the fixed-point range and an optional lower bound.
func checkMoney(verr *ValidationError, field string, m *models.Money, positive bool) {
	if m == nil || verr.Has(field) {
		return
	}
	if err := m.Check(); err != nil {
		verr.Add(field, err.Error())
		return
	}
	switch {
	case positive && !m.IsPositive():
		verr.Add(field, "must be greater than 0")
	case !positive && m.IsNegative():
		verr.Add(field, "must not be negative")
	}
}

// checkSignedMoney only enforces the fixed-point range.
func checkSignedMoney(verr *ValidationError, field string, m *models.Money) {
	if m == nil || verr.Has(field) {
		return
	}
	if err := m.Check(); err != nil {
		verr.Add(field, err.Error())
	}
}

// checkUnit enforces 0 <= r <= 1.
func checkUnit(verr *ValidationError, field string, r *models.Ratio) {
	if r == nil || verr.Has(field) {
		return
	}
	if !r.InUnitInterval() {
		verr.Add(field, "must be between 0 and 1")
	}
}

// checkRatio only enforces the fixed-point range.
func checkRatio(verr *ValidationError, field string, r *models.Ratio) {
	if r == nil || verr.Has(field) {
		return
	}
	if err := r.Check(); err != nil {
		verr.Add(field, err.Error())
	}
}
