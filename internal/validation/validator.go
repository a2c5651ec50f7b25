// Package validation はフォーム入力の検証を提供する。
// go-playground/validatorの結果をmodel.APIErrorに変換する。
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/hitoshi/notesapp/internal/model"
)

// Validator はgo-playground/validatorのラッパー。
// *validator.Validateはスレッドセーフなため共有して使用する。
type Validator struct {
	v *validator.Validate
}

// New はフォーム名（formタグ）でエラーを報告するValidatorを生成する。
func New() *Validator {
	v := validator.New()

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := fld.Tag.Get("form")
		if name == "" {
			return fld.Name
		}
		if i := strings.IndexByte(name, ','); i >= 0 {
			name = name[:i]
		}
		if name == "-" {
			return fld.Name
		}
		return name
	})

	return &Validator{v: v}
}

// Validate は構造体を検証し、失敗時は*model.APIErrorを返す。
func (v *Validator) Validate(s any) error {
	if err := v.v.Struct(s); err != nil {
		return v.formatError(err)
	}
	return nil
}

// formatError はvalidator.ValidationErrorsを項目ごとのメッセージに変換する。
func (v *Validator) formatError(err error) error {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return err
	}

	fields := make(map[string]string, len(validationErrs))
	for _, e := range validationErrs {
		fields[e.Field()] = friendlyMessage(e)
	}

	return model.NewValidationError(fields)
}

func friendlyMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "Ce champ est obligatoire."
	case "email":
		return "Adresse email invalide."
	case "min":
		return fmt.Sprintf("Doit contenir au moins %s caractères.", e.Param())
	case "max":
		return fmt.Sprintf("Ne doit pas dépasser %s caractères.", e.Param())
	default:
		return "Valeur invalide."
	}
}

// FieldErrors はerrが検証エラーであれば項目ごとのメッセージを返す。
func FieldErrors(err error) (map[string]string, bool) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) && apiErr.Code == model.ErrCodeValidationFailed {
		return apiErr.Fields, true
	}
	return nil, false
}
