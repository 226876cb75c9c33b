// Package validation validates request payloads and reports failures per
// JSON field in English.
package validation

import (
	"errors"
	"net/mail"
	"reflect"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"

	appErrors "github.com/noah-isme/adg-admissions-api/pkg/errors"
)

var (
	notBlankTag  = "notblank"
	notBlankText = "{0} cannot be blank"

	emailListTag  = "emaillist"
	emailListText = "{0} must be a comma separated list of valid email addresses"

	requiredText = "this field is required"
)

// Validator wraps go-playground/validator with English field messages.
type Validator struct {
	validate   *validator.Validate
	translator ut.Translator
}

// New builds a validator using JSON tag names for fields.
func New() *Validator {
	validate := validator.New()
	english := en.New()
	translator, _ := ut.New(english, english).GetTranslator("en")
	_ = en_translations.RegisterDefaultTranslations(validate, translator)

	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "" {
			name = strings.SplitN(fld.Tag.Get("form"), ",", 2)[0]
		}
		if name == "-" {
			return ""
		}
		return name
	})

	v := &Validator{validate: validate, translator: translator}

	_ = validate.RegisterValidation(notBlankTag, notBlank)
	v.registerTranslation(notBlankTag, notBlankText, false)
	_ = validate.RegisterValidation(emailListTag, emailList)
	v.registerTranslation(emailListTag, emailListText, false)
	v.registerTranslation("required", requiredText, true)

	return v
}

// Engine exposes the underlying validator for custom registrations.
func (v *Validator) Engine() *validator.Validate {
	return v.validate
}

// Struct validates s and returns a VALIDATION_ERROR carrying field messages.
func (v *Validator) Struct(s interface{}) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, appErrors.ErrValidation.Message)
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fieldPath(fe)] = fe.Translate(v.translator)
	}
	return appErrors.WithFields(appErrors.ErrValidation, fields)
}

// Fields builds a VALIDATION_ERROR from hand-made field messages. It returns
// nil when fields is empty.
func Fields(fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	return appErrors.WithFields(appErrors.ErrValidation, fields)
}

// Merge combines the field messages of validation errors. Non-validation
// errors are returned as is.
func Merge(errs ...error) error {
	fields := make(map[string]string)
	for _, err := range errs {
		if err == nil {
			continue
		}
		appErr := appErrors.FromError(err)
		if appErr.Code != appErrors.ErrValidation.Code {
			return err
		}
		for k, msg := range appErr.Fields {
			if _, exists := fields[k]; !exists {
				fields[k] = msg
			}
		}
	}
	return Fields(fields)
}

func (v *Validator) registerTranslation(tag, text string, override bool) {
	_ = v.validate.RegisterTranslation(
		tag, v.translator,
		func(t ut.Translator) error { return t.Add(tag, text, override) },
		func(t ut.Translator, fe validator.FieldError) string {
			s, _ := t.T(tag, fe.Field())
			return s
		},
	)
}

// fieldPath drops the root struct name from the namespace.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func notBlank(fl validator.FieldLevel) bool {
	if str, ok := fl.Field().Interface().(string); ok {
		return strings.TrimSpace(str) != ""
	}
	return false
}

// emailList accepts an empty string or comma separated addresses.
func emailList(fl validator.FieldLevel) bool {
	raw, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		addr, err := mail.ParseAddress(part)
		if err != nil || addr.Address != part {
			return false
		}
	}
	return true
}

// SplitEmails returns the trimmed, non-empty addresses of a comma separated list.
func SplitEmails(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
