package validator

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

// Validator turns binding failures into field-keyed, human readable messages.
type Validator struct {
	trans ut.Translator
}

var (
	once     sync.Once
	instance *Validator
)

// New configures gin's binding engine once: json tag names in messages and
// English translations. Later calls return the same Validator.
func New() *Validator {
	once.Do(func() {
		locale := en.New()
		uni := ut.New(locale, locale)
		trans, _ := uni.GetTranslator("en")
		instance = &Validator{trans: trans}

		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			v.RegisterTagNameFunc(func(fld reflect.StructField) string {
				name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
				if name == "-" {
					return ""
				}
				return name
			})
			_ = en_translations.RegisterDefaultTranslations(v, trans)
		}
	})
	return instance
}

// ParseError converts raw binding errors into a clean map.
// Nested fields keep their hierarchical names, e.g. "models[0].id".
func (v *Validator) ParseError(err error) map[string]string {
	errMap := make(map[string]string)

	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		for _, e := range validationErrors {
			ns := e.Namespace()
			if i := strings.Index(ns, "."); i != -1 {
				ns = ns[i+1:]
			}

			msg := e.Translate(v.trans)
			if e.Tag() == "oneof" {
				msg = fmt.Sprintf("must be one of [%s]", strings.ReplaceAll(e.Param(), " ", ", "))
			}
			errMap[ns] = msg
		}
		return errMap
	}

	errMap["body"] = "Invalid request body format. Please fix your payload."
	return errMap
}
