package attendance

import (
	"reflect"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	"github.com/pkg/errors"

	"campusattend/internal/geo"
)

var (
	validate   *validator.Validate
	translator ut.Translator
)

func init() {
	enLocale := en.New()
	translator, _ = ut.New(enLocale, enLocale).GetTranslator("en")

	validate = validator.New()
	_ = en_translations.RegisterDefaultTranslations(validate, translator)

	// Use JSON tag names for errors instead of Go struct names.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// check runs the struct validator plus any extra field errors and folds
// them into a single ValidationError.
func check(v any, extra ...FieldError) error {
	fields := append([]FieldError(nil), extra...)
	if err := validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		for _, fe := range verrs {
			fields = append(fields, FieldError{Field: fe.Field(), Error: fe.Translate(translator)})
		}
	}
	if len(fields) == 0 {
		return nil
	}
	return NewValidationError(errors.New("invalid input"), fields...)
}

func coordinateErrors(latField, lonField string, lat, lon float64) []FieldError {
	if geo.ValidCoordinate(lat, lon) {
		return nil
	}
	return []FieldError{
		{Field: latField, Error: "must be between -90 and 90"},
		{Field: lonField, Error: "must be between -180 and 180"},
	}
}
