package middleware

import (
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/Hari1275/sdp-sub000/internal/api/dto"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

const validatedModelKey = "validated_model"

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		for _, tag := range []string{"json", "form"} {
			name := strings.SplitN(field.Tag.Get(tag), ",", 2)[0]
			if name != "" && name != "-" {
				return name
			}
		}
		return field.Name
	})
	_ = v.RegisterValidation("not_empty", validateNotEmpty)
	return v
}

// Validate checks v against its validate tags.
func Validate(v interface{}) error {
	return validate.Struct(v)
}

// ValidationErrorResponse formats err for a 400 response.
func ValidationErrorResponse(err error) dto.ErrorResponse {
	resp := dto.ErrorResponse{Error: "validation failed", Code: dto.CodeValidation}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		resp.Error = err.Error()
		return resp
	}
	resp.Details = make(map[string]string, len(verrs))
	for _, fe := range verrs {
		resp.Details[fe.Field()] = formatValidationError(fe)
	}
	return resp
}

// ValidateRequest decodes the JSON body into a fresh instance of model,
// validates it and stores the pointer under "validated_model".
func ValidateRequest(model interface{}, log *zap.Logger) gin.HandlerFunc {
	modelType := reflect.TypeOf(model)
	if modelType.Kind() == reflect.Ptr {
		modelType = modelType.Elem()
	}

	return func(c *gin.Context) {
		modelValue := reflect.New(modelType).Interface()

		if err := c.ShouldBindJSON(modelValue); err != nil {
			log.Debug("JSON decode failed", zap.Error(err), zap.String("path", c.Request.URL.Path))
			AbortWithError(c, http.StatusBadRequest, dto.CodeValidation, "invalid JSON body")
			return
		}

		if err := Validate(modelValue); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, ValidationErrorResponse(err))
			return
		}

		c.Set(validatedModelKey, modelValue)
		c.Next()
	}
}

// ValidatedModel returns the body stored by ValidateRequest.
func ValidatedModel[T any](c *gin.Context) (*T, bool) {
	v, exists := c.Get(validatedModelKey)
	if !exists {
		return nil, false
	}
	model, ok := v.(*T)
	return model, ok
}

func validateNotEmpty(fl validator.FieldLevel) bool {
	return len(strings.TrimSpace(fl.Field().String())) > 0
}

func formatValidationError(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return "this field is required"
	case "not_empty":
		return "this field cannot be empty"
	case "min", "gte":
		return "value is too small"
	case "max", "lte":
		return "value is too large"
	case "oneof":
		return "must be one of: " + err.Param()
	case "datetime":
		return "must be a date formatted " + err.Param()
	default:
		return "invalid value"
	}
}
