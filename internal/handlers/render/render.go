package render

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// What the request did, reported in every response
const (
	ActionCreated       = "created"
	ActionUpdated       = "updated"
	ActionRead          = "read"
	ActionDeleted       = "deleted"
	ActionAuthenticated = "authenticated"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

func init() {
	// Report fields by their json names
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

type Struct any

// Envelope wraps every response body
type Envelope struct {
	Status  string            `json:"status"`
	Action  string            `json:"action"`
	Data    any               `json:"data"`
	Message string            `json:"message"`
	Errors  map[string]string `json:"errors,omitempty"`
}

func Success(w http.ResponseWriter, action string, data any, message string) {
	SuccessWithStatus(w, action, data, message, http.StatusOK)
}

func SuccessWithStatus(w http.ResponseWriter, action string, data any, message string, code int) {
	jsonWithStatus(w, Envelope{Status: StatusSuccess, Action: action, Data: data, Message: message}, code)
}

// Failure renders failed envelope with no data
func Failure(w http.ResponseWriter, action string, message string, code int) {
	jsonWithStatus(w, Envelope{Status: StatusFailure, Action: action, Message: message}, code)
}

func DecodeError(w http.ResponseWriter, action string, err error) {
	message := "Request body is not valid JSON"

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		message = fmt.Sprintf("Invalid data type for field '%s'", typeErr.Field)
	}

	Failure(w, action, message, http.StatusBadRequest)
}

func ValidationErrors(w http.ResponseWriter, action string, errs validator.ValidationErrors) {
	fields := make(map[string]string, len(errs))

	for _, fieldError := range errs {
		var message string
		switch fieldError.Tag() {
		case "required":
			message = "This field is required"
		case "min":
			message = fmt.Sprintf("Value is too short (minimum %s)", fieldError.Param())
		case "max":
			message = fmt.Sprintf("Value is too long (maximum %s)", fieldError.Param())
		case "email":
			message = "Must be a valid email address"
		case "oneof":
			message = fmt.Sprintf("Must be one of: %s", fieldError.Param())
		default:
			message = "Invalid value"
		}

		fields[fieldError.Field()] = message
	}

	jsonWithStatus(w, Envelope{
		Status:  StatusFailure,
		Action:  action,
		Message: "Request validation failed",
		Errors:  fields,
	}, http.StatusBadRequest)
}

// BindAndValidate decodes JSON request body into type T and validates it using struct tags.
// On failure the error response is already written
func BindAndValidate[T Struct](w http.ResponseWriter, r *http.Request, action string) (T, error) {
	var value T

	if err := json.NewDecoder(r.Body).Decode(&value); err != nil {
		DecodeError(w, action, err)
		return value, err
	}

	if err := validate.Struct(value); err != nil {
		var errs validator.ValidationErrors
		if errors.As(err, &errs) {
			ValidationErrors(w, action, errs)
		} else {
			Failure(w, action, "Request validation failed", http.StatusBadRequest)
		}
		return value, err
	}

	return value, nil
}

func jsonWithStatus(w http.ResponseWriter, data any, code int) {
	buf := &bytes.Buffer{}

	if err := json.NewEncoder(buf).Encode(data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_, _ = w.Write(buf.Bytes())
}
