package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"
)

type APIError struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, message string, code int) {
	writeJSON(w, code, APIError{Error: message})
}

func validationErrorsToMap(err error) map[string]string {
	errs := map[string]string{}
	if verrs, ok := err.(validator.ValidationErrors); ok {
		for _, e := range verrs {
			field := e.Field()
			switch e.Tag() {
			case "required":
				errs[field] = "is required"
			case "url":
				errs[field] = "must be a valid url"
			case "oneof":
				errs[field] = "must be one of: avatar, banner"
			default:
				errs[field] = "invalid value"
			}
		}
	} else {
		errs["error"] = err.Error()
	}
	return errs
}
