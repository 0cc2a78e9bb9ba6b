package middleware

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/MrEthical07/tipgate"
)

// ErrInvalidInput marks a request body or parameter that cannot be parsed.
var ErrInvalidInput = errors.New("invalid input format")

// ErrorBody is the JSON body of every error answer.
type ErrorBody struct {
	Code    int    `json:"error_code"`
	Message string `json:"error_message"`
}

// ErrorStatus maps an error to its HTTP status and error body. Unknown
// errors become a generic 500 without detail.
func ErrorStatus(err error) (int, ErrorBody) {
	switch {
	case errors.Is(err, tipgate.ErrInvalidAuthentication):
		return http.StatusUnauthorized, ErrorBody{Code: 4, Message: "InvalidAuthentication"}
	case errors.Is(err, tipgate.ErrSessionNotFound):
		return http.StatusUnauthorized, ErrorBody{Code: 6, Message: "NotAuthenticated"}
	case errors.Is(err, tipgate.ErrTorNetworkRequired):
		return http.StatusForbidden, ErrorBody{Code: 11, Message: "TorNetworkRequired"}
	case errors.Is(err, tipgate.ErrAccessLocationInvalid):
		return http.StatusForbidden, ErrorBody{Code: 13, Message: "AccessLocationInvalid"}
	case errors.Is(err, tipgate.ErrForbiddenOperation):
		return http.StatusForbidden, ErrorBody{Code: 30, Message: "ForbiddenOperation"}
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest, ErrorBody{Code: 1, Message: "InvalidInputFormat"}
	default:
		return http.StatusInternalServerError, ErrorBody{Code: 0, Message: "InternalServerError"}
	}
}

func WriteError(w http.ResponseWriter, err error) {
	status, body := ErrorStatus(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
