package server

import (
	"encoding/json"
	"net/http"

	"github.com/jasonish/evedetect/log"
)

type HttpStatusResponseBody struct {
	StatusCode int    `json:"status"`
	Message    string `json:"message,omitempty"`
}

// HttpResponse can be returned by API handlers to control how the response
// is processed.
type HttpResponse struct {

	// Set the status code of the reponse. If not provided, 200 (OK) will
	// be used.
	statusCode int

	// Defaults to application/json.
	contentType string

	// Additional headers to set on the response.
	headers map[string]string

	// Serialized as JSON for application/json, otherwise it must be a
	// []byte and is written as is.
	body interface{}
}

// HttpErrorResponse reports a failure of the server rather than of the
// request.
func HttpErrorResponse(statusCode int, message string) HttpResponse {
	return HttpResponse{
		statusCode: statusCode,
		body: HttpStatusResponseBody{
			StatusCode: statusCode,
			Message:    message,
		},
	}
}

func HttpBytesResponse(contentType string, body []byte, headers map[string]string) HttpResponse {
	return HttpResponse{
		contentType: contentType,
		headers:     headers,
		body:        body,
	}
}

type ApiHandlerFunc func(appContext AppContext, r *http.Request) interface{}

type ApiHandler struct {
	appContext AppContext
	handler    ApiHandlerFunc
}

func writeJson(w http.ResponseWriter, statusCode int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error("Failed to encode response: %v", err)
	}
}

func (h ApiHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	response := h.handler(h.appContext, r)
	if response == nil {
		return
	}

	switch response := response.(type) {
	case error:
		writeJson(w, http.StatusBadRequest, HttpStatusResponseBody{
			StatusCode: http.StatusBadRequest,
			Message:    response.Error(),
		})
	case HttpResponse:
		statusCode := http.StatusOK
		if response.statusCode != 0 {
			statusCode = response.statusCode
		}

		for key, val := range response.headers {
			w.Header().Set(key, val)
		}

		if response.contentType == "" || response.contentType == "application/json" {
			writeJson(w, statusCode, response.body)
			return
		}

		w.Header().Set("Content-Type", response.contentType)
		w.WriteHeader(statusCode)
		switch body := response.body.(type) {
		case []byte:
			w.Write(body)
		default:
			log.Error("Don't know how to write response body for content type %s",
				response.contentType)
		}
	default:
		writeJson(w, http.StatusOK, response)
	}
}

func ApiF(appContext AppContext, handler ApiHandlerFunc) http.Handler {
	return ApiHandler{
		appContext,
		handler,
	}
}
