package httpapi

import "net/http"

type response struct {
	statusCode int
	data       []byte
	err        error
}

func newBadRequestResponse(msg string) response {
	return response{
		statusCode: http.StatusBadRequest,
		data:       []byte(msg),
	}
}

func newInternalErrResponse(msg string, err error) response {
	return response{
		statusCode: http.StatusInternalServerError,
		data:       []byte(msg),
		err:        err,
	}
}
