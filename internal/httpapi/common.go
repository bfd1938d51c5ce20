package httpapi

import (
	"net/http"

	"github.com/go-chi/render"
)

type errResponse struct {
	Err            error  `json:"-"`
	HTTPStatusCode int    `json:"-"`
	ErrorText      string `json:"error"`
}

func (e *errResponse) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.HTTPStatusCode)
	return nil
}

func errMissingCredential() render.Renderer {
	return &errResponse{
		HTTPStatusCode: http.StatusUnauthorized,
		ErrorText:      "Missing or invalid Authorization header",
	}
}

func errInvalidToken() render.Renderer {
	return &errResponse{
		HTTPStatusCode: http.StatusUnauthorized,
		ErrorText:      "Invalid token",
	}
}

func errInvalidRequest(msg string) render.Renderer {
	return &errResponse{
		HTTPStatusCode: http.StatusBadRequest,
		ErrorText:      msg,
	}
}

// errUnexpected hides the underlying cause from the caller; the handler logs
// it with operation context before rendering.
func errUnexpected(err error) render.Renderer {
	return &errResponse{
		Err:            err,
		HTTPStatusCode: http.StatusInternalServerError,
		ErrorText:      "Internal Server Error",
	}
}
