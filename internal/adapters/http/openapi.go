package httpadapter

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	legacyrouter "github.com/getkin/kin-openapi/routers/legacy"
)

// requestValidator checks /api requests against the embedded OpenAPI
// document. Multipart bodies are left to the handlers.
type requestValidator struct {
	router routers.Router
}

func newRequestValidator(document []byte) (*requestValidator, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(document)
	if err != nil {
		return nil, fmt.Errorf("load openapi document: %w", err)
	}
	if err := doc.Validate(context.Background()); err != nil {
		return nil, fmt.Errorf("validate openapi document: %w", err)
	}
	router, err := legacyrouter.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("build openapi router: %w", err)
	}
	return &requestValidator{router: router}, nil
}

func (v *requestValidator) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route, pathParams, err := v.router.FindRoute(r)
		if err != nil {
			switch {
			case isRouteError(err, routers.ErrMethodNotAllowed):
				writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
			default:
				writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
			}
			return
		}

		input := &openapi3filter.RequestValidationInput{
			Request:    r,
			PathParams: pathParams,
			Route:      route,
			Options: &openapi3filter.Options{
				ExcludeRequestBody: isMultipart(r),
				AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
			},
		}
		if err := openapi3filter.ValidateRequest(r.Context(), input); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func isMultipart(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "multipart/form-data"
}

// isRouteError matches router errors by reason; the router returns fresh
// values rather than the exported sentinels.
func isRouteError(err, target error) bool {
	var routeErr *routers.RouteError
	if errors.As(err, &routeErr) {
		return routeErr.Reason == target.Error()
	}
	return errors.Is(err, target)
}
