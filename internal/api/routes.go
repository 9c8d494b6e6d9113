package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
)

// ServerInterface is implemented by the key handlers. The key path
// parameter is already bound when a method runs.
type ServerInterface interface {
	// (GET /{key})
	GetKey(w http.ResponseWriter, r *http.Request, key string)
	// (POST /{key})
	SetKey(w http.ResponseWriter, r *http.Request, key string)
	// (DELETE /{key})
	DeleteKey(w http.ResponseWriter, r *http.Request, key string)
}

type MiddlewareFunc func(http.Handler) http.Handler

// ServerInterfaceWrapper binds path parameters and dispatches to a ServerInterface.
type ServerInterfaceWrapper struct {
	Handler            ServerInterface
	HandlerMiddlewares []MiddlewareFunc
	ErrorHandlerFunc   func(w http.ResponseWriter, r *http.Request, err error)
}

func (siw *ServerInterfaceWrapper) bindKey(w http.ResponseWriter, r *http.Request) (string, bool) {
	var key string
	err := runtime.BindStyledParameterWithLocation("simple", false, "key", runtime.ParamLocationPath, chi.URLParam(r, "key"), &key)
	if err != nil {
		siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: "key", Err: err})
		return "", false
	}
	return key, true
}

func (siw *ServerInterfaceWrapper) wrap(h http.Handler) http.Handler {
	for _, middleware := range siw.HandlerMiddlewares {
		h = middleware(h)
	}
	return h
}

func (siw *ServerInterfaceWrapper) GetKey(w http.ResponseWriter, r *http.Request) {
	key, ok := siw.bindKey(w, r)
	if !ok {
		return
	}
	siw.wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		siw.Handler.GetKey(w, r, key)
	})).ServeHTTP(w, r)
}

func (siw *ServerInterfaceWrapper) SetKey(w http.ResponseWriter, r *http.Request) {
	key, ok := siw.bindKey(w, r)
	if !ok {
		return
	}
	siw.wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		siw.Handler.SetKey(w, r, key)
	})).ServeHTTP(w, r)
}

func (siw *ServerInterfaceWrapper) DeleteKey(w http.ResponseWriter, r *http.Request) {
	key, ok := siw.bindKey(w, r)
	if !ok {
		return
	}
	siw.wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		siw.Handler.DeleteKey(w, r, key)
	})).ServeHTTP(w, r)
}

type InvalidParamFormatError struct {
	ParamName string
	Err       error
}

func (e *InvalidParamFormatError) Error() string {
	return fmt.Sprintf("Invalid format for parameter %s: %s", e.ParamName, e.Err.Error())
}

func (e *InvalidParamFormatError) Unwrap() error {
	return e.Err
}

type ChiServerOptions struct {
	BaseURL          string
	BaseRouter       chi.Router
	Middlewares      []MiddlewareFunc
	ErrorHandlerFunc func(w http.ResponseWriter, r *http.Request, err error)
}

// HandlerWithOptions registers the key routes on options.BaseRouter (or a
// new router) and returns it.
func HandlerWithOptions(si ServerInterface, options ChiServerOptions) http.Handler {
	r := options.BaseRouter
	if r == nil {
		r = chi.NewRouter()
	}
	if options.ErrorHandlerFunc == nil {
		options.ErrorHandlerFunc = func(w http.ResponseWriter, r *http.Request, err error) {
			http.Error(w, err.Error(), http.StatusBadRequest)
		}
	}
	wrapper := ServerInterfaceWrapper{
		Handler:            si,
		HandlerMiddlewares: options.Middlewares,
		ErrorHandlerFunc:   options.ErrorHandlerFunc,
	}

	r.Group(func(r chi.Router) {
		r.Get(options.BaseURL+"/{key}", wrapper.GetKey)
	})
	r.Group(func(r chi.Router) {
		r.Post(options.BaseURL+"/{key}", wrapper.SetKey)
	})
	r.Group(func(r chi.Router) {
		r.Delete(options.BaseURL+"/{key}", wrapper.DeleteKey)
	})
	return r
}
