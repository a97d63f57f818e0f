// Package httpapi is a minimal HTTP router and error-response helper,
// adapted from the teacher repo's mucks package for this service's
// client-facing surface (SPEC_FULL §6 external interfaces).
package httpapi

import (
	"encoding/json"
	"net/http"
)

type Middleware interface {
	Wrap(handlerFunc http.HandlerFunc) http.HandlerFunc
}

type Mucks struct {
	Mux         *http.ServeMux
	HandlerFunc http.HandlerFunc
}

func NewMucks() *Mucks {
	m := http.NewServeMux()
	m.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		WriteProblem(w, NewNotFound())
	})
	return &Mucks{
		Mux:         m,
		HandlerFunc: m.ServeHTTP,
	}
}

func (m *Mucks) Add(middleware Middleware) {
	m.HandlerFunc = middleware.Wrap(m.HandlerFunc)
}

func (m *Mucks) HandleFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	m.Mux.HandleFunc(pattern, handler)
}

func (m *Mucks) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m.HandlerFunc(w, r)
}

const ContentType = "Content-Type"
const ApplicationJsonContentType = "application/json; charset=utf-8"

// WriteProblem writes a Problem as the JSON body, status taken from p.StatusCode.
func WriteProblem(w http.ResponseWriter, p Problem) {
	w.Header().Set(ContentType, ApplicationJsonContentType)
	w.WriteHeader(p.StatusCode)
	json.NewEncoder(w).Encode(p)
}

// JsonOk writes v as a 200 JSON body.
func JsonOk(w http.ResponseWriter, v any) {
	JsonStatus(w, http.StatusOK, v)
}

// JsonStatus writes v as a JSON body with the given status code.
func JsonStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set(ContentType, ApplicationJsonContentType)
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
