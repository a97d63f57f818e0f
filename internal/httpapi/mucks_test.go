package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func setup() (*Mucks, *httptest.Server, *http.Client) {
	m := NewMucks()
	s := httptest.NewServer(m)
	c := s.Client()
	return m, s, c
}

func get(t *testing.T, url string, client *http.Client, expectedStatus int, out any) {
	response, err := client.Get(url)
	assert.Nil(t, err, "error on Get")
	assert.Equal(t, expectedStatus, response.StatusCode, "status code")

	bodyBytes, err := io.ReadAll(response.Body)
	assert.Nil(t, err, "error on ReadAll")

	_ = json.Unmarshal(bodyBytes, out)
}

func TestMucks_NotFoundDefault(t *testing.T) {
	_, s, client := setup()
	defer s.Close()

	p := Problem{}
	get(t, s.URL, client, 404, &p)

	assert.Equal(t, "Not Found", p.Message)
	assert.Equal(t, 404, p.ErrorCode)
	assert.Equal(t, 404, p.StatusCode)
}

func TestMucks_SimpleHandler(t *testing.T) {
	m, s, client := setup()
	defer s.Close()

	m.HandleFunc("GET /foo", func(w http.ResponseWriter, _ *http.Request) {
		JsonOk(w, map[string]int{"value": 100})
	})

	var response map[string]int
	get(t, s.URL+"/foo", client, 200, &response)

	assert.Equal(t, 100, response["value"])
}

func TestMucks_SimpleMiddleware(t *testing.T) {
	m, s, client := setup()
	defer s.Close()

	m.Add(&stampingMiddleware{})
	m.HandleFunc("GET /foo", func(w http.ResponseWriter, _ *http.Request) {
		JsonOk(w, map[string]string{})
	})

	response, err := client.Get(s.URL + "/foo")
	assert.Nil(t, err, "error on Get")
	assert.Equal(t, "123", response.Header.Get("Foo"), "header should be set")
}

type stampingMiddleware struct{}

func (*stampingMiddleware) Wrap(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Foo", "123")
		next(w, r)
	}
}
