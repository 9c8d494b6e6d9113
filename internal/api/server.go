// Package api is the HTTP gateway in front of a key-value server. Each HTTP
// request borrows one pooled protocol connection.
package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"replkv/internal/client"
	"replkv/internal/engine"
)

const maxValueBytes = 1 << 20

// NewServer wires the key handlers into a router and exposes a health check.
func NewServer(pool *Pool, log logrus.FieldLogger) http.Handler {
	if log == nil {
		log = logrus.StandardLogger()
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	return HandlerWithOptions(&gateway{pool: pool, log: log}, ChiServerOptions{
		BaseRouter: r,
	})
}

type gateway struct {
	pool *Pool
	log  logrus.FieldLogger
}

func (g *gateway) GetKey(w http.ResponseWriter, r *http.Request, key string) {
	var (
		value string
		found bool
	)
	err := g.pool.With(r.Context(), func(c *client.Conn) error {
		var err error
		value, found, err = c.Get(key)
		return err
	})
	switch {
	case err != nil:
		g.dbError(w, "get", key, err)
	case !found:
		writeText(w, http.StatusNotFound, engine.ErrNotFound.Error())
	default:
		writeText(w, http.StatusOK, value)
	}
}

func (g *gateway) SetKey(w http.ResponseWriter, r *http.Request, key string) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxValueBytes))
	if err != nil {
		writeText(w, http.StatusBadRequest, fmt.Sprintf("read body: %v", err))
		return
	}

	err = g.pool.With(r.Context(), func(c *client.Conn) error {
		return c.Set(key, string(body))
	})
	if err != nil {
		g.dbError(w, "set", key, err)
		return
	}
	writeText(w, http.StatusOK, "Success")
}

func (g *gateway) DeleteKey(w http.ResponseWriter, r *http.Request, key string) {
	err := g.pool.With(r.Context(), func(c *client.Conn) error {
		return c.Remove(key)
	})
	var se *client.ServerError
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.As(err, &se) && se.Message == engine.ErrNotFound.Error():
		writeText(w, http.StatusNotFound, se.Message)
	default:
		g.dbError(w, "delete", key, err)
	}
}

func (g *gateway) dbError(w http.ResponseWriter, op, key string, err error) {
	g.log.WithError(err).WithField("key", key).Warnf("%s failed", op)
	writeText(w, http.StatusInternalServerError, fmt.Sprintf("DB Error: %v", err))
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}
