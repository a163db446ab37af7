// Package httpserver exposes the engine over HTTP. The request path is the
// file url; credentials travel in the query string.
package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/jaywantadh/BlockStash/internal/auth"
	"github.com/jaywantadh/BlockStash/internal/engine"
	"github.com/jaywantadh/BlockStash/internal/metadata"
	"github.com/jaywantadh/BlockStash/pkg/logging"
	"github.com/sirupsen/logrus"
)

const allowedMethods = "GET, HEAD, PUT, POST, DELETE, OPTIONS"

type Server struct {
	engine *engine.Engine
	log    logrus.FieldLogger
}

func New(eng *engine.Engine, log logrus.FieldLogger) *Server {
	return &Server{engine: eng, log: logging.Or(log)}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	log := s.log.WithFields(logrus.Fields{"method": r.Method, "url": r.URL.Path})

	var err error
	switch r.Method {
	case http.MethodGet, http.MethodHead:
		err = s.handleRead(w, r)
	case http.MethodPut, http.MethodPost:
		err = s.handleWrite(w, r)
	case http.MethodDelete:
		err = s.handleDelete(w, r)
	case http.MethodOptions:
		w.Header().Set("Allow", allowedMethods)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.Header().Set("Allow", allowedMethods)
		http.Error(w, "Method not allowed!", http.StatusMethodNotAllowed)
	}

	if err != nil {
		status := statusFor(err)
		log.WithField("status", status).Warnf("request failed: %v", err)
		http.Error(w, http.StatusText(status), status)
		return
	}
	log.WithField("took", time.Since(start)).Debug("request served")
}

func (s *Server) handleRead(w http.ResponseWriter, r *http.Request) error {
	meta, err := s.engine.Stat(r.Context(), r.URL.Path)
	if err != nil {
		return err
	}
	if err := s.engine.Authorize(meta, r.Method, auth.ParamsFromValues(r.URL.Query())); err != nil {
		return err
	}

	h := w.Header()
	h.Set("Content-Type", meta.ContentType)
	h.Set("Content-Length", strconv.FormatInt(meta.FileSize, 10))
	h.Set("Last-Modified", time.UnixMilli(meta.Created).UTC().Format(http.TimeFormat))
	h.Set("ETag", strconv.Quote(meta.Fingerprint+"-"+strconv.Itoa(meta.Version)))
	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return nil
	}

	body, err := s.engine.Open(r.Context(), meta)
	if err != nil {
		return err
	}
	defer body.Close()

	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		// headers are gone, all that is left is to cut the response short
		s.log.WithField("url", meta.URL).Errorf("streaming aborted: %v", err)
		panic(http.ErrAbortHandler)
	}
	return nil
}

func (s *Server) handleWrite(w http.ResponseWriter, r *http.Request) error {
	q := r.URL.Query()
	opts := engine.WriteOptions{
		ContentType: r.Header.Get("Content-Type"),
		Private:     q.Get("private") == "true",
		Encrypted:   q.Get("encrypted") == "true",
		AccessKey:   q.Get("access_key"),
	}

	status := http.StatusCreated
	session, err := s.engine.Create(r.Context(), r.URL.Path, opts)
	if errors.Is(err, engine.ErrExists) {
		status = http.StatusOK
		session, err = s.engine.Update(r.Context(), r.URL.Path, r.Method, auth.ParamsFromValues(q), opts)
	}
	if err != nil {
		return err
	}

	if _, err := io.Copy(session, r.Body); err != nil {
		session.Abort()
		return err
	}
	meta, err := session.Close()
	if err != nil {
		return err
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(meta)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) error {
	meta, err := s.engine.Stat(r.Context(), r.URL.Path)
	if err != nil {
		return err
	}
	if err := s.engine.Authorize(meta, r.Method, auth.ParamsFromValues(r.URL.Query())); err != nil {
		return err
	}
	if err := s.engine.Delete(r.Context(), r.URL.Path); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, metadata.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, auth.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, engine.ErrExists):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// ListenAndServe serves h on addr until ctx is cancelled, then drains
// in-flight requests.
func ListenAndServe(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Log.Infof("🌐 listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
