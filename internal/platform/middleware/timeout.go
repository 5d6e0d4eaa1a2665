package middleware

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

// RequestTimeout bounds each request with a context deadline and answers
// 504 when the handler has not finished in time. The handler runs on its own
// echo context with a buffered writer; its output reaches the client only if
// it finishes before the deadline.
func RequestTimeout(timeout time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
			defer cancel()
			req := c.Request().WithContext(ctx)
			c.SetRequest(req)

			tw := &timeoutWriter{header: c.Response().Header().Clone()}
			hc := c.Echo().NewContext(req, tw)
			hc.SetPath(c.Path())
			hc.SetParamNames(c.ParamNames()...)
			hc.SetParamValues(c.ParamValues()...)
			if rid := c.Get("request_id"); rid != nil {
				hc.Set("request_id", rid)
			}

			done := make(chan error, 1)
			go func() {
				defer func() {
					if r := recover(); r != nil {
						done <- fmt.Errorf("panic: %v", r)
					}
				}()
				done <- next(hc)
			}()

			select {
			case err := <-done:
				if werr := tw.copyTo(c.Response()); werr != nil && err == nil {
					err = werr
				}
				return err
			case <-ctx.Done():
				tw.expire()
				if errors.Is(ctx.Err(), context.DeadlineExceeded) {
					return echo.NewHTTPError(http.StatusGatewayTimeout, "request timed out")
				}
				return ctx.Err()
			}
		}
	}
}

// timeoutWriter buffers a handler's response. After expire every write
// fails with http.ErrHandlerTimeout.
type timeoutWriter struct {
	mu       sync.Mutex
	header   http.Header
	buf      bytes.Buffer
	code     int
	timedOut bool
}

func (w *timeoutWriter) Header() http.Header { return w.header }

func (w *timeoutWriter) WriteHeader(code int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timedOut || w.code != 0 {
		return
	}
	w.code = code
}

func (w *timeoutWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timedOut {
		return 0, http.ErrHandlerTimeout
	}
	if w.code == 0 {
		w.code = http.StatusOK
	}
	return w.buf.Write(p)
}

func (w *timeoutWriter) expire() {
	w.mu.Lock()
	w.timedOut = true
	w.mu.Unlock()
}

// copyTo replays the buffered headers, status and body onto resp.
func (w *timeoutWriter) copyTo(resp *echo.Response) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	dst := resp.Header()
	for k, vv := range w.header {
		dst[k] = vv
	}
	if w.code == 0 {
		return nil
	}
	resp.WriteHeader(w.code)
	_, err := resp.Write(w.buf.Bytes())
	return err
}
