package service

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// DebugHandler returns an echo.HandlerFunc reporting the service's
// live diagnostics: instance id, in-flight transaction count, and the
// expvar send/receive/decode-error counters. It exists so an
// application embedding this engine can expose it on its own echo
// instance without this package opening a listening socket itself.
func (s *Service[Q, A, R, H]) DebugHandler() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]any{
			"instance_id":         s.instanceID.String(),
			"active_transactions": s.Active(),
			"sent_total":          s.sentTotal.Value(),
			"received_total":      s.recvTotal.Value(),
			"decode_errors_total": s.decodeErrs.Value(),
		})
	}
}

// ListenDebug starts a standalone echo server on addr exposing
// GET /debug/krpc. It runs until the returned *echo.Echo is shut down
// by the caller.
func (s *Service[Q, A, R, H]) ListenDebug(addr string) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.GET("/debug/krpc", s.DebugHandler())

	go func() {
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			s.log.WithError(err).Warn("krpc service: debug server stopped")
		}
	}()

	return e
}
