package websocket

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/landuse-agentic/adapters/auth"
	"github.com/satriahrh/landuse-agentic/utils/log"
)

// Handler serves "/ws" for the session named by the bearer token.
func (s *Server) Handler(c echo.Context) error {
	sessionID := auth.SessionID(c)
	session, err := s.svc.Get(sessionID)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "Session not found")
	}

	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	queue := make(chan string, askQueueSize)
	client := NewClient(conn, sessionID, s.enqueue(queue))
	if err := s.attach(client); err != nil {
		log.WithCtx(client.ctx).Error("subscribing to turns", zap.Error(err))
		client.Close()
		return nil
	}
	defer s.detach(client)

	go s.askLoop(client, session, queue)
	client.Run()

	<-client.Context().Done()
	return nil
}
