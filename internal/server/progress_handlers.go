package server

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// streamProgress upgrades to a websocket and writes the job's progress
// events as JSON until the job reaches a terminal status or the client goes
// away. The first event is the latest one known.
//
//	@Summary	Stream job progress
//	@Tags		Jobs
//	@Param		id	path	string	true	"Job ID"
//	@Success	101	{object}	progress.Event	"Progress events"
//	@Failure	404	{object}	ErrorResponse	"Job not found"
//	@Router		/api/v1/ws/{id} [get]
func (s *Server) streamProgress(c *gin.Context) {
	jobID := c.Param("id")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := s.processor.SubscribeProgress(ctx, jobID)
	if err != nil {
		s.writeError(c, err)
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("Websocket upgrade failed", "jobId", jobID, "error", err)
		return
	}
	defer conn.Close()

	logger := s.logger.With("jobId", jobID)
	logger.Debug("Progress stream opened")

	// The read side only detects the client going away.
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case e, ok := <-events:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "job finished"))
				logger.Debug("Progress stream closed")
				return
			}
			if err := conn.WriteJSON(e); err != nil {
				logger.Debug("Progress stream write failed", "error", err)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
