package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/raphaelgruber/docingest/internal/models"
	"github.com/raphaelgruber/docingest/internal/progress"
)

const (
	writeWait    = 10 * time.Second
	pingInterval = 30 * time.Second
)

// Subscriber streams the progress events of one job.
type Subscriber interface {
	Subscribe(jobID string) (<-chan progress.Event, func())
}

var upgrader = websocket.Upgrader{
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// WatchHandler pushes job progress to websocket clients.
type WatchHandler struct {
	jobs   JobService
	events Subscriber
	logger *slog.Logger
}

// NewWatchHandler creates a watch handler.
func NewWatchHandler(jobs JobService, events Subscriber, logger *slog.Logger) *WatchHandler {
	return &WatchHandler{jobs: jobs, events: events, logger: logger}
}

// Watch sends the current job state, then every progress event until the
// job reaches a terminal status or the client goes away.
func (h *WatchHandler) Watch(c *gin.Context) {
	id := c.Param("id")

	// Subscribe before the snapshot read so no event falls in between.
	events, unsubscribe := h.events.Subscribe(id)
	defer unsubscribe()

	job, err := h.jobs.GetJob(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "job_id", id, "error", err)
		return
	}
	defer conn.Close()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	snapshot := snapshotEvent(job)
	if err := send(conn, snapshot); err != nil || snapshot.Terminal() {
		closeNormal(conn)
		return
	}

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case e, ok := <-events:
			if !ok {
				closeNormal(conn)
				return
			}
			if err := send(conn, e); err != nil {
				h.logger.Debug("watch client write failed", "job_id", id, "error", err)
				return
			}
			if e.Terminal() {
				closeNormal(conn)
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-closed:
			return
		case <-c.Request.Context().Done():
			return
		}
	}
}

func snapshotEvent(job *models.Job) progress.Event {
	e := progress.Event{
		JobID:     job.ID,
		Status:    job.Status,
		Error:     job.Error,
		Timestamp: job.UpdatedAt,
	}
	if job.Progress != nil {
		e.Progress = *job.Progress
	}
	return e
}

func send(conn *websocket.Conn, e progress.Event) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteJSON(e)
}

func closeNormal(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}
