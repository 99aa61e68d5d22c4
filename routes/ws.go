package routes

import (
	"context"
	"net/http"
	"time"

	"arenaengine/model"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(_ *http.Request) bool { return true },
}

// HandleProblemRunStream upgrades to a websocket, reads one
// ProblemRunRequest and pushes a "case.finished" event per outcome followed
// by "run.finished". Closing the socket cancels the run before its next case.
func (h *Handler) HandleProblemRunStream(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("Websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	var req model.ProblemRunRequest
	if err := conn.ReadJSON(&req); err != nil {
		h.writeEvent(conn, model.StreamEvent{Type: "error", Error: "invalid request: " + err.Error()})
		return
	}

	ctx, cancel := context.WithCancel(context.WithoutCancel(c.Request.Context()))
	defer cancel()

	// The client sends nothing after the request; any read error means it left.
	go func() {
		for {
			if _, _, err := conn.NextReader(); err != nil {
				cancel()
				return
			}
		}
	}()

	resp := h.svc.RunProblem(ctx, req, func(o model.TestCaseOutcome) {
		outcome := o
		h.writeEvent(conn, model.StreamEvent{Type: "case.finished", Outcome: &outcome})
	})
	h.writeEvent(conn, model.StreamEvent{Type: "run.finished", Result: &resp})
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
}

func (h *Handler) writeEvent(conn *websocket.Conn, ev model.StreamEvent) {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(ev); err != nil {
		h.logger.Debug("Websocket write failed", zap.String("event", ev.Type), zap.Error(err))
	}
}
