package natshandler

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"arenaengine/model"
	"arenaengine/service"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const (
	CompilerSubject = "compiler.execute.request"
	ProblemSubject  = "problems.execute.request"
)

type Handler struct {
	svc    *service.CompilerService
	logger *zap.Logger

	mu       sync.Mutex
	stopping bool
	inflight sync.WaitGroup
}

func NewHandler(svc *service.CompilerService, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

// Subscribe registers both subjects in queue group so that several engine
// instances share the load.
func (h *Handler) Subscribe(nc *nats.Conn, queue string) ([]*nats.Subscription, error) {
	var subs []*nats.Subscription
	for subject, handle := range map[string]func(context.Context, []byte) []byte{
		CompilerSubject: h.HandleCompilerRequest,
		ProblemSubject:  h.HandleProblemRunRequest,
	} {
		sub, err := nc.QueueSubscribe(subject, queue, h.dispatch(handle))
		if err != nil {
			for _, s := range subs {
				_ = s.Unsubscribe()
			}
			return nil, fmt.Errorf("subscribe %s: %w", subject, err)
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

// dispatch serves each message on its own goroutine, since nats.go calls a
// subscription's handler serially. Concurrency is bounded by the worker pool
// behind the service.
func (h *Handler) dispatch(handle func(context.Context, []byte) []byte) nats.MsgHandler {
	return func(msg *nats.Msg) {
		h.mu.Lock()
		if h.stopping {
			h.mu.Unlock()
			h.logger.Warn("Dropping request during shutdown", zap.String("subject", msg.Subject))
			return
		}
		h.inflight.Add(1)
		h.mu.Unlock()

		go func() {
			defer h.inflight.Done()
			h.reply(msg, handle(context.Background(), msg.Data))
		}()
	}
}

// Wait stops accepting messages and blocks until in-flight requests have
// been answered.
func (h *Handler) Wait() {
	h.mu.Lock()
	h.stopping = true
	h.mu.Unlock()
	h.inflight.Wait()
}

func (h *Handler) reply(msg *nats.Msg, data []byte) {
	if msg.Reply == "" {
		h.logger.Warn("Dropping request without reply subject", zap.String("subject", msg.Subject))
		return
	}
	if err := msg.Respond(data); err != nil {
		h.logger.Error("Failed to publish reply", zap.String("subject", msg.Subject), zap.Error(err))
	}
}

// HandleCompilerRequest decodes a RunRequest and returns the encoded
// RunResponse. Decoding failures become failure responses.
func (h *Handler) HandleCompilerRequest(ctx context.Context, data []byte) []byte {
	var req model.RunRequest
	if err := json.Unmarshal(data, &req); err != nil {
		h.logger.Warn("Failed to parse execution request", zap.Error(err))
		msg := "invalid request: " + err.Error()
		return mustMarshal(model.RunResponse{Error: &msg})
	}
	return mustMarshal(h.svc.Run(ctx, req))
}

func (h *Handler) HandleProblemRunRequest(ctx context.Context, data []byte) []byte {
	var req model.ProblemRunRequest
	if err := json.Unmarshal(data, &req); err != nil {
		h.logger.Warn("Failed to parse problem run request", zap.Error(err))
		return mustMarshal(model.ProblemRunResponse{
			Outcomes: []model.TestCaseOutcome{},
			Error:    model.ErrorString("invalid request: " + err.Error()),
		})
	}
	return mustMarshal(h.svc.RunProblem(ctx, req, nil))
}

func mustMarshal(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		// only plain structs with string, bool and int fields reach here
		panic(err)
	}
	return data
}
