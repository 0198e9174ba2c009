// Package supervisor runs submitted requests one at a time in the background so
// the terminal stays responsive, and lets the user cancel the running one.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"spokehub/internal/orchestrator"
)

const (
	StatusPending   = "PENDING"
	StatusRunning   = "RUNNING"
	StatusSucceeded = "SUCCEEDED"
	StatusFailed    = "FAILED"
	StatusCancelled = "CANCELLED"

	queueSize = 100
)

var ErrQueueFull = errors.New("request queue is full")

type Processor interface {
	Process(ctx context.Context, prompt, principal string) orchestrator.Response
}

type Request struct {
	ID        string
	Prompt    string
	Principal string
	State     string
}

type Result struct {
	RequestID string                `json:"request_id"`
	Prompt    string                `json:"prompt"`
	State     string                `json:"state"`
	Response  orchestrator.Response `json:"response"`
}

type Supervisor struct {
	proc    Processor
	log     *zap.Logger
	timeout time.Duration

	queue   chan *Request
	results chan Result

	curMu     sync.Mutex
	curReq    *Request
	curCancel context.CancelFunc
}

// New builds a Supervisor; timeout bounds each request (0 means none).
func New(proc Processor, timeout time.Duration, log *zap.Logger) *Supervisor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Supervisor{
		proc:    proc,
		log:     log,
		timeout: timeout,
		queue:   make(chan *Request, queueSize),
		results: make(chan Result, queueSize),
	}
}

// Results delivers one Result per submitted request. It is closed when Start returns.
func (s *Supervisor) Results() <-chan Result { return s.results }

// Start processes queued requests until ctx is done.
func (s *Supervisor) Start(ctx context.Context) {
	defer close(s.results)
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-s.queue:
			s.log.Info("starting request", zap.String("request_id", req.ID), zap.String("prompt", req.Prompt))
			res := s.run(ctx, req)
			select {
			case s.results <- res:
			case <-ctx.Done():
				s.log.Warn("dropping result, supervisor stopped", zap.String("request_id", req.ID))
				return
			}
		}
	}
}

func (s *Supervisor) Submit(prompt, principal string) (string, error) {
	req := &Request{
		ID:        uuid.New().String()[:8],
		Prompt:    prompt,
		Principal: principal,
		State:     StatusPending,
	}
	select {
	case s.queue <- req:
		return req.ID, nil
	default:
		return "", ErrQueueFull
	}
}

// Cancel stops the running request if its ID matches (any running request when id is empty).
func (s *Supervisor) Cancel(id string) (string, error) {
	s.curMu.Lock()
	defer s.curMu.Unlock()

	if s.curReq == nil || s.curReq.State != StatusRunning {
		return "", fmt.Errorf("no request is currently running")
	}
	if id != "" && !strings.EqualFold(s.curReq.ID, id) {
		return "", fmt.Errorf("request %s is not running (current running: %s)", id, s.curReq.ID)
	}
	s.curCancel()
	return s.curReq.ID, nil
}

func (s *Supervisor) run(parent context.Context, req *Request) Result {
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if s.timeout > 0 {
		ctx, cancel = context.WithTimeout(parent, s.timeout)
	} else {
		ctx, cancel = context.WithCancel(parent)
	}

	s.curMu.Lock()
	req.State = StatusRunning
	s.curReq = req
	s.curCancel = cancel
	s.curMu.Unlock()
	defer func() {
		cancel()
		s.curMu.Lock()
		s.curReq = nil
		s.curCancel = nil
		s.curMu.Unlock()
	}()

	resp := s.proc.Process(ctx, req.Prompt, req.Principal)

	state := StatusSucceeded
	switch {
	case errors.Is(ctx.Err(), context.Canceled) && parent.Err() == nil:
		state = StatusCancelled
	case !resp.Success:
		state = StatusFailed
	}
	s.curMu.Lock()
	req.State = state
	s.curMu.Unlock()

	s.log.Info("request finished",
		zap.String("request_id", req.ID),
		zap.String("state", state),
		zap.String("overall_status", resp.Summary.OverallStatus))
	return Result{RequestID: req.ID, Prompt: req.Prompt, State: state, Response: resp}
}
