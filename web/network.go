// Package web has a web based dashboard to run the experiment and follow the training progress.
package web

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/EdwardQuah/CNN-Classification-CIFAR10/experiment"
	"github.com/EdwardQuah/CNN-Classification-CIFAR10/nnet"
)

var ErrRunning = errors.New("experiment is already running")

// Model status values
const (
	Pending  = "pending"
	Training = "training"
	Done     = "done"
	Failed   = "failed"
	Stopped  = "stopped"
)

// ModelState has the progress of one model in the current run
type ModelState struct {
	Name    string
	Status  string
	Conf    nnet.Config
	Summary []nnet.LayerSummary
	Stats   []nnet.Stats
	Result  *experiment.Result
}

func (m *ModelState) Epoch() int {
	return len(m.Stats)
}

// Last returns the stats for the latest epoch
func (m *ModelState) Last() nnet.Stats {
	if len(m.Stats) == 0 {
		return nnet.Stats{}
	}
	return m.Stats[len(m.Stats)-1]
}

// Latest returns up to n stats, most recent first
func (m *ModelState) Latest(n int) []nnet.Stats {
	last := len(m.Stats) - 1
	res := []nnet.Stats{}
	for i := last; i >= 0 && i > last-n; i-- {
		res = append(res, m.Stats[i])
	}
	return res
}

// Message sent to websocket clients
type Message struct {
	Type   string      `json:"type"`
	Run    string      `json:"run"`
	Model  string      `json:"model,omitempty"`
	Status string      `json:"status,omitempty"`
	Stats  *nnet.Stats `json:"stats,omitempty"`
}

// Network runs the experiment in the background and records its progress. It implements
// experiment.Observer.
type Network struct {
	Cfg     experiment.Config
	Run     string
	Models  []*ModelState
	Err     error
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	hub     *hub
	data    *experiment.Data
	run     func(context.Context, experiment.Config, experiment.Observer) ([]experiment.Result, error)
	sync.Mutex
}

// NewNetwork creates the state for the models in the config.
func NewNetwork(cfg experiment.Config) *Network {
	n := &Network{Cfg: cfg, hub: newHub(), run: experiment.Run}
	n.reset()
	return n
}

func (n *Network) reset() {
	n.Models = nil
	for _, m := range n.Cfg.Models {
		n.Models = append(n.Models, &ModelState{Name: m.Name, Status: Pending})
	}
	n.Err = nil
}

// Model returns the state for the named model or nil if not found
func (n *Network) Model(name string) *ModelState {
	for _, m := range n.Models {
		if m.Name == name {
			return m
		}
	}
	return nil
}

// Running reports if training is in progress
func (n *Network) Running() bool {
	return n.running
}

// Status summarises the state of the run
func (n *Network) Status() string {
	switch {
	case n.running:
		return Training
	case errors.Is(n.Err, context.Canceled):
		return Stopped
	case n.Err != nil:
		return Failed
	case n.Run == "":
		return Pending
	default:
		return Done
	}
}

// Start runs the experiment in a new goroutine. Must be called with the lock held.
func (n *Network) Start() error {
	if n.running {
		return ErrRunning
	}
	n.reset()
	n.Run = ""
	n.running = true
	ctx, cancel := context.WithCancel(context.Background())
	n.cancel = cancel
	n.done = make(chan struct{})
	cfg := n.Cfg
	go func() {
		defer close(n.done)
		_, err := n.run(ctx, cfg, n)
		cancel()
		n.Lock()
		n.running = false
		n.Err = err
		for _, m := range n.Models {
			if m.Status == Training {
				m.Status = Stopped
				if !errors.Is(err, context.Canceled) {
					m.Status = Failed
				}
			}
		}
		msg := Message{Type: "end", Run: n.Run, Status: n.Status()}
		n.Unlock()
		if err != nil {
			slog.Error("experiment failed", "error", err)
		}
		n.hub.broadcast(msg)
	}()
	return nil
}

// Stop cancels the current run. Must be called with the lock held.
func (n *Network) Stop() {
	if n.running && n.cancel != nil {
		slog.Info("stopping experiment", "run", n.Run)
		n.cancel()
	}
}

// Wait until the background run completes, or the timeout expires
func (n *Network) Wait(timeout time.Duration) bool {
	n.Lock()
	done := n.done
	n.Unlock()
	if done == nil {
		return true
	}
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

func (n *Network) ModelStart(run, model string, conf nnet.Config, summary []nnet.LayerSummary) {
	n.Lock()
	n.Run = run
	if m := n.Model(model); m != nil {
		m.Status, m.Conf, m.Summary, m.Stats = Training, conf, summary, nil
	}
	n.Unlock()
	n.hub.broadcast(Message{Type: "start", Run: run, Model: model, Status: Training})
}

func (n *Network) EpochEnd(run, model string, s nnet.Stats) {
	n.Lock()
	if m := n.Model(model); m != nil {
		m.Stats = append(m.Stats, s)
	}
	n.Unlock()
	n.hub.broadcast(Message{Type: "epoch", Run: run, Model: model, Stats: &s})
}

func (n *Network) ModelEnd(run string, res experiment.Result) {
	n.Lock()
	if m := n.Model(res.Model); m != nil {
		m.Status, m.Result, m.Stats = Done, &res, res.History
	}
	n.Unlock()
	n.hub.broadcast(Message{Type: "done", Run: run, Model: res.Model, Status: Done})
}

// Data loads the data sets on first use. Must be called with the lock held.
func (n *Network) Data() (*experiment.Data, error) {
	if n.data != nil {
		return n.data, nil
	}
	cfg := n.Cfg
	cfg.Download = false
	var err error
	n.data, err = experiment.LoadData(context.Background(), cfg, nnet.NewRand(cfg.Seed))
	return n.data, err
}

// set of connected websocket clients
type hub struct {
	conns map[*websocket.Conn]bool
	sync.Mutex
}

func newHub() *hub {
	return &hub{conns: map[*websocket.Conn]bool{}}
}

func (h *hub) add(c *websocket.Conn) {
	h.Lock()
	h.conns[c] = true
	h.Unlock()
}

func (h *hub) remove(c *websocket.Conn) {
	h.Lock()
	if h.conns[c] {
		delete(h.conns, c)
		c.Close()
	}
	h.Unlock()
}

func (h *hub) count() int {
	h.Lock()
	defer h.Unlock()
	return len(h.conns)
}

func (h *hub) broadcast(msg Message) {
	h.Lock()
	defer h.Unlock()
	for c := range h.conns {
		c.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := c.WriteJSON(msg); err != nil {
			slog.Warn("error writing to websocket", "error", err)
			delete(h.conns, c)
			c.Close()
		}
	}
}
