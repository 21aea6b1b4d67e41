package web

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/EdwardQuah/CNN-Classification-CIFAR10/nnet"
	"github.com/EdwardQuah/CNN-Classification-CIFAR10/report"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Plot size in pixels
const (
	plotWidth  = 500
	plotHeight = 350
)

type TrainPage struct {
	*Templates
	net *Network
}

// template data for one request
type trainView struct {
	*TrainPage
	Selected *ModelState
}

// Base data for handler functions to run the experiment and display the stats
func NewTrainPage(t *Templates, net *Network) *TrainPage {
	p := &TrainPage{net: net, Templates: t}
	p.AddOption(Link{Name: "start", Url: "/run/start"})
	p.AddOption(Link{Name: "stop", Url: "/run/stop"})
	return p
}

// Handler function for the train template
func (p *TrainPage) Base() func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		p.net.Lock()
		defer p.net.Unlock()
		def := ""
		if len(p.net.Models) > 0 {
			def = p.net.Models[0].Name
		}
		view := trainView{TrainPage: p, Selected: p.net.Model(p.Templates.Model(w, r, def))}
		p.Select("/train")
		p.Heading = "experiment"
		p.SelectOptions(nil)
		if p.net.Running() {
			p.SelectOptions([]string{"start"})
		}
		p.Exec(w, "train", view)
	}
}

// Handler function for the start and stop commands
func (p *TrainPage) Command() func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		p.net.Lock()
		defer p.net.Unlock()
		switch mux.Vars(r)["cmd"] {
		case "start":
			if err := p.net.Start(); errors.Is(err, ErrRunning) {
				slog.Info("skip start - already running")
			}
		case "stop":
			p.net.Stop()
		}
		http.Redirect(w, r, "/train", http.StatusFound)
	}
}

// Handler function for websocket connection
func (p *TrainPage) Websocket() func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Error("websocket upgrade failed", "error", err)
			return
		}
		p.net.hub.add(conn)
		go func() {
			// clients do not send anything, the read fails when the connection is closed
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					p.net.hub.remove(conn)
					return
				}
			}
		}()
	}
}

// Handler function for the accuracy and loss plots in SVG format
func (p *TrainPage) Plot() func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		p.net.Lock()
		m := p.net.Model(vars["model"])
		var history []nnet.Stats
		if m != nil {
			history = append(history, m.Stats...)
		}
		p.net.Unlock()
		if m == nil {
			http.NotFound(w, r)
			return
		}
		metric := report.Accuracy
		if vars["metric"] == "loss" {
			metric = report.Loss
		}
		plt, err := report.HistoryPlot(m.Name, history, metric)
		if err != nil {
			logError(w, err)
			return
		}
		svg, err := report.SVG(plt, plotWidth, plotHeight)
		if err != nil {
			logError(w, err)
			return
		}
		w.Header().Set("Content-Type", "image/svg+xml")
		w.Write(svg)
	}
}

func (p *TrainPage) Run() string {
	return p.net.Run
}

func (p *TrainPage) Status() string {
	return p.net.Status()
}

func (p *TrainPage) Error() error {
	return p.net.Err
}

func (p *TrainPage) Models() []*ModelState {
	return p.net.Models
}

func (p *TrainPage) Headers() []string {
	return nnet.StatsHeaders()
}

func (p *TrainPage) PlotWidth() int { return plotWidth }

func (p *TrainPage) PlotHeight() int { return plotHeight }
