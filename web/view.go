package web

import (
	"fmt"
	"html/template"
	"net/http"

	"github.com/EdwardQuah/CNN-Classification-CIFAR10/cifar"
	"github.com/EdwardQuah/CNN-Classification-CIFAR10/nnet"
	"github.com/EdwardQuah/CNN-Classification-CIFAR10/num"
)

type ViewPage struct {
	*Templates
	Summary []nnet.LayerSummary
	Total   int
	net     *Network
}

// Base data for handler functions to view the layers of each model
func NewViewPage(t *Templates, net *Network) *ViewPage {
	return &ViewPage{net: net, Templates: t}
}

// Handler function for the model summary
func (p *ViewPage) Base() func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		p.net.Lock()
		defer p.net.Unlock()
		p.Select("/view")
		def := ""
		if len(p.net.Models) > 0 {
			def = p.net.Models[0].Name
		}
		name := p.Templates.Model(w, r, def)
		m := p.net.Model(name)
		if m == nil {
			http.NotFound(w, r)
			return
		}
		if m.Summary == nil {
			var err error
			if m.Summary, err = p.summary(name); err != nil {
				logError(w, err)
				return
			}
		}
		p.Summary = m.Summary
		p.Total = 0
		for _, l := range p.Summary {
			p.Total += l.Params
		}
		p.Heading = template.HTML(fmt.Sprintf("model: %s", template.HTMLEscapeString(name)))
		p.Dropdown = nil
		for _, m := range p.net.Models {
			p.Dropdown = append(p.Dropdown, Link{Name: m.Name, Url: "/view/" + m.Name, Selected: m.Name == name})
		}
		p.Exec(w, "view", p)
	}
}

// build the network with a batch size of one to get the layer shapes
func (p *ViewPage) summary(name string) ([]nnet.LayerSummary, error) {
	m, ok := p.net.Cfg.Model(name)
	if !ok {
		return nil, fmt.Errorf("model %q not configured", name)
	}
	conf, err := p.net.Cfg.Network(m)
	if err != nil {
		return nil, err
	}
	q := num.NewDevice().NewQueue(1)
	defer q.Shutdown()
	net := nnet.New(q, conf, 1, []int{cifar.Height, cifar.Width, cifar.Channels}, nnet.NewRand(1))
	defer net.Release()
	return net.Summary(), nil
}
