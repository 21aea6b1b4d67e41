package web

import (
	"fmt"
	"html/template"
	"net/http"
	"slices"

	"github.com/EdwardQuah/CNN-Classification-CIFAR10/experiment"
	"github.com/EdwardQuah/CNN-Classification-CIFAR10/nnet"
)

// network settings which can be changed from the config page
var editFields = []string{"MaxEpoch", "TrainBatch", "Optimiser", "Eta", "StopAfter", "DecayFactor", "DecayPatience", "MaxSamples"}

type ConfigPage struct {
	*Templates
	Model  string
	Fields []Field
	Layers []Layer
	net    *Network
}

type Field struct {
	Name    string
	Value   string
	Error   string
	Boolean bool
	On      bool
	Edit    bool
}

type Layer struct {
	Index int
	Desc  string
}

// Base data for handler functions to view and update the training settings of each model
func NewConfigPage(t *Templates, net *Network) *ConfigPage {
	p := &ConfigPage{net: net, Templates: t}
	p.AddOption(Link{Name: "save", Url: "/config/save", Submit: true})
	p.AddOption(Link{Name: "reset", Url: "/config/reset"})
	return p
}

// Handler function for the config template
func (p *ConfigPage) Base() func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		p.net.Lock()
		defer p.net.Unlock()
		if !p.load(w, r) {
			return
		}
		p.Exec(w, "config", p)
	}
}

// Handler function for the config form save action
func (p *ConfigPage) Save() func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		p.net.Lock()
		defer p.net.Unlock()
		if !p.load(w, r) {
			return
		}
		m, _ := p.net.Cfg.Model(p.Model)
		conf, _ := p.net.Cfg.Network(m)
		haveErrors := false
		for i, fld := range p.Fields {
			if !fld.Edit {
				continue
			}
			val := r.PostFormValue(fld.Name)
			p.Fields[i].Value = val
			var err error
			conf, err = conf.SetString(fld.Name, val)
			p.Fields[i].Error = ""
			if err != nil {
				p.Fields[i].Error = "invalid syntax"
				haveErrors = true
			}
		}
		if !haveErrors {
			cfg := p.net.Cfg
			cfg.Models = append([]experiment.Model{}, cfg.Models...)
			cfg.SetModel(experiment.FromNetwork(p.Model, conf))
			if err := cfg.Validate(); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			p.net.Cfg = cfg
			http.Redirect(w, r, "/config", http.StatusFound)
			return
		}
		p.Exec(w, "config", p)
	}
}

// Handler function to restore the default settings for the model
func (p *ConfigPage) Reset() func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		p.net.Lock()
		defer p.net.Unlock()
		model := p.Templates.Model(w, r, p.defaultModel())
		if def, ok := experiment.Default().Model(model); ok {
			p.net.Cfg.SetModel(def)
		} else {
			p.net.Cfg.SetModel(experiment.Model{Name: model})
		}
		http.Redirect(w, r, "/config", http.StatusFound)
	}
}

func (p *ConfigPage) defaultModel() string {
	if len(p.net.Cfg.Models) > 0 {
		return p.net.Cfg.Models[0].Name
	}
	return ""
}

// load the fields for the selected model, returns false if it is not found
func (p *ConfigPage) load(w http.ResponseWriter, r *http.Request) bool {
	p.Select("/config")
	p.Model = p.Templates.Model(w, r, p.defaultModel())
	m, ok := p.net.Cfg.Model(p.Model)
	if !ok {
		http.Error(w, fmt.Sprintf("model %q not found", p.Model), http.StatusNotFound)
		return false
	}
	conf, err := p.net.Cfg.Network(m)
	if err != nil {
		logError(w, err)
		return false
	}
	p.Heading = p.modelSelect()
	p.Fields = getFields(conf)
	p.Layers = getLayers(conf)
	return true
}

func (p *ConfigPage) modelSelect() template.HTML {
	html := `model: `
	for _, m := range p.net.Cfg.Models {
		if m.Name == p.Model {
			html += `<b>` + template.HTMLEscapeString(m.Name) + `</b> `
		} else {
			html += `<a href="/config?model=` + template.URLQueryEscaper(m.Name) + `">` + template.HTMLEscapeString(m.Name) + `</a> `
		}
	}
	return template.HTML(html)
}

func getFields(conf nnet.Config) []Field {
	var flds []Field
	for _, key := range conf.Fields() {
		f := Field{Name: key, Value: fmt.Sprint(conf.Get(key)), Edit: slices.Contains(editFields, key)}
		f.On, f.Boolean = conf.Get(key).(bool)
		flds = append(flds, f)
	}
	return flds
}

func getLayers(conf nnet.Config) []Layer {
	layers := make([]Layer, len(conf.Layers))
	for i, l := range conf.Layers {
		layers[i].Index = i
		layers[i].Desc = fmt.Sprint(l)
	}
	return layers
}
