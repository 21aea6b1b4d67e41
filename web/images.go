package web

import (
	"fmt"
	"html/template"
	"image"
	"image/png"
	"math/rand"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"golang.org/x/image/draw"

	"github.com/EdwardQuah/CNN-Classification-CIFAR10/img"
)

type ImagePage struct {
	*Templates
	Dset    string
	Class   int
	Page    int
	Errors  bool
	Distort string
	Rows    []int
	Cols    []int
	Width   int
	Height  int
	Pages   int
	Total   int
	scale   int
	data    *img.Data
	net     *Network
}

// Base data for handler functions to view the input images. Class 0 selects all classes, else the
// class label plus one.
func NewImagePage(t *Templates, net *Network, scale, rows, cols int) *ImagePage {
	p := &ImagePage{net: net, Templates: t, Page: 1, scale: scale}
	for _, name := range []string{"all", "errors", "prev", "next", "distort"} {
		p.AddOption(Link{Name: name, Url: "./" + name})
	}
	p.Rows = seq(rows)
	p.Cols = seq(cols)
	return p
}

func (p *ImagePage) dataset(name string) (*img.Data, error) {
	d, err := p.net.Data()
	if err != nil {
		return nil, err
	}
	switch name {
	case "train":
		return d.Train, nil
	case "valid":
		return d.Valid, nil
	case "test":
		return d.Test, nil
	}
	return nil, fmt.Errorf("unknown data set %q", name)
}

// Handler function for the main image page
func (p *ImagePage) Base() func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		p.net.Lock()
		defer p.net.Unlock()
		vars := mux.Vars(r)
		if !p.load(w, vars) {
			return
		}
		base := "/images/" + p.Dset + "/"
		p.Select(base)
		sel := []string{"all"}
		if p.Errors {
			sel = []string{"errors"}
		}
		if p.Distort != "" {
			sel = append(sel, "distort")
		}
		p.SelectOptions(sel)
		p.Heading = template.HTML(p.Dset + " images")
		p.Dropdown = []Link{{Name: "all classes", Url: base + "0", Selected: p.Class == 0}}
		for i, class := range p.data.Classes() {
			p.Dropdown = append(p.Dropdown, Link{Name: class, Url: base + strconv.Itoa(i+1), Selected: i+1 == p.Class})
		}
		p.Total, p.Pages = p.pageCount()
		if p.Page > p.Pages || p.Page < 1 {
			p.Page = 1
		}
		p.Exec(w, "images", p)
	}
}

func (p *ImagePage) load(w http.ResponseWriter, vars map[string]string) bool {
	data, err := p.dataset(vars["dset"])
	if err != nil {
		logError(w, err)
		return false
	}
	if p.Dset != vars["dset"] {
		p.Page = 1
	}
	p.Dset, p.data = vars["dset"], data
	if c, err := strconv.Atoi(vars["class"]); err == nil && c >= 0 && c <= len(data.Classes()) {
		if c != p.Class {
			p.Page = 1
		}
		p.Class = c
	}
	p.Width = data.Dims[1] * p.scale
	p.Height = data.Dims[0] * p.scale
	return true
}

// Set option from top menu
func (p *ImagePage) Setopt() func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		p.net.Lock()
		defer p.net.Unlock()
		vars := mux.Vars(r)
		if !p.load(w, vars) {
			return
		}
		p.Total, p.Pages = p.pageCount()
		switch vars["opt"] {
		case "all":
			p.Errors = false
			p.Page = 1
		case "errors":
			p.Errors = true
			p.Page = 1
		case "prev":
			p.Page = mod(p.Page-1, 1, p.Pages)
		case "next":
			p.Page = mod(p.Page+1, 1, p.Pages)
		case "distort":
			if p.Distort == "" {
				p.Distort = strconv.Itoa(rand.Intn(999999))
			} else {
				p.Distort = ""
			}
		}
		http.Redirect(w, r, fmt.Sprintf("/images/%s/%d", p.Dset, p.Class), http.StatusFound)
	}
}

// predictions of the selected model, only available for the test set once it has been trained
func (p *ImagePage) predictions() []int32 {
	if p.Dset != "test" {
		return nil
	}
	for _, m := range p.net.Models {
		if m.Result != nil && len(m.Result.Pred) == p.data.Len() {
			return m.Result.Pred
		}
	}
	return nil
}

func (p *ImagePage) pageCount() (nimg, pages int) {
	for i := range p.data.Labels {
		if p.showImage(i) {
			nimg++
		}
	}
	per := len(p.Rows) * len(p.Cols)
	pages = max(1, (nimg+per-1)/per)
	return nimg, pages
}

func (p *ImagePage) showImage(i int) bool {
	labels := p.data.Labels
	if i >= len(labels) {
		return false
	}
	show := p.Class == 0 || int(labels[i]) == p.Class-1
	if p.Errors {
		if pred := p.predictions(); pred != nil {
			show = show && pred[i] != labels[i]
		} else {
			show = false
		}
	}
	return show
}

// Index returns the image number for the grid cell starting from 1, or 0 if the cell is empty.
func (p *ImagePage) Index(row, col int) int {
	rows, cols := len(p.Rows), len(p.Cols)
	index := (p.Page-1)*rows*cols + row*cols + col
	for i := range p.data.Labels {
		if p.showImage(i) {
			index--
			if index < 0 {
				return i + 1
			}
		}
	}
	return 0
}

func (p *ImagePage) Label(i int) string {
	classes := p.data.Classes()
	label := p.data.Labels[i-1]
	text := classes[label]
	if pred := p.predictions(); pred != nil && pred[i-1] != label {
		text += " => " + classes[pred[i-1]]
	}
	return text
}

// Handler function for the image data
func (p *ImagePage) Image() func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		p.net.Lock()
		defer p.net.Unlock()
		vars := mux.Vars(r)
		data, err := p.dataset(vars["dset"])
		if err != nil {
			http.NotFound(w, r)
			return
		}
		id, _ := strconv.Atoi(vars["id"])
		if id < 1 || id > data.Len() {
			http.NotFound(w, r)
			return
		}
		m := data.Images[id-1]
		if seed, err := strconv.ParseInt(r.FormValue("d"), 10, 64); err == nil {
			rng := rand.New(rand.NewSource(seed + int64(id)))
			t := img.NewTransformer(img.HorizFlip|img.Shift, nil, nil, 1, rng)
			dst := img.NewImageLike(m)
			t.Transform(m, dst.Pix, rng)
			m = dst
		}
		if vars["dset"] == p.Dset && p.data == data {
			if pred := p.predictions(); pred != nil && pred[id-1] != data.Labels[id-1] {
				m = img.Highlight(m)
			}
		}
		w.Header().Set("Content-Type", "image/png")
		png.Encode(w, scaled(m, p.scale))
	}
}

func scaled(m image.Image, scale int) *image.RGBA {
	b := m.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx()*scale, b.Dy()*scale))
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), m, b, draw.Src, nil)
	return dst
}

func seq(n int) []int {
	s := make([]int, n)
	for i := range s {
		s[i] = i
	}
	return s
}

func mod(i, min, max int) int {
	if i < min {
		i = max
	}
	if i > max {
		i = min
	}
	return i
}
