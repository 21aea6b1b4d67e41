package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"

	"github.com/EdwardQuah/CNN-Classification-CIFAR10/experiment"
)

// Options for the web server. If Password is empty then authentication is disabled.
type Options struct {
	User       string
	Password   string
	SessionKey []byte
	Scale      int
	Rows       int
	Cols       int
}

func DefaultOptions() Options {
	return Options{User: "admin", Scale: 3, Rows: 8, Cols: 10}
}

// Server has the routes for the dashboard pages
type Server struct {
	Net     *Network
	handler http.Handler
}

// NewServer creates the handlers for the experiment.
func NewServer(cfg experiment.Config, opts Options) (*Server, error) {
	if len(opts.SessionKey) == 0 {
		opts.SessionKey = securecookie.GenerateRandomKey(32)
	}
	t, err := NewTemplates(sessions.NewCookieStore(opts.SessionKey))
	if err != nil {
		return nil, err
	}
	net := NewNetwork(cfg)
	trainPage := NewTrainPage(t.Clone(), net)
	configPage := NewConfigPage(t.Clone(), net)
	viewPage := NewViewPage(t.Clone(), net)
	imagePage := NewImagePage(t.Clone(), net, opts.Scale, opts.Rows, opts.Cols)

	r := mux.NewRouter()
	r.Handle("/", http.RedirectHandler("/train", http.StatusFound))
	r.PathPrefix("/static/").Handler(http.StripPrefix("/static/", http.FileServer(staticFiles())))

	r.HandleFunc("/train", trainPage.Base())
	r.HandleFunc("/train/{model}", trainPage.Base())
	r.HandleFunc("/run/{cmd:(?:start|stop)}", trainPage.Command())
	r.HandleFunc("/ws", trainPage.Websocket())
	r.HandleFunc("/plot/{model}/{metric:(?:accuracy|loss)}.svg", trainPage.Plot())

	r.HandleFunc("/config", configPage.Base())
	r.HandleFunc("/config/save", configPage.Save()).Methods("POST")
	r.HandleFunc("/config/reset", configPage.Reset())

	r.HandleFunc("/view", viewPage.Base())
	r.HandleFunc("/view/{model}", viewPage.Base())

	r.Handle("/images", http.RedirectHandler("/images/train/0", http.StatusFound))
	r.HandleFunc("/images/{dset:(?:train|valid|test)}/{class:[0-9]+}", imagePage.Base())
	r.HandleFunc("/images/{dset:(?:train|valid|test)}/{opt:(?:all|errors|prev|next|distort)}", imagePage.Setopt())
	r.HandleFunc("/img/{dset}/{id:[0-9]+}.png", imagePage.Image())

	s := &Server{Net: net, handler: r}
	if opts.Password != "" {
		r.Use(NewAuthMiddleware(opts.User, opts.Password).Middleware)
	} else {
		slog.Warn("authentication is disabled")
	}
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// ListenAndServe serves the dashboard until the context is cancelled, then stops any training
// in progress and shuts down the server.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s}
	errc := make(chan error, 1)
	go func() {
		slog.Info("serving dashboard", "addr", addr)
		errc <- srv.ListenAndServe()
	}()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	s.Net.Lock()
	s.Net.Stop()
	s.Net.Unlock()
	s.Net.Wait(30 * time.Second)
	shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdown); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
