// Package fakedash serves a small stand-in for the Rancher dashboard's
// Elemental pages. Browser tests drive it with the same sequences used
// against a real dashboard.
package fakedash

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/kuitang/machreg-e2e/internal/errs"
	"github.com/kuitang/machreg-e2e/internal/machreg"
	"github.com/kuitang/machreg-e2e/internal/obs"
	"github.com/kuitang/machreg-e2e/internal/ratelimit"
)

// SessionCookie names the cookie that carries the login token.
const SessionCookie = "R_SESS"

// LoginPath is the endpoint the login form posts to.
const LoginPath = "/v3-public/localProviders/local"

const apiPrefix = "/v1/elemental.cattle.io.machineregistrations"

const maxBodyBytes = 1 << 20

// Options configures a Server.
type Options struct {
	Username string
	Password string
	// LoginRateLimit limits login attempts per client IP. Zero values
	// use ratelimit.DefaultConfig.
	LoginRateLimit ratelimit.Config
}

// Server is the fake dashboard.
type Server struct {
	opts     Options
	store    *Store
	renderer *Renderer
	limiter  *ratelimit.RateLimiter
	handler  http.Handler

	logins   atomic.Int64
	mu       sync.RWMutex
	sessions map[string]string
}

// New creates a Server with an empty registration store.
func New(opts Options) (*Server, error) {
	renderer, err := NewRenderer()
	if err != nil {
		return nil, err
	}
	rl := opts.LoginRateLimit
	if rl.RPS == 0 && rl.Burst == 0 {
		rl = ratelimit.DefaultConfig
	}
	s := &Server{
		opts:     opts,
		store:    NewStore(),
		renderer: renderer,
		limiter:  ratelimit.NewRateLimiter(rl),
		sessions: make(map[string]string),
	}
	s.handler = s.routes()
	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Store exposes the registration store for test setup and assertions.
func (s *Server) Store() *Store { return s.store }

// LoginCount returns the number of successful logins.
func (s *Server) LoginCount() int { return int(s.logins.Load()) }

// Close stops background work.
func (s *Server) Close() {
	s.limiter.Stop()
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("GET /static/", staticHandler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/dashboard/home", http.StatusFound)
	})

	mux.HandleFunc("GET /auth/login", s.handleLoginPage)
	loginLimit := ratelimit.Middleware(s.limiter, ratelimit.ClientIP)
	mux.Handle("POST "+LoginPath, loginLimit(http.HandlerFunc(s.handleLogin)))
	mux.HandleFunc("POST /v3/tokens", s.handleLogout)

	mux.HandleFunc("GET /dashboard/home", s.requirePage(s.handleHome))
	mux.HandleFunc("GET /elemental", s.requirePage(s.handleElemental))
	mux.HandleFunc("GET /elemental/registrations", s.requirePage(s.handleList))
	mux.HandleFunc("GET /elemental/registrations/create", s.requirePage(s.handleCreatePage))
	mux.HandleFunc("GET /elemental/registrations/{namespace}/{name}", s.requirePage(s.handleDetail))
	mux.HandleFunc("GET /elemental/registrations/{namespace}/{name}/yaml", s.requirePage(s.handleYAMLPage))
	mux.HandleFunc("GET /elemental/registrations/{namespace}/{name}/edit", s.requirePage(s.handleEditPage))
	mux.HandleFunc("POST /elemental/registrations/create", s.requirePage(s.handleCreateSubmit))
	mux.HandleFunc("POST /elemental/registrations/{namespace}/{name}/edit", s.requirePage(s.handleEditSubmit))
	mux.HandleFunc("POST /elemental/registrations/{namespace}/{name}/yaml", s.requirePage(s.handleYAMLSubmit))

	mux.HandleFunc("GET "+apiPrefix, s.requireAPI(s.apiList))
	mux.HandleFunc("POST "+apiPrefix, s.requireAPI(s.apiCreate))
	mux.HandleFunc("PUT "+apiPrefix+"/{namespace}/{name}", s.requireAPI(s.apiUpdate))
	mux.HandleFunc("PUT "+apiPrefix+"/{namespace}/{name}/yaml", s.requireAPI(s.apiUpdateYAML))
	mux.HandleFunc("DELETE "+apiPrefix+"/{namespace}/{name}", s.requireAPI(s.apiDelete))

	return obs.AccessLogMiddleware("fakedash", mux)
}

func (s *Server) sessionUser(r *http.Request) (string, bool) {
	c, err := r.Cookie(SessionCookie)
	if err != nil || c.Value == "" {
		return "", false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.sessions[c.Value]
	return user, ok
}

func (s *Server) requirePage(next func(http.ResponseWriter, *http.Request, string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := s.sessionUser(r)
		if !ok {
			http.Redirect(w, r, "/auth/login", http.StatusFound)
			return
		}
		next(w, r, user)
	}
}

func (s *Server) requireAPI(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := s.sessionUser(r); !ok {
			writeError(w, http.StatusUnauthorized, "must authenticate")
			return
		}
		next(w, r)
	}
}

// page is the data passed to every template.
type page struct {
	Title           string
	User            string
	Registrations   []Registration
	Registration    Registration
	Namespaces      []string
	Manifest        string
	RegistrationURL string
	Error           string
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, name string, data page) {
	if err := s.renderer.Render(w, name, data); err != nil {
		obs.From(r.Context()).With("pkg", "fakedash").Error("render_failed", "template", name, "error", err.Error())
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, "login.html", page{Title: "Log In"})
}

type loginRequest struct {
	Username     string `json:"username"`
	Password     string `json:"password"`
	ResponseType string `json:"responseType"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	logger := obs.From(r.Context()).With("pkg", "fakedash")
	if r.URL.Query().Get("action") != "login" {
		writeError(w, http.StatusBadRequest, "unsupported action")
		return
	}
	var req loginRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid login body")
		return
	}
	if req.Username != s.opts.Username || req.Password != s.opts.Password || req.Username == "" {
		logger.Warn("login_rejected", "username", req.Username)
		writeError(w, http.StatusUnauthorized, "Invalid username or password")
		return
	}

	token := uuid.NewString()
	s.mu.Lock()
	s.sessions[token] = req.Username
	s.mu.Unlock()
	s.logins.Add(1)

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	logger.Info("login", "username", req.Username)
	writeJSON(w, http.StatusOK, map[string]string{"type": "token", "user": req.Username})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("action") != "logout" {
		writeError(w, http.StatusBadRequest, "unsupported action")
		return
	}
	if c, err := r.Cookie(SessionCookie); err == nil {
		s.mu.Lock()
		delete(s.sessions, c.Value)
		s.mu.Unlock()
	}
	http.SetCookie(w, &http.Cookie{Name: SessionCookie, Value: "", Path: "/", MaxAge: -1})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request, user string) {
	s.render(w, r, "home.html", page{Title: "Home", User: user})
}

func (s *Server) handleElemental(w http.ResponseWriter, r *http.Request, user string) {
	s.render(w, r, "dashboard.html", page{
		Title:         "OS Management",
		User:          user,
		Registrations: s.store.List(),
	})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request, user string) {
	s.render(w, r, "list.html", page{
		Title:         "Machine Registrations",
		User:          user,
		Registrations: s.store.List(),
	})
}

func (s *Server) handleCreatePage(w http.ResponseWriter, r *http.Request, user string) {
	s.render(w, r, "create.html", page{
		Title:      "Machine Registration: Create",
		User:       user,
		Namespaces: s.store.Namespaces(),
	})
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (Registration, bool) {
	reg, err := s.store.Get(r.PathValue("namespace"), r.PathValue("name"))
	if err != nil {
		http.NotFound(w, r)
		return Registration{}, false
	}
	return reg, true
}

func registrationURL(r *http.Request, reg Registration) string {
	return "https://" + r.Host + "/elemental/registration/" + reg.Token
}

func (s *Server) handleDetail(w http.ResponseWriter, r *http.Request, user string) {
	reg, ok := s.lookup(w, r)
	if !ok {
		return
	}
	s.render(w, r, "detail.html", page{
		Title:           machreg.TitleBanner(reg.Name),
		User:            user,
		Registration:    reg,
		RegistrationURL: registrationURL(r, reg),
	})
}

func (s *Server) handleYAMLPage(w http.ResponseWriter, r *http.Request, user string) {
	reg, ok := s.lookup(w, r)
	if !ok {
		return
	}
	manifest, err := reg.Manifest(registrationURL(r, reg))
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	s.render(w, r, "yaml.html", page{
		Title:        machreg.TitleBanner(reg.Name),
		User:         user,
		Registration: reg,
		Manifest:     manifest,
	})
}

func (s *Server) handleEditPage(w http.ResponseWriter, r *http.Request, user string) {
	reg, ok := s.lookup(w, r)
	if !ok {
		return
	}
	s.render(w, r, "edit.html", page{
		Title:        machreg.TitleBanner(reg.Name),
		User:         user,
		Registration: reg,
	})
}

func formPairs(form url.Values, section string) []pair {
	keys, values := form[section+".key"], form[section+".value"]
	pairs := make([]pair, 0, len(keys))
	for i, k := range keys {
		p := pair{Key: k}
		if i < len(values) {
			p.Value = values[i]
		}
		pairs = append(pairs, p)
	}
	return pairs
}

func detailPath(reg Registration) string {
	return "/elemental/registrations/" + reg.Namespace + "/" + reg.Name
}

func (s *Server) handleCreateSubmit(w http.ResponseWriter, r *http.Request, user string) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	namespace := strings.TrimSpace(r.PostForm.Get("namespace"))
	newNamespace := strings.TrimSpace(r.PostForm.Get("newNamespace"))
	if newNamespace != "" {
		namespace = newNamespace
	}
	reg, err := s.store.Create(Registration{
		Name:        strings.TrimSpace(r.PostForm.Get("name")),
		Namespace:   namespace,
		Labels:      pairsToMap(formPairs(r.PostForm, "labels")),
		Annotations: pairsToMap(formPairs(r.PostForm, "annotations")),
	}, newNamespace != "")
	if err != nil {
		w.WriteHeader(http.StatusUnprocessableEntity)
		s.render(w, r, "create.html", page{
			Title:      "Machine Registration: Create",
			User:       user,
			Namespaces: s.store.Namespaces(),
			Error:      errs.MessageOf(err),
		})
		return
	}
	obs.From(r.Context()).With("pkg", "fakedash").Info("registration_created", "id", reg.ID())
	http.Redirect(w, r, detailPath(reg), http.StatusSeeOther)
}

func (s *Server) handleEditSubmit(w http.ResponseWriter, r *http.Request, user string) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	reg, err := s.store.SetMetadata(r.PathValue("namespace"), r.PathValue("name"),
		pairsToMap(formPairs(r.PostForm, "labels")), pairsToMap(formPairs(r.PostForm, "annotations")))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	http.Redirect(w, r, detailPath(reg), http.StatusSeeOther)
}

func (s *Server) handleYAMLSubmit(w http.ResponseWriter, r *http.Request, user string) {
	reg, ok := s.lookup(w, r)
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	text := r.PostForm.Get("yaml")
	updated, err := s.applyManifest(reg, text)
	if err != nil {
		w.WriteHeader(http.StatusUnprocessableEntity)
		s.render(w, r, "yaml.html", page{
			Title:        machreg.TitleBanner(reg.Name),
			User:         user,
			Registration: reg,
			Manifest:     text,
			Error:        err.Error(),
		})
		return
	}
	http.Redirect(w, r, detailPath(updated), http.StatusSeeOther)
}

// applyManifest stores the labels and annotations of an edited manifest.
// Name and namespace are immutable.
func (s *Server) applyManifest(reg Registration, text string) (Registration, error) {
	doc, err := machreg.ParseDocument(text)
	if err != nil {
		return Registration{}, err
	}
	if doc.Metadata.Name != reg.Name || (doc.Metadata.Namespace != "" && doc.Metadata.Namespace != reg.Namespace) {
		return Registration{}, errs.New(errs.InvalidArgument, "metadata.name and metadata.namespace cannot change")
	}
	return s.store.SetMetadata(reg.Namespace, reg.Name, doc.Metadata.Labels, doc.Metadata.Annotations)
}

type pair struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type registrationRequest struct {
	Name            string `json:"name"`
	Namespace       string `json:"namespace"`
	CreateNamespace bool   `json:"createNamespace"`
	Labels          []pair `json:"labels"`
	Annotations     []pair `json:"annotations"`
}

type registrationResponse struct {
	Name        string            `json:"name"`
	Namespace   string            `json:"namespace"`
	Labels      map[string]string `json:"labels"`
	Annotations map[string]string `json:"annotations"`
	Location    string            `json:"location"`
}

func toResponse(reg Registration) registrationResponse {
	return registrationResponse{
		Name:        reg.Name,
		Namespace:   reg.Namespace,
		Labels:      reg.Labels,
		Annotations: reg.Annotations,
		Location:    detailPath(reg),
	}
}

// pairsToMap drops rows whose key was left blank, as the dashboard does.
func pairsToMap(pairs []pair) map[string]string {
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		if key := strings.TrimSpace(p.Key); key != "" {
			out[key] = p.Value
		}
	}
	return out
}

func decodeRegistration(w http.ResponseWriter, r *http.Request) (registrationRequest, bool) {
	var req registrationRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return req, false
	}
	return req, true
}

func (s *Server) apiList(w http.ResponseWriter, r *http.Request) {
	regs := s.store.List()
	out := make([]registrationResponse, 0, len(regs))
	for _, reg := range regs {
		out = append(out, toResponse(reg))
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": out})
}

func (s *Server) apiCreate(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRegistration(w, r)
	if !ok {
		return
	}
	reg, err := s.store.Create(Registration{
		Name:        strings.TrimSpace(req.Name),
		Namespace:   strings.TrimSpace(req.Namespace),
		Labels:      pairsToMap(req.Labels),
		Annotations: pairsToMap(req.Annotations),
	}, req.CreateNamespace)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	obs.From(r.Context()).With("pkg", "fakedash").Info("registration_created", "id", reg.ID())
	writeJSON(w, http.StatusCreated, toResponse(reg))
}

func (s *Server) apiUpdate(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRegistration(w, r)
	if !ok {
		return
	}
	reg, err := s.store.SetMetadata(r.PathValue("namespace"), r.PathValue("name"), pairsToMap(req.Labels), pairsToMap(req.Annotations))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(reg))
}

func (s *Server) apiUpdateYAML(w http.ResponseWriter, r *http.Request) {
	reg, err := s.store.Get(r.PathValue("namespace"), r.PathValue("name"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	updated, err := s.applyManifest(reg, string(body))
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toResponse(updated))
}

func (s *Server) apiDelete(w http.ResponseWriter, r *http.Request) {
	namespace, name := r.PathValue("namespace"), r.PathValue("name")
	if err := s.store.Delete(namespace, name); err != nil {
		writeStoreError(w, err)
		return
	}
	obs.From(r.Context()).With("pkg", "fakedash").Info("registration_deleted", "id", namespace+"/"+name)
	w.WriteHeader(http.StatusNoContent)
}

func writeStoreError(w http.ResponseWriter, err error) {
	switch errs.CodeOf(err) {
	case errs.NotFound:
		writeError(w, http.StatusNotFound, errs.MessageOf(err))
	case errs.InvalidArgument:
		writeError(w, http.StatusConflict, errs.MessageOf(err))
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"type": "error", "message": message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		obs.Pkg("fakedash").Debug("write_json_failed", "error", err.Error())
	}
}
