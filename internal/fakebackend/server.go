// Package fakebackend is an in-memory stand-in for the dashboard REST
// backend, routed with gorilla/mux and served by httptest. Tests only.
package fakebackend

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/gorilla/mux"

	"github.com/and161185/c3ds-console/internal/convert"
	"github.com/and161185/c3ds-console/internal/model"
)

const (
	sessionCookie = "sessionid"
	csrfCookie    = "csrftoken"
)

type account struct {
	password string
	user     model.User
}

type device struct {
	owner string
	wire  convert.Device
}

// Server is a running fake backend.
type Server struct {
	*httptest.Server

	mu            sync.Mutex
	accounts      map[string]account
	sessions      map[string]string
	devices       map[string]*device
	order         []string
	messages      []convert.Message
	stats         convert.Stats
	bundleExpired bool
	hits          map[string]int
	lastQuery     map[string]string
	nextSession   int
}

// New starts a backend that is closed with the test.
func New(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		accounts:  map[string]account{},
		sessions:  map[string]string{},
		devices:   map[string]*device{},
		hits:      map[string]int{},
		lastQuery: map[string]string{},
	}
	s.Server = httptest.NewServer(s.router())
	t.Cleanup(s.Close)
	return s
}

// AddUser registers an account.
func (s *Server) AddUser(username, password string, participant bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ut := model.UserTypeNonParticipant
	if participant {
		ut = model.UserTypeParticipant
	}
	s.accounts[username] = account{password: password, user: model.User{
		Username:    username,
		Email:       username + "@example.test",
		UserType:    ut,
		Participant: participant,
	}}
}

// AddDevice stores a device owned by owner and returns its ID.
func (s *Server) AddDevice(owner string, d convert.Device) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addDeviceLocked(owner, d)
}

func (s *Server) addDeviceLocked(owner string, d convert.Device) string {
	if d.ID == "" {
		d.ID = uuid.Must(uuid.NewV4()).String()
	}
	if d.Status == "" {
		d.Status = string(model.DeviceStatusPending)
	}
	if d.CreatedAt == nil {
		now := time.Now().UTC()
		d.CreatedAt = &now
	}
	s.devices[d.ID] = &device{owner: owner, wire: d}
	s.order = append(s.order, d.ID)
	return d.ID
}

// Device returns the stored wire device.
func (s *Server) Device(id string) (convert.Device, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.devices[id]
	if !ok {
		return convert.Device{}, false
	}
	return d.wire, true
}

// AddMessages appends feed messages; the feed is served newest first.
func (s *Server) AddMessages(ms ...convert.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, ms...)
}

// SetStats replaces the dashboard counters.
func (s *Server) SetStats(st convert.Stats) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats = st
}

// SetBundleExpired makes bundle downloads answer 410.
func (s *Server) SetBundleExpired(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bundleExpired = v
}

// ExpireSessions drops every server-side session so the next call gets 401.
func (s *Server) ExpireSessions() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = map[string]string{}
}

// Hits returns how often "METHOD /route/template/" was served.
func (s *Server) Hits(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[route]
}

// LastQuery returns the raw query string of the last call to route.
func (s *Server) LastQuery(route string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastQuery[route]
}

func (s *Server) router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.count)
	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/auth/csrf/", s.csrf).Methods(http.MethodGet)
	api.HandleFunc("/auth/me/", s.me).Methods(http.MethodGet)
	api.HandleFunc("/auth/login/", s.checkCSRF(s.login)).Methods(http.MethodPost)
	api.HandleFunc("/auth/logout/", s.checkCSRF(s.logout)).Methods(http.MethodPost)
	api.HandleFunc("/auth/register/", s.checkCSRF(s.register)).Methods(http.MethodPost)
	api.HandleFunc("/devices/public/", s.publicDevices).Methods(http.MethodGet)
	api.HandleFunc("/devices/participant/", s.participant(s.myDevices)).Methods(http.MethodGet)
	api.HandleFunc("/devices/participant/", s.checkCSRF(s.participant(s.createDevice))).Methods(http.MethodPost)
	api.HandleFunc("/devices/participant/{id}/", s.participant(s.myDevice)).Methods(http.MethodGet)
	api.HandleFunc("/devices/participant/{id}/", s.checkCSRF(s.participant(s.patchDevice))).Methods(http.MethodPatch)
	api.HandleFunc("/devices/participant/{id}/", s.checkCSRF(s.participant(s.revokeDevice))).Methods(http.MethodDelete)
	api.HandleFunc("/devices/participant/{id}/certificate/", s.checkCSRF(s.participant(s.generate))).Methods(http.MethodPost)
	api.HandleFunc("/devices/participant/{id}/certificate/download/", s.participant(s.certPEM)).Methods(http.MethodGet)
	api.HandleFunc("/devices/participant/{id}/private-key/download/", s.participant(s.keyPEM)).Methods(http.MethodGet)
	api.HandleFunc("/devices/participant/{id}/bundle/", s.checkCSRF(s.participant(s.bundle))).Methods(http.MethodPost)
	api.HandleFunc("/dashboard/stats/", s.dashboardStats).Methods(http.MethodGet)
	api.HandleFunc("/messages/", s.feed).Methods(http.MethodGet)
	return r
}

func (s *Server) count(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := r.Method + " " + templatePath(r.URL.Path)
		s.mu.Lock()
		s.hits[route]++
		s.lastQuery[route] = r.URL.RawQuery
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

// templatePath replaces UUID segments with {id}.
func templatePath(p string) string {
	parts := strings.Split(strings.TrimPrefix(p, "/api/v1"), "/")
	for i, part := range parts {
		if _, err := uuid.FromString(part); err == nil {
			parts[i] = "{id}"
		}
	}
	return strings.Join(parts, "/")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func detail(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"detail": msg})
}

func (s *Server) userFor(r *http.Request) (model.User, bool) {
	ck, err := r.Cookie(sessionCookie)
	if err != nil {
		return model.User{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	name, ok := s.sessions[ck.Value]
	if !ok {
		return model.User{}, false
	}
	return s.accounts[name].user, true
}

func (s *Server) checkCSRF(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ck, err := r.Cookie(csrfCookie)
		if err != nil || ck.Value == "" || r.Header.Get("X-CSRFToken") != ck.Value {
			detail(w, http.StatusForbidden, "CSRF Failed: CSRF token missing or incorrect.")
			return
		}
		next(w, r)
	}
}

func (s *Server) participant(next func(http.ResponseWriter, *http.Request, model.User)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, ok := s.userFor(r)
		if !ok {
			detail(w, http.StatusUnauthorized, "Authentication credentials were not provided.")
			return
		}
		if !u.IsParticipant() {
			detail(w, http.StatusForbidden, "You do not have permission to perform this action.")
			return
		}
		next(w, r, u)
	}
}

func (s *Server) csrf(w http.ResponseWriter, _ *http.Request) {
	http.SetCookie(w, &http.Cookie{Name: csrfCookie, Value: "csrf-" + strconv.FormatInt(time.Now().UnixNano(), 36), Path: "/"})
	detail(w, http.StatusOK, "CSRF cookie set")
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	u, ok := s.userFor(r)
	if !ok {
		detail(w, http.StatusUnauthorized, "Authentication credentials were not provided.")
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var cr model.Credentials
	if err := json.NewDecoder(r.Body).Decode(&cr); err != nil {
		detail(w, http.StatusBadRequest, "Malformed request.")
		return
	}
	s.mu.Lock()
	acc, ok := s.accounts[cr.Username]
	if !ok || acc.password != cr.Password {
		s.mu.Unlock()
		writeJSON(w, http.StatusBadRequest, map[string][]string{"non_field_errors": {"Invalid username or password."}})
		return
	}
	s.nextSession++
	sid := fmt.Sprintf("sess-%d", s.nextSession)
	s.sessions[sid] = cr.Username
	s.mu.Unlock()

	ck := &http.Cookie{Name: sessionCookie, Value: sid, Path: "/", HttpOnly: true}
	if cr.RememberMe {
		ck.MaxAge = 14 * 24 * 3600
	}
	http.SetCookie(w, ck)
	writeJSON(w, http.StatusOK, acc.user)
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	if ck, err := r.Cookie(sessionCookie); err == nil {
		s.mu.Lock()
		delete(s.sessions, ck.Value)
		s.mu.Unlock()
	}
	http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: "", Path: "/", MaxAge: -1})
	detail(w, http.StatusOK, "Logged out")
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var reg model.Registration
	if err := json.NewDecoder(r.Body).Decode(&reg); err != nil {
		detail(w, http.StatusBadRequest, "Malformed request.")
		return
	}
	s.mu.Lock()
	_, taken := s.accounts[reg.Username]
	s.mu.Unlock()
	if taken {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"errors": map[string][]string{"username": {"A user with that username already exists."}},
		})
		return
	}
	s.AddUser(reg.Username, reg.Password1, reg.UserType == model.UserTypeParticipant)
	writeJSON(w, http.StatusCreated, map[string]string{"username": reg.Username})
}

func (s *Server) publicDevices(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	out := make([]convert.Device, 0, len(s.order))
	for _, id := range s.order {
		if d := s.devices[id]; d.wire.Status != string(model.DeviceStatusRevoked) {
			out = append(out, d.wire)
		}
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, convert.Page[convert.Device]{Count: len(out), Results: out})
}

func (s *Server) myDevices(w http.ResponseWriter, _ *http.Request, u model.User) {
	s.mu.Lock()
	out := []convert.Device{}
	for _, id := range s.order {
		if d := s.devices[id]; d.owner == u.Username {
			out = append(out, d.wire)
		}
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, convert.Page[convert.Device]{Count: len(out), Results: out})
}

func (s *Server) owned(w http.ResponseWriter, r *http.Request, u model.User) (*device, bool) {
	d, ok := s.devices[mux.Vars(r)["id"]]
	if !ok || d.owner != u.Username {
		detail(w, http.StatusNotFound, "Not found.")
		return nil, false
	}
	return d, true
}

func (s *Server) createDevice(w http.ResponseWriter, r *http.Request, u model.User) {
	var in model.DeviceInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		detail(w, http.StatusBadRequest, "Malformed request.")
		return
	}
	if in.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string][]string{"name": {"This field is required."}})
		return
	}
	wire := convert.Device{
		Name:                 in.Name,
		Description:          in.Description,
		DeviceType:           in.DeviceType,
		CertificateAlgorithm: string(in.CertificateAlgorithm),
	}
	if in.Latitude != nil && in.Longitude != nil {
		wire.Latitude = convert.Coord{Value: in.Latitude}
		wire.Longitude = convert.Coord{Value: in.Longitude}
	}
	s.mu.Lock()
	id := s.addDeviceLocked(u.Username, wire)
	out := s.devices[id].wire
	s.mu.Unlock()
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) myDevice(w http.ResponseWriter, r *http.Request, u model.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.owned(w, r, u); ok {
		writeJSON(w, http.StatusOK, d.wire)
	}
}

func (s *Server) patchDevice(w http.ResponseWriter, r *http.Request, u model.User) {
	var p model.DevicePatch
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		detail(w, http.StatusBadRequest, "Malformed request.")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.owned(w, r, u)
	if !ok {
		return
	}
	if p.Name != nil {
		d.wire.Name = *p.Name
	}
	if p.Description != nil {
		d.wire.Description = *p.Description
	}
	if p.Latitude != nil {
		d.wire.Latitude = convert.Coord{Value: p.Latitude}
	}
	if p.Longitude != nil {
		d.wire.Longitude = convert.Coord{Value: p.Longitude}
	}
	writeJSON(w, http.StatusOK, d.wire)
}

func (s *Server) revokeDevice(w http.ResponseWriter, r *http.Request, u model.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.owned(w, r, u); ok {
		d.wire.Status = string(model.DeviceStatusRevoked)
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) generate(w http.ResponseWriter, r *http.Request, u model.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.owned(w, r, u)
	if !ok {
		return
	}
	if d.wire.Status == string(model.DeviceStatusRevoked) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Device is revoked"})
		return
	}
	now := time.Now().UTC()
	expires := now.AddDate(1, 0, 0)
	window := now.Add(time.Hour)
	d.wire.Status = string(model.DeviceStatusActive)
	d.wire.HasCertificate = true
	d.wire.CertificateSerial = fmt.Sprintf("%X", now.UnixNano())
	d.wire.CertificateExpiresAt = &expires
	d.wire.DownloadExpiresAt = &window
	writeJSON(w, http.StatusCreated, convert.Certificate{
		SerialNumber:      d.wire.CertificateSerial,
		ExpiresAt:         &expires,
		DownloadExpiresAt: &window,
	})
}

func (s *Server) certPEM(w http.ResponseWriter, r *http.Request, u model.User) {
	s.pem(w, r, u, "CERTIFICATE")
}

func (s *Server) keyPEM(w http.ResponseWriter, r *http.Request, u model.User) {
	s.pem(w, r, u, "PRIVATE KEY")
}

func (s *Server) pem(w http.ResponseWriter, r *http.Request, u model.User, kind string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.owned(w, r, u)
	if !ok {
		return
	}
	if !d.wire.HasCertificate {
		detail(w, http.StatusNotFound, "No certificate issued.")
		return
	}
	w.Header().Set("Content-Type", "application/x-pem-file")
	fmt.Fprintf(w, "-----BEGIN %s-----\n%s\n-----END %s-----\n", kind, d.wire.CertificateSerial, kind)
}

func (s *Server) bundle(w http.ResponseWriter, r *http.Request, u model.User) {
	var req model.BundleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.WiFiSSID == "" {
		writeJSON(w, http.StatusBadRequest, map[string][]string{"wifi_ssid": {"This field is required."}})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.owned(w, r, u); !ok {
		return
	}
	if s.bundleExpired {
		writeJSON(w, http.StatusGone, map[string]string{"error": "Private key download window has expired."})
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	_, _ = w.Write([]byte("PK\x03\x04" + req.WiFiSSID))
}

func (s *Server) dashboardStats(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	st := s.stats
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) feed(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	typ := q.Get("message_type")
	limit, err := strconv.Atoi(q.Get("limit"))
	if err != nil || limit <= 0 {
		limit = model.DefaultMessageLimit
	}

	s.mu.Lock()
	all := append([]convert.Message(nil), s.messages...)
	s.mu.Unlock()

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Timestamp != nil && all[j].Timestamp != nil && all[i].Timestamp.After(*all[j].Timestamp)
	})
	out := make([]convert.Message, 0, len(all))
	for _, m := range all {
		if typ != "" && m.MessageType != typ {
			continue
		}
		out = append(out, m)
		if len(out) == limit {
			break
		}
	}
	writeJSON(w, http.StatusOK, out)
}
