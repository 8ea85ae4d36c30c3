package relay

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"omemo/internal/domain"
)

// DefaultPollLimit caps how many stanzas one inbox fetch returns.
const DefaultPollLimit = 100

var (
	errNotFound   = errors.New("not found")
	errBadRequest = errors.New("bad request")
)

// deviceList is the wire form of a published device list.
type deviceList struct {
	Devices []domain.DeviceID `json:"devices"`
}

type ackRequest struct {
	Count int `json:"count"`
}

type sendResult struct {
	Delivered int `json:"delivered"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Server is an in-memory store-and-forward relay. It holds device lists,
// one bundle per device and one inbox per device. It never sees plaintext.
type Server struct {
	mu      sync.Mutex
	devices map[domain.Username][]domain.DeviceID
	bundles map[domain.Address]domain.Bundle
	inboxes map[domain.Address][]domain.Stanza

	pollLimit int
	now       func() time.Time
	log       *logrus.Entry
	router    *mux.Router
}

// ServerOption customises a Server.
type ServerOption func(*Server)

// WithPollLimit caps the stanzas returned per inbox fetch.
func WithPollLimit(n int) ServerOption {
	return func(s *Server) {
		if n > 0 {
			s.pollLimit = n
		}
	}
}

// WithServerClock overrides the clock used for stanza timestamps.
func WithServerClock(now func() time.Time) ServerOption {
	return func(s *Server) { s.now = now }
}

// NewServer builds a relay with empty state.
func NewServer(log *logrus.Entry, opts ...ServerOption) *Server {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	s := &Server{
		devices:   make(map[domain.Username][]domain.DeviceID),
		bundles:   make(map[domain.Address]domain.Bundle),
		inboxes:   make(map[domain.Address][]domain.Stanza),
		pollLimit: DefaultPollLimit,
		now:       time.Now,
		log:       log.WithField("component", "relay"),
	}
	for _, o := range opts {
		o(s)
	}

	r := mux.NewRouter()
	r.Use(s.accessLog)
	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/devices/{user}", s.putDevices).Methods(http.MethodPut)
	v1.HandleFunc("/devices/{user}", s.getDevices).Methods(http.MethodGet)
	v1.HandleFunc("/bundles/{user}/{device:[0-9]+}", s.putBundle).Methods(http.MethodPut)
	v1.HandleFunc("/bundles/{user}/{device:[0-9]+}", s.getBundle).Methods(http.MethodGet)
	v1.HandleFunc("/stanzas/{user}", s.postStanza).Methods(http.MethodPost)
	v1.HandleFunc("/inbox/{user}/{device:[0-9]+}", s.getInbox).Methods(http.MethodGet)
	v1.HandleFunc("/inbox/{user}/{device:[0-9]+}/ack", s.ackInbox).Methods(http.MethodPost)
	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) putDevices(w http.ResponseWriter, r *http.Request) {
	user := domain.Username(mux.Vars(r)["user"])
	var in deviceList
	if err := decode(w, r, &in); err != nil {
		writeError(w, err)
		return
	}

	s.mu.Lock()
	s.devices[user] = dedupe(in.Devices)
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{"user": user, "devices": in.Devices}).Info("device list published")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getDevices(w http.ResponseWriter, r *http.Request) {
	user := domain.Username(mux.Vars(r)["user"])

	s.mu.Lock()
	ids, ok := s.devices[user]
	out := deviceList{Devices: append([]domain.DeviceID{}, ids...)}
	s.mu.Unlock()

	if !ok {
		writeError(w, errNotFound)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) putBundle(w http.ResponseWriter, r *http.Request) {
	addr, err := address(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var b domain.Bundle
	if err := decode(w, r, &b); err != nil {
		writeError(w, err)
		return
	}
	if b.DeviceID != addr.Device {
		writeError(w, errBadRequest)
		return
	}

	s.mu.Lock()
	s.bundles[addr] = b
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{"peer": addr, "pre_keys": len(b.PreKeys)}).Info("bundle published")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getBundle(w http.ResponseWriter, r *http.Request) {
	addr, err := address(r)
	if err != nil {
		writeError(w, err)
		return
	}

	s.mu.Lock()
	b, ok := s.bundles[addr]
	s.mu.Unlock()

	if !ok {
		writeError(w, errNotFound)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// postStanza fans a stanza out to every device of the recipient. Messages
// are also copied to the sender's other devices.
func (s *Server) postStanza(w http.ResponseWriter, r *http.Request) {
	to := domain.Username(mux.Vars(r)["user"])
	var st domain.Stanza
	if err := decode(w, r, &st); err != nil {
		writeError(w, err)
		return
	}
	if st.From == "" || (st.Kind == domain.StanzaMessage && st.Envelope == nil) {
		writeError(w, errBadRequest)
		return
	}
	if st.Kind != domain.StanzaMessage && st.Kind != domain.StanzaReceipt {
		writeError(w, errBadRequest)
		return
	}
	st.To = to
	if st.Timestamp == 0 {
		st.Timestamp = s.now().Unix()
	}

	s.mu.Lock()
	recipients, ok := s.devices[to]
	if !ok {
		s.mu.Unlock()
		writeError(w, errNotFound)
		return
	}
	n := 0
	for _, id := range recipients {
		if to == st.From && id == st.FromDevice {
			continue
		}
		s.enqueue(domain.Address{Name: to, Device: id}, st)
		n++
	}
	if st.Kind == domain.StanzaMessage && to != st.From {
		for _, id := range s.devices[st.From] {
			if id == st.FromDevice {
				continue
			}
			s.enqueue(domain.Address{Name: st.From, Device: id}, st)
			n++
		}
	}
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{
		"from":       st.From,
		"to":         to,
		"kind":       st.Kind,
		"message_id": st.MessageID,
		"copies":     n,
	}).Debug("stanza queued")
	writeJSON(w, http.StatusAccepted, sendResult{Delivered: n})
}

// enqueue must be called with s.mu held.
func (s *Server) enqueue(addr domain.Address, st domain.Stanza) {
	s.inboxes[addr] = append(s.inboxes[addr], st)
}

func (s *Server) getInbox(w http.ResponseWriter, r *http.Request) {
	addr, err := address(r)
	if err != nil {
		writeError(w, err)
		return
	}
	limit := s.pollLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, errBadRequest)
			return
		}
		if n > 0 && n < limit {
			limit = n
		}
	}

	s.mu.Lock()
	q := s.inboxes[addr]
	if limit > len(q) {
		limit = len(q)
	}
	out := append([]domain.Stanza{}, q[:limit]...)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, out)
}

func (s *Server) ackInbox(w http.ResponseWriter, r *http.Request) {
	addr, err := address(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var in ackRequest
	if err := decode(w, r, &in); err != nil {
		writeError(w, err)
		return
	}
	if in.Count < 0 {
		writeError(w, errBadRequest)
		return
	}

	s.mu.Lock()
	q := s.inboxes[addr]
	if in.Count >= len(q) {
		delete(s.inboxes, addr)
	} else {
		s.inboxes[addr] = append([]domain.Stanza(nil), q[in.Count:]...)
	}
	s.mu.Unlock()

	w.WriteHeader(http.StatusNoContent)
}

func address(r *http.Request) (domain.Address, error) {
	vars := mux.Vars(r)
	id, err := domain.ParseDeviceID(vars["device"])
	if err != nil {
		return domain.Address{}, errBadRequest
	}
	return domain.Address{Name: domain.Username(vars["user"]), Device: id}, nil
}

func dedupe(ids []domain.DeviceID) []domain.DeviceID {
	seen := make(map[domain.DeviceID]bool, len(ids))
	out := make([]domain.DeviceID, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	defer r.Body.Close()
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(v); err != nil {
		return errBadRequest
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, errNotFound):
		status = http.StatusNotFound
	case errors.Is(err, errBadRequest):
		status = http.StatusBadRequest
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		if rec.status == 0 {
			rec.status = http.StatusOK
		}
		s.log.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"remote":   r.RemoteAddr,
			"status":   rec.status,
			"bytes":    rec.bytes,
			"duration": time.Since(start),
		}).Debug("request")
	})
}
