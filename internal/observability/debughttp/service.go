// Package debughttp serves an optional local HTTP endpoint with the daemon's
// health, reminders, recent deliveries and pprof.
package debughttp

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	hpprof "net/http/pprof"
	"strings"
	"time"

	"remindd/internal/notifier"
	"remindd/internal/services/reminders"
	logx "remindd/pkg/logx"
)

const DefaultAddr = "127.0.0.1:6061"

// Config controls the debug server.
//
// Security: a non-loopback Addr requires Token.
type Config struct {
	Enabled bool
	Addr    string
	Token   string
	Pprof   bool
}

// Sources are read on every request.
type Sources struct {
	Overview func() []reminders.Item
	History  func() []notifier.HistoryItem
	Healthy  func() bool
}

type Service struct {
	cfg Config
	src Sources
	log logx.Logger
}

func New(cfg Config, src Sources, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = DefaultAddr
	}
	return &Service{cfg: cfg, src: src, log: log.With(logx.String("comp", "debughttp"))}
}

// CheckAddr rejects a public bind without a token.
func CheckAddr(addr, token string) error {
	if strings.TrimSpace(token) != "" || isLoopbackAddr(addr) {
		return nil
	}
	return errors.New("debug server on a non-loopback addr requires a token")
}

// Serve listens until ctx is done.
func (s *Service) Serve(ctx context.Context) error {
	if err := CheckAddr(s.cfg.Addr, s.cfg.Token); err != nil {
		return err
	}
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       time.Minute,
	}
	go func() {
		<-ctx.Done()
		cctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = srv.Shutdown(cctx)
		cancel()
	}()

	s.log.Info("debug server started", logx.String("addr", ln.Addr().String()), logx.Bool("pprof", s.cfg.Pprof), logx.Bool("token_set", s.cfg.Token != ""))
	err = srv.Serve(ln)
	if ctx.Err() != nil {
		return nil
	}
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return errors.New("debug server exited unexpectedly")
	}
	return err
}

// Handler returns the routed, token-guarded mux.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	wrap := func(h http.HandlerFunc) http.HandlerFunc { return withAuth(s.cfg.Token, h) }

	mux.HandleFunc("/healthz", wrap(s.healthz))
	mux.HandleFunc("/reminders", wrap(s.listReminders))
	mux.HandleFunc("/deliveries", wrap(s.listDeliveries))

	if s.cfg.Pprof {
		mux.HandleFunc("/debug/pprof/", wrap(hpprof.Index))
		mux.HandleFunc("/debug/pprof/cmdline", wrap(hpprof.Cmdline))
		mux.HandleFunc("/debug/pprof/profile", wrap(hpprof.Profile))
		mux.HandleFunc("/debug/pprof/symbol", wrap(hpprof.Symbol))
		mux.HandleFunc("/debug/pprof/trace", wrap(hpprof.Trace))
	}
	return mux
}

func (s *Service) healthz(w http.ResponseWriter, _ *http.Request) {
	if s.src.Healthy != nil && !s.src.Healthy() {
		http.Error(w, "poll loop stalled", http.StatusServiceUnavailable)
		return
	}
	_, _ = w.Write([]byte("ok"))
}

type reminderRow struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Time      string     `json:"time"`
	Date      *string    `json:"date"`
	Recurring bool       `json:"recurring"`
	NextRun   *time.Time `json:"next_run,omitempty"`
}

func (s *Service) listReminders(w http.ResponseWriter, _ *http.Request) {
	rows := []reminderRow{}
	if s.src.Overview != nil {
		for _, it := range s.src.Overview() {
			row := reminderRow{
				ID:        it.Reminder.ID,
				Title:     it.Reminder.Title,
				Time:      it.Reminder.Time,
				Date:      it.Reminder.Date,
				Recurring: it.Reminder.Recurring,
			}
			if it.Job != nil {
				next := it.Job.NextRun
				row.NextRun = &next
			}
			rows = append(rows, row)
		}
	}
	writeJSON(w, rows)
}

func (s *Service) listDeliveries(w http.ResponseWriter, _ *http.Request) {
	items := []notifier.HistoryItem{}
	if s.src.History != nil {
		items = append(items, s.src.History()...)
	}
	writeJSON(w, items)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func withAuth(token string, h http.HandlerFunc) http.HandlerFunc {
	tok := strings.TrimSpace(token)
	if tok == "" {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		// Authorization: Bearer <token>, or ?token=<token>
		if got := r.URL.Query().Get("token"); got != "" {
			if got == tok {
				h(w, r)
				return
			}
			unauthorized(w)
			return
		}
		const p = "Bearer "
		if ah := r.Header.Get("Authorization"); strings.HasPrefix(ah, p) && strings.TrimSpace(strings.TrimPrefix(ah, p)) == tok {
			h(w, r)
			return
		}
		unauthorized(w)
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}

func isLoopbackAddr(addr string) bool {
	h, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	h = strings.TrimSpace(h)
	if h == "" {
		// all interfaces
		return false
	}
	if strings.EqualFold(h, "localhost") {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}
