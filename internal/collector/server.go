// internal/collector/server.go
package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bandwatch_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "endpoint", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bandwatch_http_request_duration_seconds",
		Help:    "Duration of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint"})

	detectionsReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bandwatch_detections_received_total",
		Help: "Total number of detections accepted",
	})
)

// detectionRequest is the ingest body. Frequency and magnitude are
// required and must be non-zero; a missing or falsy value rejects the
// request. Timestamp is optional and defaults to the server clock, so
// it is a pointer to tell absent from zero.
type detectionRequest struct {
	Frequency float64 `json:"frequency"`
	Magnitude float64 `json:"magnitude"`
	Timestamp *int64  `json:"timestamp"`
}

// detectionRecord echoes the inputs plus server-assigned fields
type detectionRecord struct {
	Frequency  float64 `json:"frequency"`
	Magnitude  float64 `json:"magnitude"`
	Timestamp  int64   `json:"timestamp"`
	ReceivedAt string  `json:"receivedAt"`
	ClientIP   string  `json:"clientIp"`
}

// Server is the detection collector: ingest endpoint, liveness probe,
// Prometheus metrics, and append-only request/detection logs.
type Server struct {
	router *mux.Router
	logDir string
	log    *slog.Logger
	start  time.Time
}

// NewServer creates a collector writing its request/detection logs under
// logDir. The directory is created if needed; on failure file logging is
// disabled, the API keeps working.
func NewServer(logDir string, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}

	if err := os.MkdirAll(logDir, 0755); err != nil {
		log.Warn("log directory unavailable, file logging disabled",
			"op", "collector.init", "dir", logDir, "error", err)
		logDir = ""
	}

	s := &Server{
		router: mux.NewRouter(),
		logDir: logDir,
		log:    log,
		start:  time.Now(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/api/detections", s.detectionsHandler).Methods("POST")
	s.router.HandleFunc("/api/health", s.healthHandler).Methods("GET")
	s.router.Handle("/metrics", promhttp.Handler())
}

// Handler exposes the router (for tests and embedding)
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) detectionsHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	clientIP := clientAddr(r)

	var req detectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.log.Error("malformed detection payload",
			"op", "collector.ingest", "client", clientIP, "error", err)
		s.writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":   "Internal server error",
			"details": err.Error(),
		})
		httpRequestsTotal.WithLabelValues(r.Method, r.URL.Path, "500").Inc()
		return
	}

	if req.Frequency == 0 || req.Magnitude == 0 {
		s.log.Error("missing required fields",
			"op", "collector.ingest", "client", clientIP)
		s.writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":    "Missing required fields",
			"required": []string{"frequency", "magnitude"},
		})
		httpRequestsTotal.WithLabelValues(r.Method, r.URL.Path, "400").Inc()
		return
	}

	timestamp := time.Now().UnixMilli()
	if req.Timestamp != nil {
		timestamp = *req.Timestamp
	}

	record := detectionRecord{
		Frequency:  req.Frequency,
		Magnitude:  req.Magnitude,
		Timestamp:  timestamp,
		ReceivedAt: time.Now().UTC().Format(time.RFC3339),
		ClientIP:   clientIP,
	}

	s.log.Info("detection received",
		"op", "collector.ingest",
		"frequency_hz", req.Frequency,
		"magnitude", req.Magnitude,
		"client", clientIP)
	s.appendLog("detections.log", fmt.Sprintf("%s - Detection: %+v\n", record.ReceivedAt, record))
	detectionsReceived.Inc()

	s.writeJSON(w, http.StatusCreated, map[string]any{
		"success":   true,
		"message":   "Detection recorded",
		"detection": record,
	})

	httpRequestsTotal.WithLabelValues(r.Method, r.URL.Path, "201").Inc()
	requestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(time.Since(start).Seconds())
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(s.start).Seconds(),
		"memory": map[string]uint64{
			"alloc":      mem.Alloc,
			"totalAlloc": mem.TotalAlloc,
			"sys":        mem.Sys,
			"numGC":      uint64(mem.NumGC),
		},
		"clientIp": clientAddr(r),
		"serverIp": networkInfo(),
	})

	httpRequestsTotal.WithLabelValues(r.Method, r.URL.Path, "200").Inc()
	requestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(time.Since(start).Seconds())
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Error("encode response", "op", "collector", "error", err)
	}
}

// appendLog writes one line to a named log file under the log directory
func (s *Server) appendLog(name, line string) {
	if s.logDir == "" {
		return
	}
	f, err := os.OpenFile(filepath.Join(s.logDir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		s.log.Warn("append log failed", "op", "collector.log", "file", name, "error", err)
		return
	}
	defer f.Close()
	_, _ = f.WriteString(line)
}

// accessLog logs every request after it completes
func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.URL.Path == "/api/detections" {
			s.appendLog("requests.log",
				fmt.Sprintf("%s - Request from %s: %s %s\n",
					time.Now().UTC().Format(time.RFC3339), clientAddr(r), r.Method, r.URL.Path))
		}
		next.ServeHTTP(w, r)
		s.log.Info("request",
			"client", clientAddr(r), "method", r.Method, "path", r.URL.Path)
	})
}

// Run serves until SIGINT/SIGTERM, then shuts down gracefully
func (s *Server) Run(addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.accessLog(s.router),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

	done := make(chan struct{})
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		s.log.Info("collector shutting down", "op", "collector.run")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		srv.SetKeepAlivesEnabled(false)
		if err := srv.Shutdown(ctx); err != nil {
			s.log.Error("shutdown failed", "op", "collector.run", "error", err)
		}
		close(done)
	}()

	s.printStartupInfo(addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	<-done
	s.log.Info("collector stopped", "op", "collector.run")
	return nil
}

func (s *Server) printStartupInfo(addr string) {
	fmt.Println("=== Bandwatch Collector ===")
	fmt.Printf("Local access: http://localhost%s\n", addr)
	for _, url := range networkInfo() {
		fmt.Printf("Network access: %s%s\n", url, addr)
	}
	fmt.Println("Endpoints: POST /api/detections, GET /api/health, GET /metrics")
	if s.logDir != "" {
		fmt.Println("Logs directory:", s.logDir)
	}
}

// networkInfo lists reachable non-loopback IPv4 addresses
func networkInfo() []string {
	var urls []string
	ifaces, err := net.Interfaces()
	if err != nil {
		return urls
	}
	for _, ifi := range ifaces {
		if ifi.Flags&net.FlagUp == 0 || ifi.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := ifi.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if !ok || ipNet.IP.To4() == nil {
				continue
			}
			urls = append(urls, "http://"+ipNet.IP.String())
		}
	}
	return urls
}

// clientAddr extracts the client IP, honoring X-Forwarded-For
func clientAddr(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
