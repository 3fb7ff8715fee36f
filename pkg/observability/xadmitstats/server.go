package xadmitstats

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/omeyang/xadmit/pkg/observability/xlog"
	"github.com/omeyang/xadmit/pkg/resilience/xadmit"
)

// Source 状态来源，*xadmit.Controller 满足该接口
type Source interface {
	Snapshot(ctx context.Context) (xadmit.Snapshot, error)
	ResetStats()
	ActiveRequests() []string
}

var _ Source = (*xadmit.Controller)(nil)

// Option 配置 Handler
type Option func(*options)

type options struct {
	logger        xlog.Logger
	scrapeTimeout time.Duration
	registry      *prometheus.Registry
}

// WithLogger 设置日志记录器
func WithLogger(l xlog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithScrapeTimeout 设置读取快照的超时，默认 2s
func WithScrapeTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.scrapeTimeout = d
		}
	}
}

// WithRegistry 使用外部 registry，默认由 NewRegistry 创建
func WithRegistry(r *prometheus.Registry) Option {
	return func(o *options) { o.registry = r }
}

type handler struct {
	src     Source
	timeout time.Duration
	logger  xlog.Logger
}

// NewHandler 返回挂载了全部路由的 http.Handler
//
// 快照 collector 注册到 registry，同一个 registry 重复调用会返回注册冲突错误。
func NewHandler(src Source, opts ...Option) (http.Handler, error) {
	if src == nil {
		return nil, ErrNilSource
	}
	o := options{scrapeTimeout: 2 * time.Second}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	logger := xlog.OrDiscard(o.logger).With(xlog.Component("xadmitstats"))

	reg := o.registry
	if reg == nil {
		reg = NewRegistry()
	}
	if err := reg.Register(newCollector(src, o.scrapeTimeout, logger)); err != nil {
		return nil, err
	}

	h := &handler{src: src, timeout: o.scrapeTimeout, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", h.healthz)
	r.Get("/stats", h.stats)
	r.Post("/stats/reset", h.reset)
	r.Get("/requests", h.requests)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	}))
	return r, nil
}

// statsResponse /stats 的响应体
type statsResponse struct {
	Gate    gateStats   `json:"gate"`
	Window  windowStats `json:"window"`
	Breaker string      `json:"breaker,omitempty"`
	Error   string      `json:"error,omitempty"`
}

type gateStats struct {
	Capacity       int       `json:"capacity"`
	InFlight       int       `json:"in_flight"`
	PeakInFlight   int       `json:"peak_in_flight"`
	TotalAdmitted  uint64    `json:"total_admitted"`
	TotalBlocked   uint64    `json:"total_blocked"`
	ActiveRequests int       `json:"active_requests"`
	LastReset      time.Time `json:"last_reset"`
}

type windowStats struct {
	Requests int `json:"requests"`
	Tokens   int `json:"tokens"`
	Daily    int `json:"daily"`
	RPM      int `json:"rpm"`
	TPM      int `json:"tpm"`
	RPD      int `json:"rpd"`
}

func (h *handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) stats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	snap, err := h.src.Snapshot(ctx)
	g := snap.Gate
	resp := statsResponse{
		Gate: gateStats{
			Capacity:       g.Capacity,
			InFlight:       g.InFlight,
			PeakInFlight:   g.PeakInFlight,
			TotalAdmitted:  g.TotalAdmitted,
			TotalBlocked:   g.TotalBlocked,
			ActiveRequests: g.ActiveRequests,
			LastReset:      g.LastReset,
		},
		Window: windowStats{
			Requests: snap.Usage.Requests,
			Tokens:   snap.Usage.Tokens,
			Daily:    snap.Usage.Daily,
			RPM:      snap.Limits.RPM,
			TPM:      snap.Limits.TPM,
			RPD:      snap.Limits.RPD,
		},
		Breaker: snap.Breaker,
	}
	status := http.StatusOK
	if err != nil {
		// 门控数据仍然有效，窗口数据缺失时返回部分结果
		h.logger.Warn(ctx, "read window usage failed", xlog.Err(err))
		resp.Error = err.Error()
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

func (h *handler) reset(w http.ResponseWriter, r *http.Request) {
	h.src.ResetStats()
	h.logger.Info(r.Context(), "stats reset")
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) requests(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"active": h.src.ActiveRequests()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v) //nolint:errcheck // 客户端断开时无法补救
}
