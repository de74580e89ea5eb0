package middleware

import (
	"log/slog"
	"net"
	nethttp "net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/searchktools/conduit/core/extensions"
	"github.com/searchktools/conduit/core/http"
	"github.com/searchktools/conduit/core/logger"
)

// Common middleware implementations

// Logger logs one record per request after the response is produced.
func Logger[S any](log *slog.Logger) Middleware[S] {
	return Func[S](func(req *http.Request, state S, next *Next[S]) (*http.Response, error) {
		start := time.Now()
		resp := next.Run(req)
		id, _ := extensions.Get[RequestIDValue](req.Extensions())

		level := slog.LevelInfo
		if resp.Status >= 500 {
			level = slog.LevelError
		}
		log.LogAttrs(req.Context(), level, "request",
			logger.Method(req.Method),
			logger.Path(req.Path()),
			logger.Pattern(req.Pattern()),
			logger.Status(resp.Status),
			logger.Latency(time.Since(start)),
			logger.RemoteAddr(req.RemoteAddr),
			logger.RequestID(string(id)),
		)
		return resp, nil
	})
}

// RequestIDValue is the request identifier stored in extensions by RequestID.
type RequestIDValue string

// DefaultRequestIDHeader carries the request identifier.
const DefaultRequestIDHeader = "X-Request-ID"

// RequestID reuses the identifier sent in header or generates a UUID, stores
// it in the request extensions and echoes it on the response.
func RequestID[S any](header string) Middleware[S] {
	if header == "" {
		header = DefaultRequestIDHeader
	}
	return Func[S](func(req *http.Request, state S, next *Next[S]) (*http.Response, error) {
		id := req.Header.Get(header)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		extensions.Insert(req.Extensions(), RequestIDValue(id))
		resp := next.Run(req)
		resp.Header.Set(header, id)
		return resp, nil
	})
}

// GetRequestID returns the identifier assigned by RequestID, or "".
func GetRequestID(req *http.Request) string {
	id, _ := extensions.Get[RequestIDValue](req.Extensions())
	return string(id)
}

// CORSConfig configures CORS. Middleware runs only on matched routes, so
// preflights reach CORS when the path has an OPTIONS route or the app is
// built with core.WithAutoOptions.
type CORSConfig struct {
	AllowOrigins []string // default "*"
	AllowMethods []string
	AllowHeaders []string
	MaxAge       time.Duration
}

// CORS adds CORS headers and answers preflight requests without running the
// rest of the chain.
func CORS[S any](cfg CORSConfig) Middleware[S] {
	if len(cfg.AllowOrigins) == 0 {
		cfg.AllowOrigins = []string{"*"}
	}
	if len(cfg.AllowMethods) == 0 {
		cfg.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"}
	}
	if len(cfg.AllowHeaders) == 0 {
		cfg.AllowHeaders = []string{"Content-Type", "Authorization"}
	}
	methods := strings.Join(cfg.AllowMethods, ", ")
	headers := strings.Join(cfg.AllowHeaders, ", ")
	wildcard := len(cfg.AllowOrigins) == 1 && cfg.AllowOrigins[0] == "*"

	allowOrigin := func(origin string) string {
		if wildcard {
			return "*"
		}
		for _, o := range cfg.AllowOrigins {
			if strings.EqualFold(o, origin) {
				return origin
			}
		}
		return ""
	}

	return Func[S](func(req *http.Request, state S, next *Next[S]) (*http.Response, error) {
		origin := allowOrigin(req.Header.Get("Origin"))

		if req.Method == nethttp.MethodOptions && req.Header.Get("Access-Control-Request-Method") != "" {
			resp := http.NoContent()
			if origin != "" {
				resp.Header.Set("Access-Control-Allow-Origin", origin)
				resp.Header.Set("Access-Control-Allow-Methods", methods)
				resp.Header.Set("Access-Control-Allow-Headers", headers)
				if cfg.MaxAge > 0 {
					resp.Header.Set("Access-Control-Max-Age", strconv.Itoa(int(cfg.MaxAge.Seconds())))
				}
			}
			return resp, nil
		}

		resp := next.Run(req)
		if origin != "" {
			resp.Header.Set("Access-Control-Allow-Origin", origin)
			if !wildcard {
				resp.Header.Add("Vary", "Origin")
			}
		}
		return resp, nil
	})
}

// RateLimitConfig configures RateLimit.
type RateLimitConfig struct {
	RPS   float64 // default 5
	Burst int     // default 10
	// Key selects the bucket for a request; default is the client IP.
	Key func(*http.Request) string
}

// limiterPool holds one token bucket per key.
type limiterPool struct {
	mu  sync.Mutex
	m   map[string]*rate.Limiter
	cfg RateLimitConfig
}

func (p *limiterPool) get(key string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	if l, ok := p.m[key]; ok {
		return l
	}
	l := rate.NewLimiter(rate.Limit(p.cfg.RPS), p.cfg.Burst)
	p.m[key] = l
	return l
}

// RateLimit rejects requests beyond the configured rate with 429.
func RateLimit[S any](cfg RateLimitConfig) Middleware[S] {
	if cfg.RPS <= 0 {
		cfg.RPS = 5
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 10
	}
	if cfg.Key == nil {
		cfg.Key = ClientIP
	}
	pool := &limiterPool{m: make(map[string]*rate.Limiter), cfg: cfg}

	return Func[S](func(req *http.Request, state S, next *Next[S]) (*http.Response, error) {
		if !pool.get(cfg.Key(req)).Allow() {
			return nil, http.NewStatusError(nethttp.StatusTooManyRequests, "Too Many Requests")
		}
		return next.Run(req), nil
	})
}

// ClientIP returns the host part of the peer address.
func ClientIP(req *http.Request) string {
	host, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		return req.RemoteAddr
	}
	return host
}
