package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"

	"github.com/qrave1/VanishRoom/internal/infra/appctx"
)

type ipLimiter struct {
	lim  *rate.Limiter
	seen time.Time
}

// IPRateLimiter - token bucket на каждый IP. Работает в памяти процесса,
// до обращения к KV, и отсекает грубый флуд
type IPRateLimiter struct {
	mu  sync.Mutex
	m   map[string]*ipLimiter
	r   rate.Limit
	b   int
	ttl time.Duration
}

func NewIPRateLimiter(rps float64, burst int) *IPRateLimiter {
	return &IPRateLimiter{
		m:   make(map[string]*ipLimiter),
		r:   rate.Limit(rps),
		b:   burst,
		ttl: 2 * time.Minute,
	}
}

func (l *IPRateLimiter) get(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if v, ok := l.m[ip]; ok {
		v.seen = time.Now()
		return v.lim
	}

	lim := rate.NewLimiter(l.r, l.b)
	l.m[ip] = &ipLimiter{lim: lim, seen: time.Now()}

	return lim
}

// Run удаляет давно не встречавшиеся IP, пока не закрыт done
func (l *IPRateLimiter) Run(done <-chan struct{}) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			l.mu.Lock()
			for ip, v := range l.m {
				if time.Since(v.seen) > l.ttl {
					delete(l.m, ip)
				}
			}
			l.mu.Unlock()
		}
	}
}

func (l *IPRateLimiter) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ip := c.RealIP()

			if !l.get(ip).Allow() {
				return c.JSON(http.StatusTooManyRequests, map[string]string{"error": "too many requests, slow down"})
			}

			c.SetRequest(c.Request().WithContext(appctx.WithClientIP(c.Request().Context(), ip)))

			return next(c)
		}
	}
}
