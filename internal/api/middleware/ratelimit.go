// ratelimit.go - ограничение частоты запросов по IP клиента
// (token bucket из golang.org/x/time/rate).
package middleware

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	apierrors "github.com/mpd-concursos/concursos-admin/internal/api/errors"
)

// MsgTooManyRequests - превышен лимит запросов.
const MsgTooManyRequests = "Demasiadas solicitudes, intente nuevamente más tarde"

// visitorTTL - через сколько неактивный клиент забывается.
const visitorTTL = 3 * time.Minute

// visitor - лимитер клиента и время последнего запроса.
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter - лимитеры по IP клиента.
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    rate.Limit
	burst    int
	// header - значение X-RateLimit-Limit (запросов в минуту).
	header string
	now    func() time.Time
}

// NewRateLimiter создаёт лимитер: rps запросов в секунду, burst - запас.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	return &RateLimiter{
		visitors: make(map[string]*visitor),
		limit:    rate.Limit(rps),
		burst:    max(burst, 1),
		header:   strconv.Itoa(int(rps * 60)),
		now:      time.Now,
	}
}

// NewPerMinuteRateLimiter создаёт лимитер на perMinute запросов в минуту
// без запаса сверх этого.
func NewPerMinuteRateLimiter(perMinute int) *RateLimiter {
	rl := NewRateLimiter(float64(perMinute)/60, perMinute)
	rl.header = strconv.Itoa(perMinute)
	return rl
}

func (rl *RateLimiter) limiterFor(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, ok := rl.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.visitors[ip] = v
	}
	v.lastSeen = rl.now()
	return v.limiter
}

// Cleanup удаляет давно неактивных клиентов раз в минуту до отмены ctx.
func (rl *RateLimiter) Cleanup(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.sweep()
		}
	}
}

func (rl *RateLimiter) sweep() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	removed := 0
	for ip, v := range rl.visitors {
		if rl.now().Sub(v.lastSeen) > visitorTTL {
			delete(rl.visitors, ip)
			removed++
		}
	}
	return removed
}

// Middleware отклоняет запросы сверх лимита ответом 429 с Retry-After.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-RateLimit-Limit", rl.header)

		res := rl.limiterFor(clientIP(r)).ReserveN(rl.now(), 1)
		if !res.OK() {
			apierrors.TooManyRequests(w, MsgTooManyRequests, time.Minute)
			return
		}
		if delay := res.DelayFrom(rl.now()); delay > 0 {
			res.CancelAt(rl.now())
			apierrors.TooManyRequests(w, MsgTooManyRequests, delay)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP - IP клиента: последний адрес X-Forwarded-For, его
// дописывает ближайший прокси. Предыдущие адреса задаёт сам клиент.
// Без заголовка берётся RemoteAddr.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		hops := strings.Split(fwd, ",")
		if ip := strings.TrimSpace(hops[len(hops)-1]); ip != "" {
			return ip
		}
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.Trim(r.RemoteAddr, "[]")
	}
	return ip
}
