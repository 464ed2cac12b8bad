package gateway

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	reasonRateLimited   = "rate limit exceeded"
	reasonTooConcurrent = "too many concurrent requests"
)

// ClientRateLimiter combines a token bucket per caller with a cap on in-flight requests
type ClientRateLimiter struct {
	mu                 sync.Mutex
	limiter            *rate.Limiter
	maxConcurrent      int
	concurrentRequests int
	lastSeen           time.Time
}

// NewClientRateLimiter creates a limiter allowing requestsPerMinute with a burst of the same size
func NewClientRateLimiter(requestsPerMinute, maxConcurrent int) *ClientRateLimiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 60
	}
	if maxConcurrent <= 0 {
		maxConcurrent = 10
	}
	return &ClientRateLimiter{
		limiter:       rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), requestsPerMinute),
		maxConcurrent: maxConcurrent,
		lastSeen:      time.Now(),
	}
}

// Acquire reserves a request slot. On success the returned release func must be called
// when the request finishes; on rejection it returns the reason.
func (r *ClientRateLimiter) Acquire() (release func(), reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lastSeen = time.Now()
	if r.concurrentRequests >= r.maxConcurrent {
		return nil, reasonTooConcurrent
	}
	if !r.limiter.Allow() {
		return nil, reasonRateLimited
	}

	r.concurrentRequests++
	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			r.concurrentRequests--
			r.mu.Unlock()
		})
	}, ""
}

// InFlight returns the number of requests currently holding a slot
func (r *ClientRateLimiter) InFlight() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.concurrentRequests
}

func (r *ClientRateLimiter) idleSince(cutoff time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.concurrentRequests == 0 && r.lastSeen.Before(cutoff)
}

// limiterSet keeps one limiter per remote host for HTTP callers
type limiterSet struct {
	mu                sync.Mutex
	limiters          map[string]*ClientRateLimiter
	requestsPerMinute int
	maxConcurrent     int
}

func newLimiterSet(requestsPerMinute, maxConcurrent int) *limiterSet {
	return &limiterSet{
		limiters:          make(map[string]*ClientRateLimiter),
		requestsPerMinute: requestsPerMinute,
		maxConcurrent:     maxConcurrent,
	}
}

func (s *limiterSet) forRequest(r *http.Request) *ClientRateLimiter {
	return s.get(remoteHost(r))
}

func (s *limiterSet) get(key string) *ClientRateLimiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.limiters[key]
	if !ok {
		l = NewClientRateLimiter(s.requestsPerMinute, s.maxConcurrent)
		s.limiters[key] = l
	}
	return l
}

// prune drops limiters idle for longer than maxIdle
func (s *limiterSet) prune(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, l := range s.limiters {
		if l.idleSince(cutoff) {
			delete(s.limiters, key)
			removed++
		}
	}
	return removed
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
