package grpc

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"agenda/backend/internal/auth"
)

func DefaultRequestTimeoutInterceptor(timeout time.Duration) grpc.UnaryServerInterceptor {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if _, ok := ctx.Deadline(); ok {
			return handler(ctx, req)
		}
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		return handler(ctx, req)
	}
}

// Principal is the authenticated caller. Role is the actor the caller may act as.
type Principal = auth.Principal

// Claims are the JWT claims accepted by AuthInterceptor.
type Claims = auth.Claims

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return auth.WithPrincipal(ctx, p)
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	return auth.PrincipalFromContext(ctx)
}

// AuthInterceptor requires an HMAC-signed bearer token in the authorization metadata and
// stores the resulting Principal on the context.
func AuthInterceptor(secret string, log *slog.Logger) grpc.UnaryServerInterceptor {
	if log == nil {
		log = slog.Default()
	}
	log = log.With(slog.String("component", "grpc.auth"))
	verifier := auth.NewVerifier(secret)

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		p, err := verifier.Verify(bearerToken(ctx))
		switch {
		case errors.Is(err, auth.ErrMissingToken):
			log.Warn("unauthenticated", slog.String("method", info.FullMethod), slog.String("reason", "missing_token"))
			return nil, status.Error(codes.Unauthenticated, "missing bearer token")
		case errors.Is(err, auth.ErrInvalidRole):
			log.Warn("permission denied", slog.String("method", info.FullMethod), slog.String("reason", "invalid_role"))
			return nil, status.Error(codes.PermissionDenied, err.Error())
		case err != nil:
			log.Warn("unauthenticated", slog.String("method", info.FullMethod), slog.String("reason", "invalid_token"), slog.Any("err", err))
			return nil, status.Error(codes.Unauthenticated, "invalid token")
		}

		return handler(WithPrincipal(ctx, p), req)
	}
}

func bearerToken(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get("authorization")
	if len(values) == 0 {
		return ""
	}
	return auth.BearerToken(values[0])
}

const maxTrackedCallers = 10000

// RateLimiter keeps one token bucket per caller. Callers are keyed by principal subject
// when authenticated and by peer IP otherwise.
type RateLimiter struct {
	limit rate.Limit
	burst int
	log   *slog.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewRateLimiter(perSecond float64, burst int, log *slog.Logger) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	if log == nil {
		log = slog.Default()
	}
	return &RateLimiter{
		limit:    rate.Limit(perSecond),
		burst:    burst,
		log:      log.With(slog.String("component", "grpc.ratelimit")),
		limiters: make(map[string]*rate.Limiter),
	}
}

func (l *RateLimiter) limiter(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.limiters[key]
	if !ok {
		if len(l.limiters) >= maxTrackedCallers {
			clear(l.limiters)
		}
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[key] = lim
	}
	return lim
}

func (l *RateLimiter) Interceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		key := callerKey(ctx)
		if !l.limiter(key).Allow() {
			l.log.Warn("rate limit exceeded", slog.String("caller", key), slog.String("method", info.FullMethod))
			return nil, status.Error(codes.ResourceExhausted, "rate limit exceeded, try again later")
		}
		return handler(ctx, req)
	}
}

func callerKey(ctx context.Context) string {
	if p, ok := PrincipalFromContext(ctx); ok && p.Subject != "" {
		return "sub:" + p.Subject
	}
	if pr, ok := peer.FromContext(ctx); ok && pr.Addr != nil {
		addr := pr.Addr.String()
		if host, _, err := net.SplitHostPort(addr); err == nil {
			return "ip:" + host
		}
		return "ip:" + addr
	}
	return "unknown"
}
