package middleware

import (
	"bytes"
	"errors"
	"net/http"
	"time"

	"github.com/cassiomorais/paygate/internal/domain/idempotency"
	"github.com/rs/zerolog/log"
)

const (
	// HeaderIdempotencyKey is the request header carrying the client's key.
	HeaderIdempotencyKey = "Idempotency-Key"
	// HeaderReplayed marks a response served from the idempotency store.
	HeaderReplayed = "X-Idempotency-Replayed"

	maxIdempotencyBodySize = 1 << 20
	lockTTL                = 2 * time.Minute
)

// IdempotencyOptions configures Idempotency. Locker is optional; without it
// concurrent duplicates are both processed.
type IdempotencyOptions struct {
	Store  idempotency.Store
	Locker idempotency.Locker
	TTL    time.Duration
}

// Idempotency replays the stored response for a repeated Idempotency-Key.
// Responses from 200 to 499 are stored; server errors are not, so the client
// may retry them.
func Idempotency(opts IdempotencyOptions) func(http.Handler) http.Handler {
	if opts.TTL <= 0 {
		opts.TTL = 24 * time.Hour
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(HeaderIdempotencyKey)
			if key == "" || opts.Store == nil {
				next.ServeHTTP(w, r)
				return
			}
			key = r.Method + " " + r.URL.Path + " " + key

			if replay(w, r, opts.Store, key) {
				return
			}

			if opts.Locker != nil {
				release, err := opts.Locker.Acquire(r.Context(), key, lockTTL)
				if errors.Is(err, idempotency.ErrInFlight) {
					writeFailure(w, http.StatusConflict, "A request with this Idempotency-Key is already being processed", "request_in_flight")
					return
				}
				if err != nil {
					log.Warn().Err(err).Msg("idempotency lock unavailable, processing without it")
				} else {
					defer func() {
						if err := release(r.Context()); err != nil {
							log.Warn().Err(err).Msg("failed to release idempotency lock")
						}
					}()
					// The first request may have finished between the lookup and the lock.
					if replay(w, r, opts.Store, key) {
						return
					}
				}
			}

			rec := &responseRecorder{ResponseWriter: w, body: &bytes.Buffer{}, statusCode: http.StatusOK}
			next.ServeHTTP(rec, r)

			if rec.statusCode < 200 || rec.statusCode >= 500 || rec.bodyTruncated {
				return
			}
			now := time.Now()
			err := opts.Store.Set(r.Context(), &idempotency.Entry{
				Key:            key,
				ResponseBody:   rec.body.String(),
				ResponseStatus: rec.statusCode,
				CreatedAt:      now,
				ExpiresAt:      now.Add(opts.TTL),
			})
			if err != nil {
				log.Warn().Err(err).Msg("failed to store idempotent response")
			}
		})
	}
}

func replay(w http.ResponseWriter, r *http.Request, store idempotency.Store, key string) bool {
	entry, err := store.Get(r.Context(), key)
	if err != nil {
		log.Warn().Err(err).Msg("idempotency lookup failed")
		return false
	}
	if entry == nil {
		return false
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(HeaderReplayed, "true")
	w.WriteHeader(entry.ResponseStatus)
	w.Write([]byte(entry.ResponseBody))
	return true
}

type responseRecorder struct {
	http.ResponseWriter
	statusCode    int
	body          *bytes.Buffer
	bodyTruncated bool
	wroteHeader   bool
}

func (r *responseRecorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.statusCode = code
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	r.wroteHeader = true
	if !r.bodyTruncated {
		if r.body.Len()+len(b) > maxIdempotencyBodySize {
			r.bodyTruncated = true
		} else {
			r.body.Write(b)
		}
	}
	return r.ResponseWriter.Write(b)
}
