// Package logger builds the zerolog logger shared by every binary and
// bridges it to log/slog. A click is traced through its job: the request id
// set at the HTTP or Kafka edge, the job id once the service assigns one, and
// the result output being fetched all travel in the context and are written
// on every line logged with it.
package logger

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"io"
	"math"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type Config struct {
	Level   string
	Console bool
	// SampleN keeps one line in N; zero disables sampling
	SampleN int
	// Mode is the auth mode (proxy or oauth) of the process
	Mode string
	// Service names the binary; components are set per context
	Service string
}

// Trace is the correlation carried from a click to the end of its job
type Trace struct {
	RequestID string
	JobID     string
	Output    string
	Component string
}

// fields lists trace values in the order they are written
func (t Trace) fields() [][2]string {
	return [][2]string{
		{"request_id", t.RequestID},
		{"job_id", t.JobID},
		{"output", t.Output},
		{"component", t.Component},
	}
}

type traceKey struct{}

// TraceFrom returns the trace carried by ctx; the zero Trace if none
func TraceFrom(ctx context.Context) Trace {
	if ctx == nil {
		return Trace{}
	}
	t, _ := ctx.Value(traceKey{}).(Trace)
	return t
}

func withTrace(ctx context.Context, edit func(*Trace)) context.Context {
	t := TraceFrom(ctx)
	edit(&t)
	return context.WithValue(ctx, traceKey{}, t)
}

// CarryTrace returns base with the trace of from. Jobs run under a context
// that outlives the click request but keep logging under its request id.
func CarryTrace(base, from context.Context) context.Context {
	t := TraceFrom(from)
	if t == (Trace{}) {
		return base
	}
	return context.WithValue(base, traceKey{}, t)
}

// WithRequestID starts a trace; an empty id gets a generated one
func WithRequestID(ctx context.Context, reqID string) context.Context {
	if reqID == "" {
		reqID = NewID()
	}
	return withTrace(ctx, func(t *Trace) { t.RequestID = reqID })
}

func RequestID(ctx context.Context) string { return TraceFrom(ctx).RequestID }

func WithJobID(ctx context.Context, jobID string) context.Context {
	if jobID == "" {
		return ctx
	}
	return withTrace(ctx, func(t *Trace) { t.JobID = jobID })
}

// WithOutput names the job output (WatershedArea, SnappedPoints) being fetched
func WithOutput(ctx context.Context, output string) context.Context {
	if output == "" {
		return ctx
	}
	return withTrace(ctx, func(t *Trace) { t.Output = output })
}

func WithComponent(ctx context.Context, component string) context.Context {
	if component == "" {
		return ctx
	}
	return withTrace(ctx, func(t *Trace) { t.Component = component })
}

func NewID() string {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

func sampleEvery(n int) uint32 {
	if n <= 1 {
		return 0
	}
	if uint64(n) > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(n)
}

// ParseLevel maps LOG_LEVEL to a zerolog level; unknown values mean info
func ParseLevel(s string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

func Build(cfg Config, out io.Writer) zerolog.Logger {
	if out == nil {
		out = os.Stdout
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.TimestampFieldName = "timestamp"
	zerolog.LevelFieldName = "level"
	zerolog.MessageFieldName = "msg"
	zerolog.SetGlobalLevel(ParseLevel(cfg.Level))

	if cfg.Console {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	base := zerolog.New(out)
	if n := sampleEvery(cfg.SampleN); n > 0 {
		// errors are never sampled away
		base = base.Sample(zerolog.LevelSampler{
			DebugSampler: &zerolog.BasicSampler{N: n},
			InfoSampler:  &zerolog.BasicSampler{N: n},
		})
	}

	ctx := base.With().Timestamp()
	if cfg.Mode != "" {
		ctx = ctx.Str("auth_mode", cfg.Mode)
	}
	if cfg.Service != "" {
		ctx = ctx.Str("service", cfg.Service)
	}
	return ctx.Logger()
}

// FromContext returns parent with the non-empty trace fields of ctx added
func FromContext(ctx context.Context, parent *zerolog.Logger) *zerolog.Logger {
	base := zerolog.New(io.Discard)
	if parent != nil {
		base = *parent
	}
	t := TraceFrom(ctx)
	if t == (Trace{}) {
		return &base
	}
	w := base.With()
	for _, f := range t.fields() {
		if f[1] != "" {
			w = w.Str(f[0], f[1])
		}
	}
	l := w.Logger()
	return &l
}
