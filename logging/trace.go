// Package logging holds the slog handlers the planner CLI can log through.
package logging

import (
	"context"
	"encoding"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/erikjearl/SEPIA-Environments/game"
)

// TraceOptions configures a TraceHandler.
type TraceOptions struct {
	Level     slog.Leveler
	AddSource bool
	// Indent pretty-prints each record over several lines.
	Indent bool
}

// TraceHandler is a slog.Handler that prints one JSON object per record.
//
// Planner values are flattened to something readable: positions become
// "(x,y)", actions and errors their String/Error text.
type TraceHandler struct {
	w    io.Writer
	mu   *sync.Mutex
	opts TraceOptions

	attrs  []slog.Attr
	groups []string
}

func NewTraceHandler(w io.Writer, opts *TraceOptions) *TraceHandler {
	h := &TraceHandler{w: w, mu: &sync.Mutex{}}
	if opts != nil {
		h.opts = *opts
	}
	if h.opts.Level == nil {
		h.opts.Level = slog.LevelInfo
	}
	return h
}

func (h *TraceHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.opts.Level.Level()
}

func (h *TraceHandler) Handle(_ context.Context, r slog.Record) error {
	payload := make(map[string]any, 6+r.NumAttrs())

	when := r.Time
	if when.IsZero() {
		when = time.Now()
	}
	payload["time"] = when.Format(time.RFC3339Nano)
	payload["level"] = r.Level.String()
	payload["msg"] = r.Message

	if h.opts.AddSource {
		payload["source"] = sourceFromPC(r.PC)
	}

	dst := payload
	for _, g := range h.groups {
		m, ok := dst[g].(map[string]any)
		if !ok {
			m = map[string]any{}
			dst[g] = m
		}
		dst = m
	}
	// Attrs from WithAttrs land in the innermost group.
	for _, a := range h.attrs {
		addAttr(dst, a)
	}
	r.Attrs(func(a slog.Attr) bool {
		addAttr(dst, a)
		return true
	})

	var b []byte
	var err error
	if h.opts.Indent {
		b, err = json.MarshalIndent(payload, "", "  ")
	} else {
		b, err = json.Marshal(payload)
	}
	if err != nil {
		b = []byte("{\"time\":" + strconv.Quote(payload["time"].(string)) +
			",\"level\":" + strconv.Quote(r.Level.String()) +
			",\"msg\":" + strconv.Quote(r.Message) +
			",\"log_error\":" + strconv.Quote(err.Error()) + "}")
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err = h.w.Write(append(b, '\n'))
	return err
}

func (h *TraceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &clone
}

func (h *TraceHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.groups = append(append([]string(nil), h.groups...), name)
	return &clone
}

func addAttr(dst map[string]any, a slog.Attr) {
	v := a.Value.Resolve()
	if a.Key == "" && v.Kind() != slog.KindGroup {
		return
	}
	if v.Kind() == slog.KindGroup {
		child := dst
		if a.Key != "" {
			child = map[string]any{}
			dst[a.Key] = child
		}
		for _, ga := range v.Group() {
			addAttr(child, ga)
		}
		return
	}
	dst[a.Key] = valueToAny(v)
}

func valueToAny(v slog.Value) any {
	switch v.Kind() {
	case slog.KindString:
		return v.String()
	case slog.KindInt64:
		return v.Int64()
	case slog.KindUint64:
		return v.Uint64()
	case slog.KindFloat64:
		return v.Float64()
	case slog.KindBool:
		return v.Bool()
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindTime:
		return v.Time().Format(time.RFC3339Nano)
	case slog.KindAny:
		return anyToJSON(v.Any())
	default:
		return v.String()
	}
}

func anyToJSON(x any) any {
	switch x := x.(type) {
	case game.Position:
		return x.String()
	case []game.Position:
		out := make([]string, len(x))
		for i, p := range x {
			out[i] = p.String()
		}
		return out
	case game.Action:
		return x.String()
	case []game.Action:
		out := make([]string, len(x))
		for i, a := range x {
			out[i] = a.String()
		}
		return out
	case error:
		return x.Error()
	case json.Marshaler, encoding.TextMarshaler:
		return x
	case fmt.Stringer:
		return x.String()
	default:
		return x
	}
}

func sourceFromPC(pc uintptr) string {
	if pc == 0 {
		return ""
	}
	frames := runtime.CallersFrames([]uintptr{pc})
	f, _ := frames.Next()
	if f.File == "" {
		return ""
	}
	file := f.File
	if idx := strings.LastIndexByte(file, '/'); idx >= 0 {
		file = file[idx+1:]
	}
	return file + ":" + strconv.Itoa(f.Line)
}
