package logger

import (
	"context"
	"log/slog"

	"github.com/rs/zerolog"
)

// ZerologHandler forwards slog records to a zerolog.Logger.
type ZerologHandler struct {
	zl     zerolog.Logger
	level  slog.Level
	groups []string
}

func NewZerologHandler(zl zerolog.Logger, level slog.Level) *ZerologHandler {
	return &ZerologHandler{zl: zl, level: level}
}

func (h *ZerologHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *ZerologHandler) Handle(_ context.Context, r slog.Record) error {
	ev := h.zl.WithLevel(zerologLevel(r.Level))
	if ev == nil {
		return nil
	}
	dict, root := h.open(ev)
	r.Attrs(func(a slog.Attr) bool {
		appendAttr(dict, a)
		return true
	})
	h.close(root, dict)
	ev.Msg(r.Message)
	return nil
}

// open returns the event record attrs are written to; with groups open it
// is the innermost nested dict.
func (h *ZerologHandler) open(ev *zerolog.Event) (*zerolog.Event, *zerolog.Event) {
	if len(h.groups) == 0 {
		return ev, ev
	}
	return zerolog.Dict(), ev
}

func (h *ZerologHandler) close(root, inner *zerolog.Event) {
	if len(h.groups) == 0 {
		return
	}
	for i := len(h.groups) - 1; i > 0; i-- {
		inner = zerolog.Dict().Dict(h.groups[i], inner)
	}
	root.Dict(h.groups[0], inner)
}

func (h *ZerologHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	ctx := h.zl.With()
	for _, a := range attrs {
		for i := len(h.groups) - 1; i >= 0; i-- {
			a = slog.Group(h.groups[i], a)
		}
		ctx = appendContext(ctx, a)
	}
	return &ZerologHandler{zl: ctx.Logger(), level: h.level, groups: h.groups}
}

func (h *ZerologHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	groups := append(append([]string(nil), h.groups...), name)
	return &ZerologHandler{zl: h.zl, level: h.level, groups: groups}
}

func zerologLevel(l slog.Level) zerolog.Level {
	switch {
	case l >= slog.LevelError:
		return zerolog.ErrorLevel
	case l >= slog.LevelWarn:
		return zerolog.WarnLevel
	case l >= slog.LevelInfo:
		return zerolog.InfoLevel
	}
	return zerolog.DebugLevel
}

func appendAttr(ev *zerolog.Event, a slog.Attr) {
	v := a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	switch v.Kind() {
	case slog.KindGroup:
		if a.Key == "" {
			for _, ga := range v.Group() {
				appendAttr(ev, ga)
			}
			return
		}
		dict := zerolog.Dict()
		for _, ga := range v.Group() {
			appendAttr(dict, ga)
		}
		ev.Dict(a.Key, dict)
	case slog.KindString:
		ev.Str(a.Key, v.String())
	case slog.KindInt64:
		ev.Int64(a.Key, v.Int64())
	case slog.KindUint64:
		ev.Uint64(a.Key, v.Uint64())
	case slog.KindFloat64:
		ev.Float64(a.Key, v.Float64())
	case slog.KindBool:
		ev.Bool(a.Key, v.Bool())
	case slog.KindDuration:
		ev.Dur(a.Key, v.Duration())
	case slog.KindTime:
		ev.Time(a.Key, v.Time())
	default:
		if err, ok := v.Any().(error); ok {
			ev.AnErr(a.Key, err)
			return
		}
		ev.Interface(a.Key, v.Any())
	}
}

func appendContext(ctx zerolog.Context, a slog.Attr) zerolog.Context {
	v := a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return ctx
	}
	switch v.Kind() {
	case slog.KindGroup:
		if a.Key == "" {
			for _, ga := range v.Group() {
				ctx = appendContext(ctx, ga)
			}
			return ctx
		}
		dict := zerolog.Dict()
		for _, ga := range v.Group() {
			appendAttr(dict, ga)
		}
		return ctx.Dict(a.Key, dict)
	case slog.KindString:
		return ctx.Str(a.Key, v.String())
	case slog.KindInt64:
		return ctx.Int64(a.Key, v.Int64())
	case slog.KindUint64:
		return ctx.Uint64(a.Key, v.Uint64())
	case slog.KindBool:
		return ctx.Bool(a.Key, v.Bool())
	case slog.KindDuration:
		return ctx.Dur(a.Key, v.Duration())
	case slog.KindTime:
		return ctx.Time(a.Key, v.Time())
	}
	if err, ok := v.Any().(error); ok {
		return ctx.AnErr(a.Key, err)
	}
	return ctx.Interface(a.Key, v.Any())
}
