// Package logger builds the process *slog.Logger: a colored console
// handler for humans and a zerolog-backed JSON handler for machines.
package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"log/slog"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
)

type Options struct {
	Level  string
	Format string
}

// New returns a logger writing to out in the given format.
func New(out io.Writer, opts Options) (*slog.Logger, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}
	switch opts.Format {
	case "", "text":
		return slog.New(NewCustomHandler(out, CustomHandlerOpts{SlogOpts: slog.HandlerOptions{Level: level}})), nil
	case "json":
		return slog.New(NewZerologHandler(zerolog.New(out).With().Timestamp().Logger(), level)), nil
	}
	return nil, fmt.Errorf("unknown log format %q", opts.Format)
}

func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}

type CustomHandlerOpts struct {
	SlogOpts slog.HandlerOptions
}

// CustomHandler prints "[15:04:05] LEVEL: message {attrs}" with a colored
// level, attrs rendered as indented JSON.
type CustomHandler struct {
	opts   slog.HandlerOptions
	attrs  []slog.Attr
	groups []string
	mu     *sync.Mutex
	l      *log.Logger
}

func NewCustomHandler(out io.Writer, opts CustomHandlerOpts) *CustomHandler {
	return &CustomHandler{
		opts: opts.SlogOpts,
		mu:   &sync.Mutex{},
		l:    log.New(out, "", 0),
	}
}

func (ch *CustomHandler) Enabled(_ context.Context, level slog.Level) bool {
	min := slog.LevelInfo
	if ch.opts.Level != nil {
		min = ch.opts.Level.Level()
	}
	return level >= min
}

func (ch *CustomHandler) Handle(ctx context.Context, r slog.Record) error {
	level := r.Level.String() + ":"
	switch r.Level {
	case slog.LevelDebug:
		level = color.WhiteString(level)
	case slog.LevelInfo:
		level = color.GreenString(level)
	case slog.LevelWarn:
		level = color.YellowString(level)
	case slog.LevelError:
		level = color.RedString(level)
	default:
		level = color.HiWhiteString(level)
	}
	timeStr := r.Time.Format("[15:04:05]")
	message := color.HiWhiteString(r.Message)

	fields := make(map[string]any, len(ch.attrs)+r.NumAttrs())
	for _, a := range ch.attrs {
		addField(fields, a)
	}
	r.Attrs(func(a slog.Attr) bool {
		addField(scope(fields, ch.groups), a)
		return true
	})

	ch.mu.Lock()
	defer ch.mu.Unlock()
	// Omit empty struct.
	if len(fields) == 0 {
		ch.l.Println(timeStr, level, message)
		return nil
	}
	j, err := json.MarshalIndent(fields, "", " ")
	if err != nil {
		return err
	}
	ch.l.Println(timeStr, level, message, color.WhiteString(string(j)))
	return nil
}

func (ch *CustomHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	h := *ch
	h.attrs = append([]slog.Attr(nil), ch.attrs...)
	for _, a := range attrs {
		// Attrs added inside a group nest under it.
		for i := len(ch.groups) - 1; i >= 0; i-- {
			a = slog.Group(ch.groups[i], a)
		}
		h.attrs = append(h.attrs, a)
	}
	return &h
}

func (ch *CustomHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return ch
	}
	h := *ch
	h.groups = append(append([]string(nil), ch.groups...), name)
	return &h
}

// scope returns the map a record attr lands in for the open groups.
func scope(fields map[string]any, groups []string) map[string]any {
	for _, g := range groups {
		next, ok := fields[g].(map[string]any)
		if !ok {
			next = map[string]any{}
			fields[g] = next
		}
		fields = next
	}
	return fields
}

func addField(fields map[string]any, a slog.Attr) {
	v := a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if v.Kind() != slog.KindGroup {
		if err, ok := v.Any().(error); ok {
			fields[a.Key] = err.Error()
			return
		}
		fields[a.Key] = v.Any()
		return
	}
	target := fields
	if a.Key != "" {
		target = scope(fields, []string{a.Key})
	}
	for _, ga := range v.Group() {
		addField(target, ga)
	}
}
