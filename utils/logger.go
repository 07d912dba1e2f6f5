package utils

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/mdobak/go-xerrors"
)

type stackFrame struct {
	Func   string `json:"func"`
	Source string `json:"source"`
	Line   int    `json:"line"`
}

var (
	loggerOnce sync.Once
	logger     *slog.Logger
)

// GetLogger returns the process-wide structured logger. Errors wrapped with
// xerrors carry stack traces which are rendered as a frame list.
func GetLogger() *slog.Logger {
	loggerOnce.Do(func() {
		opts := &slog.HandlerOptions{
			ReplaceAttr: replaceAttr,
		}
		handler := slog.NewJSONHandler(os.Stdout, opts)
		logger = slog.New(handler)
	})
	return logger
}

func replaceAttr(_ []string, attr slog.Attr) slog.Attr {
	switch attr.Value.Kind() {
	case slog.KindAny:
		switch v := attr.Value.Any().(type) {
		case error:
			attr.Value = fmtErr(v)
		}
	}
	return attr
}

// fmtErr flattens an error into a group holding the message and, when
// available, the xerrors stack trace.
func fmtErr(err error) slog.Value {
	var groupValues []slog.Attr
	groupValues = append(groupValues, slog.String("msg", err.Error()))

	frames := marshalStack(err)
	if frames != nil {
		groupValues = append(groupValues, slog.Any("trace", frames))
	}

	return slog.GroupValue(groupValues...)
}

func marshalStack(err error) []stackFrame {
	trace := xerrors.StackTrace(err)
	if len(trace) == 0 {
		return nil
	}

	frames := trace.Frames()
	s := make([]stackFrame, len(frames))
	for i, v := range frames {
		f := stackFrame{
			Source: filepath.Join(
				filepath.Base(filepath.Dir(v.File)),
				filepath.Base(v.File),
			),
			Func: filepath.Base(v.Function),
			Line: v.Line,
		}
		s[i] = f
	}

	return s
}

// LogError is a convenience wrapper used by handlers that only have a bare
// error and no extra attributes to attach.
func LogError(ctx context.Context, msg string, err error) {
	GetLogger().ErrorContext(ctx, msg, slog.Any("error", xerrors.New(err)))
}
