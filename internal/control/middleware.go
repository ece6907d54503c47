package control

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	logx "bosstimer/pkg/logx"
)

type HandlerFunc func(ctx context.Context, req *Request) (string, error)

type Middleware func(next HandlerFunc) HandlerFunc

func Chain(h HandlerFunc, m ...Middleware) HandlerFunc {
	for i := len(m) - 1; i >= 0; i-- {
		h = m[i](h)
	}
	return h
}

func MWTimeout(d time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) (string, error) {
			if d <= 0 {
				return next(ctx, req)
			}
			cctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next(cctx, req)
		}
	}
}

func MWPanicRecover(log logx.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) (reply string, err error) {
			defer func() {
				if r := recover(); r != nil {
					log.Error("panic recovered",
						logx.String("cmd", req.Command),
						logx.Any("panic", r),
						logx.Stack(string(debug.Stack())),
					)
					err = fmt.Errorf("panic: %v", r)
				}
			}()
			return next(ctx, req)
		}
	}
}

func MWRequestLog(log logx.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) (string, error) {
			start := time.Now()
			reply, err := next(ctx, req)
			d := time.Since(start)

			fields := []logx.Field{
				logx.String("source", req.Source),
				logx.Int64("from_id", req.FromID),
				logx.String("cmd", req.Command),
				logx.Duration("dur", d),
			}
			switch {
			case err != nil:
				log.Warn("command failed", append(fields, logx.Err(err))...)
			case d >= 750*time.Millisecond:
				log.Info("command ok", fields...)
			default:
				log.Debug("command ok", fields...)
			}
			return reply, err
		}
	}
}
