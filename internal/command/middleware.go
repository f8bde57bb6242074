package command

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	logx "gamebridge/pkg/logx"
)

type HandlerFunc func(ctx context.Context, req *Request) (Reply, error)

type Middleware func(next HandlerFunc) HandlerFunc

func Chain(h HandlerFunc, m ...Middleware) HandlerFunc {
	for i := len(m) - 1; i >= 0; i-- {
		h = m[i](h)
	}
	return h
}

func MWTimeout(d time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) (Reply, error) {
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
		return func(ctx context.Context, req *Request) (rep Reply, err error) {
			defer func() {
				if r := recover(); r != nil {
					log.Error("panic recovered",
						logx.String("cmd", req.Command),
						logx.Any("panic", r),
						logx.String("stack", string(debug.Stack())),
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
		return func(ctx context.Context, req *Request) (Reply, error) {
			start := time.Now()
			rep, err := next(ctx, req)
			d := time.Since(start)

			fields := []logx.Field{
				logx.String("req_id", req.ID),
				logx.String("cmd", req.Command),
				logx.Stringer("guild_id", req.GuildID),
				logx.Stringer("user_id", req.UserID),
				logx.Duration("dur", d),
			}
			switch {
			case err == nil:
				log.Debug("command ok", fields...)
			case isUserError(err):
				// rejected requests are the caller's problem, not a fault
				log.Debug("command rejected", append(fields, logx.Err(err))...)
			default:
				log.Warn("command failed", append(fields, logx.Err(err))...)
			}
			return rep, err
		}
	}
}
