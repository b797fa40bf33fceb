// Package ratelimiter は外部APIへのリクエスト頻度を制御するスロットルを提供します。
// どの実装も業務ロジックから独立しており、context によるキャンセルに対応します。
package ratelimiter

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter は次の操作を実行してよいタイミングまで待機します。
type Limiter interface {
	Wait(ctx context.Context) error
}

var (
	_ Limiter = (*WindowLimiter)(nil)
	_ Limiter = (*TokenBucket)(nil)
	_ Limiter = (*FixedDelay)(nil)
	_ Limiter = Unlimited{}
)

// sleepCtx は d だけ待機します。ctx が先に終了した場合はそのエラーを返します。
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// WindowLimiter は interval ごとに limit 回までの呼び出しを許可します。
type WindowLimiter struct {
	mu        sync.Mutex
	limit     int           // interval あたりの上限
	interval  time.Duration // どの単位でリセットするか
	count     int
	lastReset time.Time
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error
}

// NewWindowLimiter は新しい WindowLimiter を生成します。
func NewWindowLimiter(limit int, interval time.Duration) *WindowLimiter {
	return &WindowLimiter{
		limit:     limit,
		interval:  interval,
		lastReset: time.Now(),
		now:       time.Now,
		sleep:     sleepCtx,
	}
}

// Wait はウィンドウ内の上限に達していれば次のウィンドウまで待機します。
func (rl *WindowLimiter) Wait(ctx context.Context) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	// interval を過ぎたらカウントリセット
	if now.Sub(rl.lastReset) >= rl.interval {
		rl.count = 0
		rl.lastReset = now
	}

	rl.count++
	if rl.count > rl.limit {
		wait := rl.interval - now.Sub(rl.lastReset)
		if wait > 0 {
			slog.Info("rate limit reached, waiting", "limit", rl.limit, "wait", wait)
			if err := rl.sleep(ctx, wait); err != nil {
				rl.count--
				return err
			}
		}
		rl.count = 1
		rl.lastReset = rl.now()
	}
	return nil
}

// TokenBucket は golang.org/x/time/rate によるトークンバケットです。
type TokenBucket struct {
	lim *rate.Limiter
}

// NewTokenBucket は毎秒 perSecond 回、最大 burst 回のバーストを許すリミッタを生成します。
func NewTokenBucket(perSecond float64, burst int) *TokenBucket {
	if burst < 1 {
		burst = 1
	}
	return &TokenBucket{lim: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// Wait blocks until a token is available or ctx is done.
func (tb *TokenBucket) Wait(ctx context.Context) error {
	return tb.lim.Wait(ctx)
}

// FixedDelay は呼び出し間に最低 delay の間隔を空けます。最初の呼び出しは待機しません。
type FixedDelay struct {
	mu    sync.Mutex
	delay time.Duration
	last  time.Time
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewFixedDelay は新しい FixedDelay を生成します。
func NewFixedDelay(delay time.Duration) *FixedDelay {
	return &FixedDelay{delay: delay, now: time.Now, sleep: sleepCtx}
}

// Wait は前回の呼び出しから delay 経過するまで待機します。
func (fd *FixedDelay) Wait(ctx context.Context) error {
	fd.mu.Lock()
	defer fd.mu.Unlock()

	if !fd.last.IsZero() {
		if wait := fd.delay - fd.now().Sub(fd.last); wait > 0 {
			if err := fd.sleep(ctx, wait); err != nil {
				return err
			}
		}
	} else if err := ctx.Err(); err != nil {
		return err
	}
	fd.last = fd.now()
	return nil
}

// Unlimited never waits.
type Unlimited struct{}

// Wait returns ctx.Err() only.
func (Unlimited) Wait(ctx context.Context) error { return ctx.Err() }
