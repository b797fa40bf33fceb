// Package batch は固定サイズのチャンク単位で処理を並行実行し、チャンク間をスロットルで制御します。
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"stock_scanner/internal/shared/ratelimiter"
)

// ErrPanic wraps a panic raised by one item's function.
var ErrPanic = errors.New("batch item panicked")

// Outcome は1要素の処理結果です。失敗は Err に格納され、他の要素には影響しません。
type Outcome[T, R any] struct {
	Index int
	Item  T
	Value R
	Err   error
}

// Options は Run の動作設定です。
type Options struct {
	Size    int                 // 1チャンクあたりの要素数（0以下なら全件を1チャンク）
	Limiter ratelimiter.Limiter // 各チャンク開始前に Wait する（nil なら待機なし）
}

// Run は items を Size ごとのチャンクに分け、チャンク内は並行、チャンク間は逐次に fn を実行します。
// 結果は入力順に並びます。ctx が終了すると以降のチャンクは開始せず、未処理要素の Err に ctx.Err() を設定します。
func Run[T, R any](ctx context.Context, items []T, opts Options, fn func(ctx context.Context, item T) (R, error)) []Outcome[T, R] {
	out := make([]Outcome[T, R], len(items))
	for i, it := range items {
		out[i] = Outcome[T, R]{Index: i, Item: it}
	}

	size := opts.Size
	if size <= 0 {
		size = len(items)
	}

	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))

		if err := wait(ctx, opts.Limiter); err != nil {
			for i := start; i < len(items); i++ {
				out[i].Err = err
			}
			slog.Info("batch run stopped", "processed", start, "remaining", len(items)-start, "error", err)
			return out
		}

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(o *Outcome[T, R]) {
				defer wg.Done()
				defer func() {
					if r := recover(); r != nil {
						o.Err = fmt.Errorf("%w: %v", ErrPanic, r)
					}
				}()
				o.Value, o.Err = fn(ctx, o.Item)
			}(&out[i])
		}
		wg.Wait()
	}
	return out
}

func wait(ctx context.Context, l ratelimiter.Limiter) error {
	if l == nil {
		return ctx.Err()
	}
	return l.Wait(ctx)
}

// Succeeded returns the outcomes without an error.
func Succeeded[T, R any](outcomes []Outcome[T, R]) []Outcome[T, R] {
	var ok []Outcome[T, R]
	for _, o := range outcomes {
		if o.Err == nil {
			ok = append(ok, o)
		}
	}
	return ok
}
