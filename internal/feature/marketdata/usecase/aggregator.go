// Package usecase は上場・上櫃の両市場から相場データを集約するユースケースを実装します。
package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"stock_scanner/internal/feature/marketdata/domain"
	"stock_scanner/internal/feature/marketdata/domain/entity"
	"stock_scanner/internal/shared/ratelimiter"
)

// DailySource は1つの市場の日次スナップショットと月次履歴を提供します。
// Goの慣例に従い、インターフェースは利用者（usecase）側で定義します。
type DailySource interface {
	Market() entity.Market
	FetchDaily(ctx context.Context, date time.Time) ([]entity.Quote, error)
	FetchMonth(ctx context.Context, symbol string, month time.Time) ([]entity.Quote, error)
}

// FlowSource は1つの市場の1日分の三大法人売買を提供します（TWSE T86、TPEx 三大法人日報）。
// symbols が空なら全銘柄を返します。
type FlowSource interface {
	Market() entity.Market
	FetchInstitutional(ctx context.Context, date time.Time, symbols map[string]struct{}) ([]entity.InstitutionalFlow, error)
}

// RangeFlowSource は期間指定で三大法人売買を提供する補助データソースです。
type RangeFlowSource interface {
	Enabled() bool
	FetchInstitutionalRange(ctx context.Context, symbol string, from, to time.Time) ([]entity.InstitutionalFlow, error)
}

// FetchRecorder は上流取得の結果を記録します。metrics パッケージが実装します。
type FetchRecorder interface {
	ObserveFetch(source, outcome string, elapsed time.Duration)
}

const (
	OutcomeOK          = "ok"
	OutcomeError       = "error"
	OutcomeBreakerOpen = "breaker_open"
	OutcomeThrottled   = "throttled"

	breakerFinMind = "FINMIND"
)

// FlowBreaker returns the breaker (and metrics source label) used for a market's institutional feed.
func FlowBreaker(m entity.Market) string {
	return string(m) + "_FLOW"
}

// errCallerDone は呼び出し元の context 終了による失敗を示します。ソースの障害として数えません。
var errCallerDone = errors.New("caller context done")

// Config は Aggregator の動作パラメータです。
type Config struct {
	SourceTimeout   time.Duration  // 1リクエストあたりのタイムアウト（スロットル待ちは含まない）
	MinHistory      int            // FetchHistory が返す最小営業日数
	BreakerFailures uint32         // 連続失敗でブレーカーを開く回数
	BreakerCooldown time.Duration  // ブレーカーが開いている時間
	MaxInFlight     int            // 1銘柄あたりの同時リクエスト数（月次履歴・日付別の法人売買）
	FlowTTL         time.Duration  // 日付別の法人売買表を使い回す時間
	Location        *time.Location // 取引所のタイムゾーン
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	loc, err := time.LoadLocation("Asia/Taipei")
	if err != nil {
		loc = time.FixedZone("CST", 8*60*60)
	}
	return Config{
		SourceTimeout:   8 * time.Second,
		MinHistory:      5,
		BreakerFailures: 5,
		BreakerCooldown: time.Minute,
		MaxInFlight:     2,
		FlowTTL:         30 * time.Minute,
		Location:        loc,
	}
}

// SymbolFilter limits results to a set of symbol ids. An empty filter keeps everything.
type SymbolFilter map[string]struct{}

// NewSymbolFilter は銘柄コードの一覧からフィルタを作ります。
func NewSymbolFilter(codes ...string) SymbolFilter {
	f := make(SymbolFilter, len(codes))
	for _, c := range codes {
		f[c] = struct{}{}
	}
	return f
}

func (f SymbolFilter) keep(symbol string) bool {
	if len(f) == 0 {
		return true
	}
	_, ok := f[symbol]
	return ok
}

type flowEntry struct {
	rows    []entity.InstitutionalFlow
	expires time.Time
}

// Aggregator は複数市場への同時取得と、ソース単位の障害分離を担います。
// 呼び出し間で共有するのはブレーカーの計数、スロットル、日付別の法人売買表だけです。
type Aggregator struct {
	cfg      Config
	sources  []DailySource
	flows    []FlowSource
	enrich   RangeFlowSource
	limiter  ratelimiter.Limiter
	breakers map[string]*gobreaker.CircuitBreaker
	rec      FetchRecorder
	now      func() time.Time

	flowGroup singleflight.Group
	flowMu    sync.Mutex
	flowMemo  map[string]flowEntry
}

// NewAggregator は Aggregator を生成します。enrich, limiter, rec は nil でも構いません。
// limiter はすべての上流リクエストで共有され、リクエストごとのタイムアウトが始まる前に待機します。
func NewAggregator(cfg Config, sources []DailySource, flows []FlowSource, enrich RangeFlowSource, limiter ratelimiter.Limiter, rec FetchRecorder) *Aggregator {
	if cfg.Location == nil {
		cfg.Location = DefaultConfig().Location
	}
	if limiter == nil {
		limiter = ratelimiter.Unlimited{}
	}
	a := &Aggregator{
		cfg:      cfg,
		sources:  sources,
		flows:    flows,
		enrich:   enrich,
		limiter:  limiter,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		rec:      rec,
		now:      time.Now,
		flowMemo: make(map[string]flowEntry),
	}
	names := []string{breakerFinMind}
	for _, s := range sources {
		names = append(names, string(s.Market()))
	}
	for _, f := range flows {
		names = append(names, FlowBreaker(f.Market()))
	}
	for _, n := range names {
		a.breakers[n] = gobreaker.NewCircuitBreaker(a.breakerSettings(n))
	}
	return a
}

func (a *Aggregator) breakerSettings(name string) gobreaker.Settings {
	failures := a.cfg.BreakerFailures
	if failures == 0 {
		failures = 5
	}
	return gobreaker.Settings{
		Name:    name,
		Timeout: a.cfg.BreakerCooldown,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= failures
		},
		// 休場日と呼び出し元の取消し・期限切れはソースの障害ではない
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, domain.ErrScheduleUnavailable) ||
				errors.Is(err, errCallerDone) ||
				errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("circuit breaker state changed", "source", name, "from", from.String(), "to", to.String())
		},
	}
}

func (a *Aggregator) inFlight() int {
	if a.cfg.MaxInFlight > 0 {
		return a.cfg.MaxInFlight
	}
	return 1
}

// call waits for a request slot on the caller's context, then runs fn under the named breaker
// with the per-source timeout. Time spent queueing never counts against the timeout.
func (a *Aggregator) call(ctx context.Context, name string, fn func(ctx context.Context) (any, error)) (any, error) {
	start := a.now()
	cb := a.breakers[name]

	if cb.State() != gobreaker.StateOpen {
		if err := a.limiter.Wait(ctx); err != nil {
			a.observe(name, OutcomeThrottled, start)
			return nil, fmt.Errorf("%w: %s: waiting for request slot: %w", domain.ErrUpstreamUnavailable, name, err)
		}
	}

	res, err := cb.Execute(func() (interface{}, error) {
		cctx := ctx
		if a.cfg.SourceTimeout > 0 {
			var cancel context.CancelFunc
			cctx, cancel = context.WithTimeout(ctx, a.cfg.SourceTimeout)
			defer cancel()
		}
		res, err := fn(cctx)
		if err != nil && ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", errCallerDone, err)
		}
		return res, err
	})

	outcome := OutcomeOK
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		outcome = OutcomeBreakerOpen
		err = fmt.Errorf("%w: %s: %w", domain.ErrUpstreamUnavailable, name, err)
	case err != nil:
		outcome = OutcomeError
		if !errors.Is(err, domain.ErrUpstreamUnavailable) && !errors.Is(err, domain.ErrScheduleUnavailable) {
			err = fmt.Errorf("%w: %s: %w", domain.ErrUpstreamUnavailable, name, err)
		}
	}
	a.observe(name, outcome, start)
	return res, err
}

func (a *Aggregator) observe(name, outcome string, start time.Time) {
	if a.rec != nil {
		a.rec.ObserveFetch(name, outcome, a.now().Sub(start))
	}
}

// Today returns the current trading calendar day in the exchange's time zone, as a UTC midnight.
func (a *Aggregator) Today() time.Time {
	t := a.now().In(a.cfg.Location)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// FetchMarket は全ソースへ同時に日次スナップショットを要求し、成功分の和集合を返します。
// date がゼロ値なら最新、filter が空なら全銘柄です。全ソースが失敗または空の場合のみ
// ErrMarketDataUnavailable を返します。
func (a *Aggregator) FetchMarket(ctx context.Context, date time.Time, filter SymbolFilter) (entity.MarketSnapshot, error) {
	type result struct {
		quotes []entity.Quote
		err    error
	}
	results := make([]result, len(a.sources))

	var wg sync.WaitGroup
	for i, src := range a.sources {
		wg.Add(1)
		go func(i int, src DailySource) {
			defer wg.Done()
			res, err := a.call(ctx, string(src.Market()), func(ctx context.Context) (any, error) {
				return src.FetchDaily(ctx, date)
			})
			if err != nil {
				results[i] = result{err: err}
				return
			}
			results[i] = result{quotes: res.([]entity.Quote)}
		}(i, src)
	}
	wg.Wait()

	snap := entity.MarketSnapshot{Date: date}
	var errs []error
	for i, src := range a.sources {
		r := results[i]
		st := entity.SourceStatus{Source: src.Market()}
		switch {
		case r.err != nil:
			st.Err = r.err
			st.Error = r.err.Error()
			errs = append(errs, r.err)
			slog.Warn("market source failed", "source", src.Market(), "error", r.err)
		case len(r.quotes) == 0:
			st.Err = fmt.Errorf("%w: %s returned no quotes", domain.ErrScheduleUnavailable, src.Market())
			st.Error = st.Err.Error()
			errs = append(errs, st.Err)
		default:
			st.OK = true
			for _, q := range r.quotes {
				if !filter.keep(q.Symbol) {
					continue
				}
				snap.Quotes = append(snap.Quotes, q)
				st.Count++
				if q.Date.After(snap.Date) {
					snap.Date = q.Date
				}
			}
		}
		snap.Statuses = append(snap.Statuses, st)
	}

	if len(snap.Quotes) == 0 {
		if len(errs) == 0 {
			return snap, fmt.Errorf("%w: no quotes matched the filter", domain.ErrMarketDataUnavailable)
		}
		return snap, fmt.Errorf("%w: %w", domain.ErrMarketDataUnavailable, errors.Join(errs...))
	}
	return snap, nil
}

// FetchHistory は直近 days 暦日分の日足を、月次エンドポイントを並行に呼んで組み立てます。
// 結果は日付昇順・日付重複なしです。一部の月が失敗しても MinHistory 日以上あれば成功とします。
// market が不明（空）の場合は各ソースを順に試します。
func (a *Aggregator) FetchHistory(ctx context.Context, symbol string, market entity.Market, days int) ([]entity.Quote, error) {
	var lastErr error
	for _, src := range a.sources {
		if market != entity.MarketUnknown && src.Market() != market {
			continue
		}
		quotes, err := a.historyFrom(ctx, src, symbol, days)
		if err == nil {
			return quotes, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("%w: no source for market %q", domain.ErrUpstreamUnavailable, market)
	}
	return nil, lastErr
}

func (a *Aggregator) historyFrom(ctx context.Context, src DailySource, symbol string, days int) ([]entity.Quote, error) {
	today := a.Today()
	from := today.AddDate(0, 0, -days)
	months := monthsBetween(from, today)

	type result struct {
		quotes []entity.Quote
		err    error
	}
	results := make([]result, len(months))
	var g errgroup.Group
	g.SetLimit(a.inFlight())
	for i, m := range months {
		i, m := i, m
		g.Go(func() error {
			res, err := a.call(ctx, string(src.Market()), func(ctx context.Context) (any, error) {
				return src.FetchMonth(ctx, symbol, m)
			})
			if err != nil {
				results[i] = result{err: err}
				return nil
			}
			results[i] = result{quotes: res.([]entity.Quote)}
			return nil
		})
	}
	_ = g.Wait()

	byDate := make(map[string]entity.Quote)
	var errs []error
	for i, r := range results {
		if r.err != nil {
			slog.Debug("monthly history fetch failed", "symbol", symbol, "month", months[i].Format("2006-01"), "error", r.err)
			errs = append(errs, r.err)
			continue
		}
		for _, q := range r.quotes {
			if q.Date.Before(from) || q.Date.After(today) {
				continue
			}
			byDate[q.DateKey()] = q
		}
	}

	quotes := make([]entity.Quote, 0, len(byDate))
	for _, q := range byDate {
		quotes = append(quotes, q)
	}
	sort.Slice(quotes, func(i, j int) bool { return quotes[i].Date.Before(quotes[j].Date) })

	if len(quotes) == 0 && len(errs) == len(months) {
		return nil, errors.Join(errs...)
	}
	if len(quotes) < a.cfg.MinHistory {
		return nil, fmt.Errorf("%w: %s has %d trading days, need %d", domain.ErrInsufficientHistory, symbol, len(quotes), a.cfg.MinHistory)
	}
	return quotes, nil
}

// monthsBetween returns the first day of every month touching [from, to].
func monthsBetween(from, to time.Time) []time.Time {
	var out []time.Time
	m := time.Date(from.Year(), from.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(to.Year(), to.Month(), 1, 0, 0, 0, 0, time.UTC)
	for !m.After(end) {
		out = append(out, m)
		m = m.AddDate(0, 1, 0)
	}
	return out
}

// FetchInstitutional は指定日の三大法人売買を返します。補助データソースが有効ならまずそれを使い、
// 失敗時は市場ごとの日報にフォールバックします。market が不明（空）の場合は、その銘柄の行を返した
// 最初の市場を採用します。日付単位の失敗は許容し、全日失敗した場合のみエラーです。
func (a *Aggregator) FetchInstitutional(ctx context.Context, symbol string, market entity.Market, dates []time.Time) ([]entity.InstitutionalFlow, error) {
	if len(dates) == 0 {
		return nil, nil
	}
	wanted := make(map[string]struct{}, len(dates))
	from, to := dates[0], dates[0]
	for _, d := range dates {
		wanted[d.Format(time.DateOnly)] = struct{}{}
		if d.Before(from) {
			from = d
		}
		if d.After(to) {
			to = d
		}
	}

	if a.enrich != nil && a.enrich.Enabled() {
		res, err := a.call(ctx, breakerFinMind, func(ctx context.Context) (any, error) {
			return a.enrich.FetchInstitutionalRange(ctx, symbol, from, to)
		})
		if err == nil {
			var out []entity.InstitutionalFlow
			for _, f := range res.([]entity.InstitutionalFlow) {
				if _, ok := wanted[f.Date.Format(time.DateOnly)]; ok {
					out = append(out, f)
				}
			}
			return sortFlows(out), nil
		}
		slog.Warn("enrichment source failed, falling back to exchange reports", "symbol", symbol, "error", err)
	}

	var lastErr error
	tried := 0
	for _, src := range a.flows {
		if market != entity.MarketUnknown && src.Market() != market {
			continue
		}
		tried++
		flows, err := a.flowsFrom(ctx, src, symbol, dates)
		if err != nil {
			lastErr = err
			continue
		}
		if len(flows) == 0 && market == entity.MarketUnknown {
			continue
		}
		return flows, nil
	}
	if tried == 0 {
		return nil, fmt.Errorf("%w: no institutional flow source for market %q", domain.ErrUpstreamUnavailable, market)
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, nil
}

// flowsFrom collects one symbol's rows from a market's per-date reports.
func (a *Aggregator) flowsFrom(ctx context.Context, src FlowSource, symbol string, dates []time.Time) ([]entity.InstitutionalFlow, error) {
	results := make([][]entity.InstitutionalFlow, len(dates))
	errs := make([]error, len(dates))
	var g errgroup.Group
	g.SetLimit(a.inFlight())
	for i, d := range dates {
		i, d := i, d
		g.Go(func() error {
			rows, err := a.flowsOn(ctx, src, d)
			if err != nil {
				errs[i] = err
				return nil
			}
			for _, f := range rows {
				if f.Symbol == symbol {
					results[i] = append(results[i], f)
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	var out []entity.InstitutionalFlow
	failed := 0
	for i, d := range dates {
		if errs[i] != nil {
			failed++
			slog.Debug("institutional report unavailable", "source", src.Market(), "date", d.Format(time.DateOnly), "error", errs[i])
			continue
		}
		out = append(out, results[i]...)
	}
	if failed == len(dates) {
		return nil, errors.Join(errs...)
	}
	return sortFlows(out), nil
}

// flowsOn returns every row of one market's report for date. Concurrent callers share one request
// and successful reports are reused for FlowTTL.
func (a *Aggregator) flowsOn(ctx context.Context, src FlowSource, date time.Time) ([]entity.InstitutionalFlow, error) {
	key := string(src.Market()) + ":" + date.Format(time.DateOnly)
	if rows, ok := a.memoFlows(key); ok {
		return rows, nil
	}
	v, err, _ := a.flowGroup.Do(key, func() (any, error) {
		if rows, ok := a.memoFlows(key); ok {
			return rows, nil
		}
		res, err := a.call(ctx, FlowBreaker(src.Market()), func(ctx context.Context) (any, error) {
			return src.FetchInstitutional(ctx, date, nil)
		})
		if err != nil {
			return nil, err
		}
		rows := res.([]entity.InstitutionalFlow)
		a.storeFlows(key, rows)
		return rows, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]entity.InstitutionalFlow), nil
}

func (a *Aggregator) memoFlows(key string) ([]entity.InstitutionalFlow, bool) {
	a.flowMu.Lock()
	defer a.flowMu.Unlock()
	e, ok := a.flowMemo[key]
	if !ok || !a.now().Before(e.expires) {
		return nil, false
	}
	return e.rows, true
}

func (a *Aggregator) storeFlows(key string, rows []entity.InstitutionalFlow) {
	if a.cfg.FlowTTL <= 0 {
		return
	}
	a.flowMu.Lock()
	defer a.flowMu.Unlock()
	now := a.now()
	for k, e := range a.flowMemo {
		if !now.Before(e.expires) {
			delete(a.flowMemo, k)
		}
	}
	a.flowMemo[key] = flowEntry{rows: rows, expires: now.Add(a.cfg.FlowTTL)}
}

func sortFlows(flows []entity.InstitutionalFlow) []entity.InstitutionalFlow {
	sort.SliceStable(flows, func(i, j int) bool { return flows[i].Date.Before(flows[j].Date) })
	return flows
}
