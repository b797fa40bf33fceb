package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	mdentity "stock_scanner/internal/feature/marketdata/domain/entity"
	mdusecase "stock_scanner/internal/feature/marketdata/usecase"
	"stock_scanner/internal/feature/scanner/domain"
	"stock_scanner/internal/feature/scanner/domain/entity"
	"stock_scanner/internal/shared/batch"
	"stock_scanner/internal/shared/ratelimiter"
)

// MarketData は相場データの取得を抽象化します（marketdata.Aggregator が実装）。
// Goの慣例に従い、インターフェースは利用者（usecase）側で定義します。
type MarketData interface {
	FetchMarket(ctx context.Context, date time.Time, filter mdusecase.SymbolFilter) (mdentity.MarketSnapshot, error)
	FetchHistory(ctx context.Context, symbol string, market mdentity.Market, days int) ([]mdentity.Quote, error)
	FetchInstitutional(ctx context.Context, symbol string, market mdentity.Market, dates []time.Time) ([]mdentity.InstitutionalFlow, error)
	Today() time.Time
}

// ResultCache は銘柄×営業日単位の評価結果キャッシュです。ミスは (nil, nil) を返します。
type ResultCache interface {
	Get(ctx context.Context, symbol string, day time.Time) (*entity.AnalysisResult, error)
	Set(ctx context.Context, symbol string, day time.Time, r entity.AnalysisResult) error
	Invalidate(ctx context.Context, symbol string) error
}

// SectorDirectory は業種に属する銘柄コードを返します。
type SectorDirectory interface {
	CodesInSector(ctx context.Context, sector string) ([]string, error)
}

// Recorder はスキャンの計測値を記録します。metrics パッケージが実装します。
type Recorder interface {
	ObserveStage(stage string, elapsed time.Duration)
	ObserveCache(outcome string)
	SetLastResultCount(n int)
}

// Cache outcomes reported to the Recorder.
const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheError = "error"
	CacheSkip  = "skip"
)

// Config はオーケストレータの動作パラメータです。
type Config struct {
	Settings     entity.ScanSettings // プロセス既定の閾値（この値のときだけキャッシュを使う）
	DiscoveryCap int                 // Discovery で残す候補の上限
	MinVolume    int64               // 流動性下限（株）
	FilterTopN   int                 // Filtering で残す上位件数
	BatchSize    int                 // 1チャンクあたりの銘柄数
	ShallowDays  int                 // Filtering で取得する暦日数
	DeepDays     int                 // Analyzing で取得する暦日数
	FlowDays     int                 // 法人売買を取得する直近営業日数
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Settings:     entity.DefaultScanSettings(),
		DiscoveryCap: 100,
		MinVolume:    500_000,
		FilterTopN:   20,
		BatchSize:    10,
		ShallowDays:  45,
		DeepDays:     70,
		FlowDays:     5,
	}
}

// Scanner は Discovery → Filtering → Analyzing の3段階パイプラインを駆動します。
// スキャンの状態は呼び出しごとのローカル変数に閉じており、共有される可変状態はキャッシュのみです。
type Scanner struct {
	cfg      Config
	md       MarketData
	engine   *ScoringEngine
	cache    ResultCache
	sectors  SectorDirectory
	throttle ratelimiter.Limiter
	rec      Recorder
}

// NewScanner は Scanner を生成します。cache, sectors, throttle, rec は nil でも構いません。
func NewScanner(cfg Config, md MarketData, engine *ScoringEngine, cache ResultCache, sectors SectorDirectory, throttle ratelimiter.Limiter, rec Recorder) *Scanner {
	if engine == nil {
		engine = NewScoringEngine()
	}
	if throttle == nil {
		throttle = ratelimiter.Unlimited{}
	}
	return &Scanner{cfg: cfg, md: md, engine: engine, cache: cache, sectors: sectors, throttle: throttle, rec: rec}
}

// Defaults returns the process default settings.
func (s *Scanner) Defaults() entity.ScanSettings {
	return s.cfg.Settings
}

// candidate はパイプラインを流れる銘柄です。
type candidate struct {
	Symbol string
	Name   string
	Market mdentity.Market
	Volume int64
}

// run は1回のスキャン呼び出しの状態です。
type run struct {
	id       string
	stage    entity.Stage
	started  time.Time
	log      *slog.Logger
	failures []entity.SymbolFailure
}

func (s *Scanner) newRun(op string) *run {
	id := uuid.NewString()
	return &run{
		id:      id,
		stage:   entity.StageIdle,
		started: time.Now(),
		log:     slog.With("run_id", id, "op", op),
	}
}

func (r *run) advance(to entity.Stage) error {
	st, err := entity.Transition(r.stage, to)
	if err != nil {
		return err
	}
	r.log.Info("scan stage", "from", r.stage, "to", st)
	r.stage = st
	return nil
}

func (r *run) abort(err error) {
	r.log.Error("scan aborted", "stage", r.stage, "error", err)
	r.stage = entity.StageIdle
}

func (r *run) fail(symbol string, err error) {
	r.log.Warn("symbol skipped", "symbol", symbol, "stage", r.stage, "error", err)
	r.failures = append(r.failures, entity.SymbolFailure{Symbol: symbol, Stage: r.stage, Error: err.Error()})
}

func (s *Scanner) observe(stage entity.Stage, since time.Time) {
	if s.rec != nil {
		s.rec.ObserveStage(string(stage), time.Since(since))
	}
}

func (s *Scanner) observeCache(outcome string) {
	if s.rec != nil {
		s.rec.ObserveCache(outcome)
	}
}

// RunDiscovery は全市場スナップショットから流動性があり前日比0以上の銘柄を出来高順に抽出します。
func (s *Scanner) RunDiscovery(ctx context.Context) ([]entity.AnalysisResult, error) {
	r := s.newRun("discovery")
	if err := r.advance(entity.StageDiscovery); err != nil {
		return nil, err
	}
	cands, _, err := s.discover(ctx, r, nil, "")
	if err != nil {
		r.abort(err)
		return nil, err
	}
	out := make([]entity.AnalysisResult, 0, len(cands))
	for _, c := range cands {
		out = append(out, c.result)
	}
	return out, nil
}

type discovered struct {
	candidate
	result entity.AnalysisResult
}

func (s *Scanner) discover(ctx context.Context, r *run, filter mdusecase.SymbolFilter, market mdentity.Market) ([]discovered, []mdentity.SourceStatus, error) {
	defer s.observe(entity.StageDiscovery, time.Now())

	snap, err := s.md.FetchMarket(ctx, time.Time{}, filter)
	if err != nil {
		return nil, snap.Statuses, err
	}
	for _, st := range snap.Statuses {
		if !st.OK {
			r.log.Warn("market source degraded", "source", st.Source, "error", st.Error)
		}
	}
	if market != mdentity.MarketUnknown {
		if st, ok := snap.Status(market); ok && !st.OK {
			return nil, snap.Statuses, fmt.Errorf("%w: %s: %s", domain.ErrMarketDataUnavailable, market, st.Error)
		}
	}

	var out []discovered
	for _, q := range snap.Quotes {
		if market != mdentity.MarketUnknown && q.Market != market {
			continue
		}
		if q.Volume < s.cfg.MinVolume || q.Change < 0 || !q.Valid() {
			continue
		}
		out = append(out, discovered{
			candidate: candidate{Symbol: q.Symbol, Name: q.Name, Market: q.Market, Volume: q.Volume},
			result: entity.AnalysisResult{
				Symbol:        q.Symbol,
				Name:          q.Name,
				Market:        q.Market,
				Date:          q.Date,
				Close:         q.Close,
				Change:        q.Change,
				ChangePercent: round(q.ChangePercent(), 4),
				Volume:        q.Volume,
				Tags:          []entity.Tag{},
			},
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Volume != out[j].Volume {
			return out[i].Volume > out[j].Volume
		}
		return out[i].Symbol < out[j].Symbol
	})
	if s.cfg.DiscoveryCap > 0 && len(out) > s.cfg.DiscoveryCap {
		out = out[:s.cfg.DiscoveryCap]
	}
	r.log.Info("discovery complete", "quotes", len(snap.Quotes), "candidates", len(out), "partial", snap.Partial())
	return out, snap.Statuses, nil
}

// RunFilter は候補銘柄ごとに短期履歴を取得して採点し、スコア上位 FilterTopN 件を返します。
// 銘柄単位の失敗は結果から除外されるだけで、エラーにはなりません。
func (s *Scanner) RunFilter(ctx context.Context, codes []string, settings entity.ScanSettings) ([]entity.AnalysisResult, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	cands, err := candidatesFromCodes(codes)
	if err != nil {
		return nil, err
	}
	r := s.newRun("filter")
	for _, st := range []entity.Stage{entity.StageDiscovery, entity.StageFiltering} {
		if err := r.advance(st); err != nil {
			return nil, err
		}
	}
	return s.filter(ctx, r, cands, settings), nil
}

func candidatesFromCodes(codes []string) ([]candidate, error) {
	seen := make(map[string]struct{}, len(codes))
	var out []candidate
	for _, c := range codes {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if err := ValidateSymbol(c); err != nil {
			return nil, err
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, candidate{Symbol: c})
	}
	if len(out) == 0 {
		return nil, domain.ErrEmptySymbolList
	}
	return out, nil
}

// ValidateSymbol は4桁の普通株コードであることを確認します。
func ValidateSymbol(code string) error {
	if len(code) != 4 {
		return fmt.Errorf("%w: %q", domain.ErrInvalidSymbol, code)
	}
	for _, r := range code {
		if (r < '0' || r > '9') && (r < 'A' || r > 'Z') {
			return fmt.Errorf("%w: %q", domain.ErrInvalidSymbol, code)
		}
	}
	return nil
}

func (s *Scanner) filter(ctx context.Context, r *run, cands []candidate, settings entity.ScanSettings) []entity.AnalysisResult {
	defer s.observe(entity.StageFiltering, time.Now())

	outcomes := batch.Run(ctx, cands, batch.Options{Size: s.cfg.BatchSize, Limiter: s.throttle},
		func(ctx context.Context, c candidate) (entity.AnalysisResult, error) {
			prices, err := s.md.FetchHistory(ctx, c.Symbol, c.Market, s.cfg.ShallowDays)
			if err != nil {
				return entity.AnalysisResult{}, err
			}
			return s.engine.Evaluate(EvaluateInput{
				Symbol: c.Symbol,
				Name:   c.Name,
				Market: c.Market,
				Prices: prices,
				Depth:  entity.DepthShallow,
			}, settings)
		})

	results := collect(r, outcomes)
	scored := len(results)
	sortByScore(results)
	if s.cfg.FilterTopN > 0 && len(results) > s.cfg.FilterTopN {
		results = results[:s.cfg.FilterTopN]
	}
	r.log.Info("filter complete", "candidates", len(cands), "scored", scored, "kept", len(results))
	return results
}

// RunExpert は1銘柄を深い履歴と法人売買で評価します。既定設定のときだけキャッシュを読み書きします。
func (s *Scanner) RunExpert(ctx context.Context, code string, settings entity.ScanSettings) (entity.AnalysisResult, error) {
	if err := settings.Validate(); err != nil {
		return entity.AnalysisResult{}, err
	}
	code = strings.TrimSpace(code)
	if err := ValidateSymbol(code); err != nil {
		return entity.AnalysisResult{}, err
	}
	r := s.newRun("expert")
	for _, st := range []entity.Stage{entity.StageDiscovery, entity.StageFiltering, entity.StageAnalyzing} {
		if err := r.advance(st); err != nil {
			return entity.AnalysisResult{}, err
		}
	}
	defer s.observe(entity.StageAnalyzing, time.Now())

	res, err := s.expert(ctx, r, candidate{Symbol: code}, settings)
	if err != nil {
		r.abort(err)
		return entity.AnalysisResult{}, err
	}
	if err := r.advance(entity.StageComplete); err != nil {
		return entity.AnalysisResult{}, err
	}
	return res, nil
}

// Refresh は銘柄のキャッシュ済み評価を破棄し、次の RunExpert で再計算させます。
func (s *Scanner) Refresh(ctx context.Context, code string) error {
	code = strings.TrimSpace(code)
	if err := ValidateSymbol(code); err != nil {
		return err
	}
	if s.cache == nil {
		return nil
	}
	if err := s.cache.Invalidate(ctx, code); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrCacheUnavailable, err)
	}
	slog.Info("analysis cache invalidated", "symbol", code)
	return nil
}

func (s *Scanner) expert(ctx context.Context, r *run, c candidate, settings entity.ScanSettings) (entity.AnalysisResult, error) {
	cacheable := s.cache != nil && settings == s.cfg.Settings
	day := s.md.Today()

	if cacheable {
		hit, err := s.cache.Get(ctx, c.Symbol, day)
		switch {
		case err != nil:
			s.observeCache(CacheError)
			r.log.Warn("cache read failed, computing directly", "symbol", c.Symbol, "error", fmt.Errorf("%w: %w", domain.ErrCacheUnavailable, err))
		case hit != nil:
			s.observeCache(CacheHit)
			return *hit, nil
		default:
			s.observeCache(CacheMiss)
		}
	} else {
		s.observeCache(CacheSkip)
	}

	prices, err := s.md.FetchHistory(ctx, c.Symbol, c.Market, s.cfg.DeepDays)
	if err != nil {
		return entity.AnalysisResult{}, err
	}

	market := c.Market
	if market == mdentity.MarketUnknown && len(prices) > 0 {
		market = prices[len(prices)-1].Market
	}
	dates := recentDates(prices, s.cfg.FlowDays)
	flows, flowErr := s.md.FetchInstitutional(ctx, c.Symbol, market, dates)
	if flowErr != nil {
		// 法人売買は補助情報のため、失敗してもスコアは計算する
		r.log.Warn("institutional flow unavailable", "symbol", c.Symbol, "market", market, "error", flowErr)
		flows = nil
	}

	res, err := s.engine.Evaluate(EvaluateInput{
		Symbol:          c.Symbol,
		Name:            c.Name,
		Market:          c.Market,
		Prices:          prices,
		Flows:           flows,
		FlowDates:       dates,
		FlowUnavailable: flowErr != nil,
		Depth:           entity.DepthFull,
	}, settings)
	if err != nil {
		return entity.AnalysisResult{}, err
	}

	// 法人売買が欠けた結果は当日中に再取得できるようキャッシュしない
	if cacheable && !res.FlowUnavailable {
		if err := s.cache.Set(ctx, c.Symbol, day, res); err != nil {
			s.observeCache(CacheError)
			r.log.Warn("cache write failed", "symbol", c.Symbol, "error", fmt.Errorf("%w: %w", domain.ErrCacheUnavailable, err))
		}
	}
	return res, nil
}

// recentDates returns the last n distinct trading dates of an ascending price history.
func recentDates(prices []mdentity.Quote, n int) []time.Time {
	var out []time.Time
	for i := len(prices) - 1; i >= 0 && len(out) < n; i-- {
		d := prices[i].Date
		if len(out) > 0 && out[len(out)-1].Equal(d) {
			continue
		}
		out = append(out, d)
	}
	return out
}

// FullScanRequest は runFullScan の入力です。
type FullScanRequest struct {
	Market   string // "", "ALL", "TWSE", "TPEX"
	Sector   string // 空なら全業種
	Settings entity.ScanSettings
}

// ParseMarket は市場指定を検証します。空または ALL は全市場です。
func ParseMarket(m string) (mdentity.Market, error) {
	switch strings.ToUpper(strings.TrimSpace(m)) {
	case "", "ALL":
		return mdentity.MarketUnknown, nil
	case string(mdentity.MarketTWSE):
		return mdentity.MarketTWSE, nil
	case string(mdentity.MarketTPEx), "OTC":
		return mdentity.MarketTPEx, nil
	default:
		return "", fmt.Errorf("%w: %q", domain.ErrUnknownMarket, m)
	}
}

// RunFullScan は3段階すべてを実行し、結果とソース状況・段階別件数・銘柄別失敗をまとめて返します。
// 全市場データが取得できない場合と入力不正の場合のみエラーを返します。
func (s *Scanner) RunFullScan(ctx context.Context, req FullScanRequest) (entity.ScanReport, error) {
	if err := req.Settings.Validate(); err != nil {
		return entity.ScanReport{}, err
	}
	market, err := ParseMarket(req.Market)
	if err != nil {
		return entity.ScanReport{}, err
	}

	r := s.newRun("full")
	report := entity.ScanReport{
		RunID:     r.id,
		Market:    string(market),
		Sector:    req.Sector,
		Settings:  req.Settings,
		StartedAt: r.started,
		Results:   []entity.AnalysisResult{},
	}
	if report.Market == "" {
		report.Market = "ALL"
	}

	var filter mdusecase.SymbolFilter
	if sector := strings.TrimSpace(req.Sector); sector != "" {
		if s.sectors == nil {
			return report, fmt.Errorf("%w: %q", domain.ErrUnknownSector, sector)
		}
		codes, err := s.sectors.CodesInSector(ctx, sector)
		if err != nil {
			return report, err
		}
		if len(codes) == 0 {
			return report, fmt.Errorf("%w: %q", domain.ErrUnknownSector, sector)
		}
		filter = mdusecase.NewSymbolFilter(codes...)
	}

	if err := r.advance(entity.StageDiscovery); err != nil {
		return report, err
	}
	found, statuses, err := s.discover(ctx, r, filter, market)
	report.Sources = statuses
	if err != nil {
		r.abort(err)
		report.Stage = r.stage
		return report, err
	}
	report.Counts.Discovered = len(found)

	if err := r.advance(entity.StageFiltering); err != nil {
		return report, err
	}
	cands := make([]candidate, len(found))
	meta := make(map[string]candidate, len(found))
	for i, d := range found {
		cands[i] = d.candidate
		meta[d.Symbol] = d.candidate
	}
	filtered := s.filter(ctx, r, cands, req.Settings)
	report.Counts.Filtered = len(filtered)

	if err := r.advance(entity.StageAnalyzing); err != nil {
		return report, err
	}
	finalists := make([]candidate, len(filtered))
	for i, f := range filtered {
		finalists[i] = meta[f.Symbol]
	}
	report.Results = s.analyze(ctx, r, finalists, req.Settings)
	report.Counts.Analyzed = len(report.Results)

	if err := r.advance(entity.StageComplete); err != nil {
		return report, err
	}
	report.Stage = r.stage
	report.Failures = r.failures
	report.FinishedAt = time.Now()
	if s.rec != nil {
		s.rec.SetLastResultCount(len(report.Results))
	}
	r.log.Info("full scan complete",
		"discovered", report.Counts.Discovered,
		"filtered", report.Counts.Filtered,
		"analyzed", report.Counts.Analyzed,
		"failures", len(report.Failures),
		"elapsed", report.FinishedAt.Sub(report.StartedAt))
	return report, nil
}

func (s *Scanner) analyze(ctx context.Context, r *run, finalists []candidate, settings entity.ScanSettings) []entity.AnalysisResult {
	defer s.observe(entity.StageAnalyzing, time.Now())

	outcomes := batch.Run(ctx, finalists, batch.Options{Size: s.cfg.BatchSize, Limiter: s.throttle},
		func(ctx context.Context, c candidate) (entity.AnalysisResult, error) {
			return s.expert(ctx, r, c, settings)
		})

	results := collect(r, outcomes)
	sortByScore(results)
	return results
}

// collect records failed outcomes on the run and returns the successful results.
func collect(r *run, outcomes []batch.Outcome[candidate, entity.AnalysisResult]) []entity.AnalysisResult {
	for _, o := range outcomes {
		if o.Err != nil {
			r.fail(o.Item.Symbol, o.Err)
		}
	}
	ok := batch.Succeeded(outcomes)
	results := make([]entity.AnalysisResult, 0, len(ok))
	for _, o := range ok {
		results = append(results, o.Value)
	}
	return results
}

// sortByScore orders by score descending, then symbol ascending.
func sortByScore(results []entity.AnalysisResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Symbol < results[j].Symbol
	})
}

// IsInputError reports whether err stems from invalid caller input.
func IsInputError(err error) bool {
	return errors.Is(err, domain.ErrEmptySymbolList) ||
		errors.Is(err, domain.ErrInvalidSymbol) ||
		errors.Is(err, domain.ErrInvalidSettings) ||
		errors.Is(err, domain.ErrUnknownMarket) ||
		errors.Is(err, domain.ErrUnknownSector)
}
