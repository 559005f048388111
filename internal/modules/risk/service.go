package risk

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/papertrader/internal/domain"
	"github.com/aristath/papertrader/pkg/formulas"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// DefaultRiskFreeRate is used when the rate provider fails
const DefaultRiskFreeRate = 0.04

// DefaultBenchmarkSymbol is the market proxy for beta
const DefaultBenchmarkSymbol = "SPY"

// SnapshotLister reads a user's snapshots since an instant, oldest first
type SnapshotLister interface {
	ListSince(ctx context.Context, userID string, since time.Time) ([]domain.Snapshot, error)
}

// BenchmarkSource supplies the benchmark bars
type BenchmarkSource interface {
	GetBenchmarkSeries(ctx context.Context, symbol string, start, end time.Time, granularity domain.Granularity) ([]domain.Bar, error)
}

// Report is the response of GetRiskMetrics
type Report struct {
	Metrics
	AlignedObservations int        `json:"aligned_observations"` // snapshots matched to a benchmark bar
	RiskFreeRate        float64    `json:"risk_free_rate"`
	Benchmark           string     `json:"benchmark"`
	From                *time.Time `json:"from,omitempty"`
	To                  *time.Time `json:"to,omitempty"`
}

// Service orchestrates the inputs of ComputeRiskMetrics
type Service struct {
	snapshots SnapshotLister
	benchmark BenchmarkSource
	rates     domain.RiskFreeRateProvider
	symbol    string
	log       zerolog.Logger
}

// NewService creates a new risk service
func NewService(
	snapshots SnapshotLister,
	benchmark BenchmarkSource,
	rates domain.RiskFreeRateProvider,
	benchmarkSymbol string,
	log zerolog.Logger,
) *Service {
	if benchmarkSymbol == "" {
		benchmarkSymbol = DefaultBenchmarkSymbol
	}
	return &Service{
		snapshots: snapshots,
		benchmark: benchmark,
		rates:     rates,
		symbol:    benchmarkSymbol,
		log:       log.With().Str("service", "risk").Logger(),
	}
}

// GetRiskMetrics computes the user's metrics over the full snapshot history
func (s *Service) GetRiskMetrics(ctx context.Context, userID string) (*Report, error) {
	snaps, err := s.snapshots.ListSince(ctx, userID, time.Time{})
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshots: %w", err)
	}

	report := &Report{Benchmark: s.symbol}
	if len(snaps) < 2 {
		report.Metrics = ComputeRiskMetrics(nil, nil, 0)
		report.Observations = len(snaps)
		return report, nil
	}

	values := make([]float64, len(snaps))
	for i, snap := range snaps {
		values[i] = snap.EOHValue.InexactFloat64()
	}

	from := snaps[0].Timestamp
	to := snaps[len(snaps)-1].Timestamp
	report.From = &from
	report.To = &to

	// Both lookups degrade instead of failing, so the group never returns an error
	var bars []domain.Bar
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// One bar earlier so the first snapshot can use the previous close
		series, err := s.benchmark.GetBenchmarkSeries(gctx, s.symbol, from.Add(-time.Hour), to, domain.GranularityHour)
		if err != nil {
			s.log.Warn().Err(err).Str("symbol", s.symbol).Msg("Benchmark unavailable, beta set to 0")
			return nil
		}
		bars = series
		return nil
	})
	g.Go(func() error {
		report.RiskFreeRate = s.riskFreeRate(gctx)
		return nil
	})
	_ = g.Wait()

	report.Metrics = ComputeRiskMetrics(values, nil, report.RiskFreeRate)

	portfolio, benchmark := AlignBenchmark(snaps, bars)
	if len(benchmark) >= 2 {
		report.Beta = formulas.Beta(formulas.LogReturns(portfolio), formulas.LogReturns(benchmark))
	}
	report.AlignedObservations = len(benchmark)
	return report, nil
}

// AlignBenchmark pairs each snapshot with the benchmark price at the same instant:
// the open of the bar starting at the snapshot hour, else the close of the bar before it.
// Snapshots without a matching bar are dropped from both series.
func AlignBenchmark(snaps []domain.Snapshot, bars []domain.Bar) (portfolio, benchmark []float64) {
	if len(snaps) == 0 || len(bars) == 0 {
		return nil, nil
	}

	opens := make(map[int64]float64, len(bars))
	closes := make(map[int64]float64, len(bars))
	for _, b := range bars {
		start := b.Timestamp.Unix()
		if b.Open > 0 {
			opens[start] = b.Open
		}
		if b.Close > 0 {
			closes[b.Timestamp.Add(time.Hour).Unix()] = b.Close
		}
	}

	for _, snap := range snaps {
		ts := snap.Timestamp.Unix()
		price, ok := opens[ts]
		if !ok {
			price, ok = closes[ts]
		}
		if !ok {
			continue
		}
		portfolio = append(portfolio, snap.EOHValue.InexactFloat64())
		benchmark = append(benchmark, price)
	}
	return portfolio, benchmark
}

func (s *Service) riskFreeRate(ctx context.Context) float64 {
	if s.rates == nil {
		return DefaultRiskFreeRate
	}
	rate, err := s.rates.RiskFreeRate(ctx)
	if err != nil {
		s.log.Warn().Err(err).Float64("fallback", DefaultRiskFreeRate).Msg("Risk-free rate unavailable, using default")
		return DefaultRiskFreeRate
	}
	return rate
}
