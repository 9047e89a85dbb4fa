package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"docbridge/internal/dbpool"
	"docbridge/internal/metrics"
)

// Service periodically tops connection pools back up to their minimum warm
// size and publishes their stats.
type Service struct {
	cron    *cron.Cron
	pools   []dbpool.Pool
	metrics *metrics.Pool
	log     zerolog.Logger
	timeout time.Duration
}

func NewService(spec string, pools []dbpool.Pool, m *metrics.Pool, log zerolog.Logger) (*Service, error) {
	if m == nil {
		m = metrics.NewPool(nil)
	}
	s := &Service{
		cron:    cron.New(),
		pools:   pools,
		metrics: m,
		log:     log,
		timeout: 10 * time.Second,
	}
	if _, err := s.cron.AddFunc(spec, func() { s.RunOnce(context.Background()) }); err != nil {
		return nil, err
	}
	return s, nil
}

// Start runs the schedule until ctx is done.
func (s *Service) Start(ctx context.Context) {
	s.RunOnce(ctx)
	s.cron.Start()
	s.log.Info().Int("pools", len(s.pools)).Msg("pool maintenance started")

	<-ctx.Done()
	<-s.cron.Stop().Done()
	s.log.Info().Msg("pool maintenance stopped")
}

func (s *Service) RunOnce(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	for _, p := range s.pools {
		if p.State() != dbpool.StateReady {
			continue
		}
		before := p.Stats()
		if err := p.Warm(ctx); err != nil {
			s.log.Error().Err(err).Str("backend", before.Backend).Msg("failed to warm connection pool")
		}
		st := p.Stats()
		if st.Open > before.Open {
			s.metrics.Warmups.WithLabelValues(st.Backend).Inc()
			s.log.Info().Str("backend", st.Backend).Int("open", st.Open).Msg("connection pool rewarmed")
		}
		s.record(st)
	}
}

func (s *Service) record(st dbpool.Stats) {
	s.metrics.Open.WithLabelValues(st.Backend).Set(float64(st.Open))
	s.metrics.InUse.WithLabelValues(st.Backend).Set(float64(st.InUse))
	s.metrics.Idle.WithLabelValues(st.Backend).Set(float64(st.Idle))
	s.metrics.Waits.WithLabelValues(st.Backend).Set(float64(st.WaitCount))
}

// ValidateCronExpression validates a cron expression
func ValidateCronExpression(expr string) error {
	_, err := cron.ParseStandard(expr)
	return err
}
