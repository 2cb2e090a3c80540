package gossip

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"lww-set/pkg/config"
	"lww-set/pkg/storage"
)

// Peer — реплика, чьё состояние можно забрать.
type Peer interface {
	ID() string
	Export() (storage.Version, map[string][]byte, error)
}

// Target — реплика, которая поглощает чужое состояние.
type Target interface {
	ID() string
	Import(from storage.Version, deltas map[string][]byte) (int, error)
}

type Option func(*Syncer)

func WithRand(rng *rand.Rand) Option {
	return func(s *Syncer) {
		s.rng = rng
	}
}

func WithMetrics(m *Metrics) Option {
	return func(s *Syncer) {
		s.metrics = m
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Syncer) {
		s.logger = logger
	}
}

// Syncer периодически забирает состояние у случайных fanout пиров
// (pull anti-entropy). Сеть не участвует: пиры передаются в процессе.
type Syncer struct {
	self     Target
	peers    []Peer
	fanout   int
	interval time.Duration

	rngMu sync.Mutex
	rng   *rand.Rand

	metrics *Metrics
	logger  *slog.Logger
}

type RoundResult struct {
	Peers    []string
	Ingested int
}

func New(self Target, peers []Peer, cfg config.GossipConfig, opts ...Option) *Syncer {
	s := &Syncer{
		self:     self,
		fanout:   cfg.Fanout,
		interval: cfg.Interval(),
	}
	for _, p := range peers {
		if p.ID() != self.ID() {
			s.peers = append(s.peers, p)
		}
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.rng == nil {
		s.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if s.metrics == nil {
		s.metrics = NewMetrics(nil, self.ID())
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

func (s *Syncer) pickPeers() []Peer {
	n := min(s.fanout, len(s.peers))

	s.rngMu.Lock()
	perm := s.rng.Perm(len(s.peers))
	s.rngMu.Unlock()

	picked := make([]Peer, 0, n)
	for _, i := range perm[:n] {
		picked = append(picked, s.peers[i])
	}
	return picked
}

// Round pulls state from up to fanout random peers concurrently.
func (s *Syncer) Round(ctx context.Context) (RoundResult, error) {
	start := time.Now()
	s.metrics.rounds.Inc()
	defer func() {
		s.metrics.roundLatency.Observe(time.Since(start).Seconds())
	}()

	picked := s.pickPeers()
	result := RoundResult{Peers: make([]string, 0, len(picked))}
	var ingested atomic.Int64

	g, ctx := errgroup.WithContext(ctx)
	for _, peer := range picked {
		result.Peers = append(result.Peers, peer.ID())
		g.Go(func() error {
			n, err := s.pull(ctx, peer)
			if err != nil {
				s.metrics.pulls.WithLabelValues("failed").Inc()
				return err
			}
			s.metrics.pulls.WithLabelValues("ok").Inc()
			ingested.Add(int64(n))
			return nil
		})
	}

	err := g.Wait()
	result.Ingested = int(ingested.Load())
	s.logger.Debug("gossip round", "peers", result.Peers, "ingested", result.Ingested, "err", err)
	return result, err
}

func (s *Syncer) pull(ctx context.Context, peer Peer) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	version, deltas, err := peer.Export()
	if err != nil {
		return 0, fmt.Errorf("export from %s: %w", peer.ID(), err)
	}

	n, err := s.self.Import(version, deltas)
	if err != nil {
		return n, fmt.Errorf("import from %s: %w", peer.ID(), err)
	}
	return n, nil
}

// Run запускает раунды каждые interval до отмены контекста.
func (s *Syncer) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.Round(ctx); err != nil && ctx.Err() == nil {
				s.logger.Warn("gossip round failed", "err", err)
			}
		}
	}
}
