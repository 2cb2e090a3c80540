package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"slices"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sanity-io/litter"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"lww-set/pkg/config"
	"lww-set/pkg/crdt"
	"lww-set/pkg/gossip"
	"lww-set/pkg/storage"
	"lww-set/pkg/util/logging"
)

type replica struct {
	store  *storage.Store
	syncer *gossip.Syncer
}

type summary struct {
	Replicas int
	Rounds   int
	Members  map[string][]string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "lww-set",
		Short:         "Simulate LWW-set replicas converging through anti-entropy",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runSimulation,
	}
	cmd.Flags().String("config", "cmd/config.yaml", "path to config file")
	cmd.Flags().Uint64("seed", 1, "seed for the simulated workload")
	return cmd
}

func runSimulation(cmd *cobra.Command, _ []string) error {
	path, _ := cmd.Flags().GetString("config")
	seed, _ := cmd.Flags().GetUint64("seed")

	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	logging.InitDefault(cfg.Node.ID)

	reg := prometheus.NewRegistry()
	replicas := buildReplicas(cfg, reg)

	rng := rand.New(rand.NewPCG(seed, seed))
	if err := runWorkload(cfg.Simulation, replicas, rng); err != nil {
		slog.Error("workload failed", "err", err)
		return err
	}

	rounds, err := gossipUntilConverged(cmd.Context(), cfg.Simulation, replicas)
	if err != nil {
		slog.Error("replicas did not converge", "err", err)
		return err
	}

	members := make(map[string][]string)
	for _, key := range replicas[0].store.Keys() {
		members[key] = replicas[0].store.Members(key)
	}
	litter.Dump(summary{Replicas: len(replicas), Rounds: rounds, Members: members})
	return nil
}

func buildReplicas(cfg *config.Config, reg prometheus.Registerer) []replica {
	stores := make([]*storage.Store, cfg.Simulation.Replicas)
	peers := make([]gossip.Peer, cfg.Simulation.Replicas)
	for i := range stores {
		id := uuid.NewSHA1(uuid.NameSpaceOID, fmt.Appendf(nil, "%s/%d", cfg.Node.ID, i))
		engine := storage.NewEngine(storage.EngineConfig{
			ReplicaID:  id,
			Shards:     cfg.Replication.Shards,
			SetOptions: []crdt.Option{crdt.WithDeduplication(cfg.Replication.DeduplicateEnabled())},
		})
		stores[i] = storage.NewStore(id, engine,
			storage.WithMetrics(storage.NewMetrics(reg, id.String())),
			storage.WithLogger(slog.Default().With("replica", id.String())),
		)
		peers[i] = stores[i]
	}

	replicas := make([]replica, len(stores))
	for i, s := range stores {
		replicas[i] = replica{
			store: s,
			syncer: gossip.New(s, peers, cfg.Gossip,
				gossip.WithMetrics(gossip.NewMetrics(reg, s.ID())),
				gossip.WithLogger(slog.Default().With("replica", s.ID())),
			),
		}
	}
	return replicas
}

// runWorkload раскидывает случайные add/remove по репликам без синхронизации.
func runWorkload(sim config.SimulationConfig, replicas []replica, rng *rand.Rand) error {
	for i := 0; i < sim.Operations; i++ {
		r := replicas[rng.IntN(len(replicas))]
		key := sim.Keys[rng.IntN(len(sim.Keys))]
		value := crdt.String(sim.Values[rng.IntN(len(sim.Values))])

		var err error
		if rng.IntN(10) < 7 {
			err = r.store.Add(key, value)
		} else {
			err = r.store.Remove(key, value)
		}
		if err != nil {
			return err
		}
	}

	// локальные операции видны только после слияния с собой
	for _, r := range replicas {
		for _, key := range r.store.Keys() {
			if err := r.store.Materialize(key); err != nil {
				return err
			}
		}
	}
	return nil
}

func gossipUntilConverged(ctx context.Context, sim config.SimulationConfig, replicas []replica) (int, error) {
	for round := 1; round <= sim.MaxRounds; round++ {
		g, gctx := errgroup.WithContext(ctx)
		for _, r := range replicas {
			g.Go(func() error {
				_, err := r.syncer.Round(gctx)
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return round, err
		}

		if converged(replicas) {
			slog.Info("replicas converged", "rounds", round)
			return round, nil
		}
	}
	return sim.MaxRounds, fmt.Errorf("still diverged after %d rounds", sim.MaxRounds)
}

func converged(replicas []replica) bool {
	ref := replicas[0].store
	keys := ref.Keys()
	for _, r := range replicas[1:] {
		if !slices.Equal(keys, r.store.Keys()) {
			return false
		}
		for _, key := range keys {
			if !slices.Equal(ref.Members(key), r.store.Members(key)) {
				return false
			}
		}
	}
	return true
}
