package redisholder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/PluralKit/avatars/internal/config"
)

func Build(ctx context.Context, cfg *config.Config) (*Holder, error) {
	var cl redis.UniversalClient
	cl, err := newClusterClient(&cfg.Redis)
	if err != nil {
		clusterErr := err
		cl, err = newClient(&cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("create redis client: %w", err)
		}
		log.Warn().Err(clusterErr).Msg("redis: cluster client failed; using single-node client")
	}

	h := NewHolder(cl)

	go healthLoop(ctx, h, cfg)

	return h, nil
}

func healthLoop(ctx context.Context, h *Holder, cfg *config.Config) {
	interval := cfg.Redis.HealthCheckInterval * time.Second
	log.Info().Dur("interval", interval).Msg("redis: health loop started")

	ping := func() {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := h.Get().Ping(pingCtx).Err()
		cancel()

		if err == nil {
			return
		}
		log.Warn().Err(err).Msg("redis: ping failed; attempting reconnect")

		var newCl redis.UniversalClient
		var newErr error
		newCl, newErr = newClusterClient(&cfg.Redis)
		if newErr != nil {
			newCl, newErr = newClient(&cfg.Redis)
		}
		if newErr != nil {
			log.Error().Err(newErr).Msg("redis: reconnect failed")
			return
		}

		old := h.swap(newCl)
		if old != nil {
			_ = old.Close()
		}
		log.Info().Msg("redis: reconnected")
	}

	ping()

	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = h.Close()
			log.Info().AnErr("reason", ctx.Err()).Msg("redis: health loop stopped")
			return
		case <-t.C:
			ping()
		}
	}
}

func newClusterClient(cfg *config.RedisConfig) (*redis.ClusterClient, error) {
	if len(cfg.Nodes) < 2 {
		return nil, errors.New("not enough nodes for a cluster")
	}

	nodeAddrs := make([]string, 0, len(cfg.Nodes))
	for _, node := range cfg.Nodes {
		nodeAddrs = append(nodeAddrs, node.Addr())
	}

	cl := redis.NewClusterClient(&redis.ClusterOptions{
		RouteByLatency: true,
		Password:       cfg.Password,
		Addrs:          nodeAddrs,
		DialTimeout:    cfg.DialTimeout * time.Second,
		ReadTimeout:    cfg.ReadTimeout * time.Second,
		WriteTimeout:   cfg.WriteTimeout * time.Second,
		PoolSize:       cfg.PoolSize,
		PoolTimeout:    30 * time.Second,
	})

	if err := cl.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("error pinging redis cluster: %w", err)
	}

	return cl, nil
}

func newClient(cfg *config.RedisConfig) (*redis.Client, error) {
	stickyErr := errors.New("no nodes defined")

	for _, node := range cfg.Nodes {
		cl := redis.NewClient(&redis.Options{
			Addr:         node.Addr(),
			Password:     cfg.Password,
			DB:           cfg.DatabaseID,
			DialTimeout:  cfg.DialTimeout * time.Second,
			ReadTimeout:  cfg.ReadTimeout * time.Second,
			WriteTimeout: cfg.WriteTimeout * time.Second,
			PoolSize:     cfg.PoolSize,
		})

		if err := cl.Ping(context.Background()).Err(); err != nil {
			stickyErr = fmt.Errorf("error pinging redis server: %w", err)
			continue
		}

		return cl, nil
	}

	return nil, stickyErr
}
