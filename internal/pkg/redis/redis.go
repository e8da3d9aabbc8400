package redis

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/uswegem/miracore/configs"
	"github.com/uswegem/miracore/internal/pkg/logger"
)

type RedisClient struct {
	Client *redis.Client
}

func ConnectToRedis(ctx context.Context, cfg configs.RedisConfig) (*RedisClient, error) {

	logger.Info(ctx, "Connecting to Redis %s db=%d tls=%t", cfg.Addr, cfg.DB, cfg.EnableTLS)

	options := &redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}

	if cfg.EnableTLS {
		tlsConfig, err := buildTLSConfig(cfg)
		if err != nil {
			logger.Error(ctx, "Failed to build TLS config %s", err)
			return nil, fmt.Errorf("failed to build TLS config: %w", err)
		}
		options.TLSConfig = tlsConfig
	}

	client := redis.NewClient(options)

	if err := client.Ping(ctx).Err(); err != nil {
		logger.Error(ctx, "Redis ping failed", err)
		return nil, err
	}

	logger.Info(ctx, "Successfully connected to Redis")

	return &RedisClient{Client: client}, nil
}

func buildTLSConfig(cfg configs.RedisConfig) (*tls.Config, error) {
	tlsConfig := &tls.Config{
		MinVersion: tls.VersionTLS12,
	}

	if cfg.CertContent == "" {
		return tlsConfig, nil
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM([]byte(cfg.CertContent)) {
		return nil, fmt.Errorf("no usable certificates in cert content")
	}
	tlsConfig.RootCAs = pool
	return tlsConfig, nil
}
