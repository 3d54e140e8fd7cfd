package config

// This file defines redis client constructors.  One client serves the fast
// availability index; a separate set of clients, ideally one per
// independent redis instance, serves as lock-store replicas for the
// distributed lock manager.  If the index connection fails during startup
// the constructor returns nil and callers degrade to the in-memory index.

import (
	"context"
	"crypto/tls"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient instantiates the fast-index redis client from environment
// variables:
//
//	REDIS_HOST and REDIS_PORT – hostname and port of the redis server
//	REDIS_ADDR – host:port shorthand (REDIS_HOST/PORT take precedence)
//	REDIS_PASSWORD – optional password
//	REDIS_DB – database number (default 0)
//	REDIS_TLS – enable TLS when "true" or "1"
//
// The returned client may be nil if a connection cannot be established.
func NewRedisClient() *redis.Client {
	host := os.Getenv("REDIS_HOST")
	port := os.Getenv("REDIS_PORT")
	addr := os.Getenv("REDIS_ADDR")
	if host != "" && port != "" {
		addr = host + ":" + port
	}
	if addr == "" {
		addr = "localhost:6379"
	}
	client := newClient(addr)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil
	}
	return client
}

// NewLockClients builds one redis client per lock-store replica from
// REDIS_LOCK_ADDRS, a comma-separated list of host:port addresses.  Each
// address should point at an independent redis instance; the quorum
// guarantee is only as strong as the independence of the replicas.  When
// the variable is unset, the returned slice is empty and the caller should
// fall back to in-process lock stores.
func NewLockClients() []*redis.Client {
	raw := os.Getenv("REDIS_LOCK_ADDRS")
	if raw == "" {
		return nil
	}
	var clients []*redis.Client
	for _, addr := range strings.Split(raw, ",") {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			continue
		}
		clients = append(clients, newClient(addr))
	}
	return clients
}

func newClient(addr string) *redis.Client {
	pwd := os.Getenv("REDIS_PASSWORD")
	dbNum := 0
	if dbStr := os.Getenv("REDIS_DB"); dbStr != "" {
		if n, err := strconv.Atoi(dbStr); err == nil {
			dbNum = n
		}
	}
	var tlsConf *tls.Config
	if tlsEnv := os.Getenv("REDIS_TLS"); strings.EqualFold(tlsEnv, "true") || tlsEnv == "1" {
		tlsConf = &tls.Config{InsecureSkipVerify: true}
	}
	return redis.NewClient(&redis.Options{
		Addr:      addr,
		Password:  pwd,
		DB:        dbNum,
		TLSConfig: tlsConf,
	})
}
