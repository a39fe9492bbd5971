package postgres

import (
	"ai_mem/backend/go/internal/config"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
)

var (
	poolInstance *pgxpool.Pool
	once         sync.Once
	initErr      error
)

// NewPoolConfig 根据配置构建 pgxpool 配置，并在每个新连接上注册 pgvector 类型。
//
// 参数:
//
//	cfg: PostgreSQL 配置。
//
// 返回值:
//
//	*pgxpool.Config: 可直接用于 pgxpool.NewWithConfig 的配置。
//	error: 如果连接字符串无法解析，则返回错误。
func NewPoolConfig(cfg *config.PostgresConfig) (*pgxpool.Config, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.ConnString())
	if err != nil {
		return nil, fmt.Errorf("无法解析 PostgreSQL 连接配置: %w", err)
	}
	poolCfg.MinConns = int32(cfg.MinConns)
	poolCfg.MaxConns = int32(cfg.MaxConns)
	if cfg.ConnMaxLifetime > 0 {
		poolCfg.MaxConnLifetime = time.Duration(cfg.ConnMaxLifetime) * time.Second
	}
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}
	return poolCfg, nil
}

// GetPool 使用单例模式初始化并返回一个 pgx 连接池。
// 连接池在整个应用生命周期中只被创建一次，后续调用直接返回已存在的实例。
//
// 注意: 注册 pgvector 类型需要数据库中已存在 vector 扩展，
// 首次部署时应先通过 EnsureExtension 创建扩展。
func GetPool(ctx context.Context, cfg *config.PostgresConfig) (*pgxpool.Pool, error) {
	once.Do(func() {
		poolCfg, err := NewPoolConfig(cfg)
		if err != nil {
			initErr = err
			return
		}
		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			initErr = fmt.Errorf("无法创建 PostgreSQL 连接池: %w", err)
			return
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			initErr = fmt.Errorf("无法连接到 PostgreSQL: %w", err)
			return
		}
		poolInstance = pool
	})
	return poolInstance, initErr
}

// EnsureExtension 使用一个不注册 pgvector 类型的临时连接创建 vector 扩展。
func EnsureExtension(ctx context.Context, cfg *config.PostgresConfig) error {
	conn, err := pgx.Connect(ctx, cfg.ConnString())
	if err != nil {
		return fmt.Errorf("无法连接到 PostgreSQL: %w", err)
	}
	defer conn.Close(ctx)

	if _, err := conn.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("创建 vector 扩展失败: %w", err)
	}
	return nil
}

// Close 安全地关闭单例连接池。
func Close() {
	if poolInstance != nil {
		poolInstance.Close()
	}
}

// HealthCheck 检查连接池的健康状况。
func HealthCheck(ctx context.Context) error {
	if poolInstance == nil {
		return fmt.Errorf("PostgreSQL 连接池未初始化")
	}
	return poolInstance.Ping(ctx)
}
