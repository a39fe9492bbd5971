package milvus

import (
	"ai_mem/backend/go/internal/config"
	"context"
	"fmt"
	"sync"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

var (
	instance *MilvusClient
	once     sync.Once
	initErr  error
)

// MilvusClient 包含了 Milvus 客户端实例和相关配置。
type MilvusClient struct {
	Client client.Client        // Milvus 客户端实例。
	Config *config.MilvusConfig // Milvus 配置。
}

// MemorySchema 描述记忆集合的字段名。
type MemorySchema struct {
	IDField      string // 主键字段 (VarChar)
	VectorField  string // 向量字段 (FloatVector)
	PayloadField string // 负载字段 (JSON)
}

// GetClient 使用单例模式创建并返回一个 Milvus 客户端实例。
func GetClient(ctx context.Context, cfg *config.MilvusConfig) (*MilvusClient, error) {
	once.Do(func() {
		c, err := client.NewClient(ctx, client.Config{Address: cfg.Address})
		if err != nil {
			initErr = fmt.Errorf("无法连接到 Milvus: %w", err)
			return
		}
		instance = &MilvusClient{Client: c, Config: cfg}
	})
	return instance, initErr
}

// Close 安全地关闭与 Milvus 的连接。
func (c *MilvusClient) Close() error {
	if c.Client == nil {
		return nil
	}
	return c.Client.Close()
}

// HealthCheck 检查 Milvus 连接的健康状况。
func (c *MilvusClient) HealthCheck(ctx context.Context) error {
	if c.Client == nil {
		return fmt.Errorf("Milvus client is nil")
	}
	if _, err := c.Client.ListCollections(ctx); err != nil {
		return fmt.Errorf("Milvus health check failed: %w", err)
	}
	return nil
}

// EnsureCollection 确保记忆集合存在：不存在时按 schema 创建集合与向量索引，然后加载集合。
//
// 参数:
//
//	ctx: 上下文。
//	name: 集合名称。
//	dim: 向量维度。
//	schema: 字段名配置。
//
// 返回值:
//
//	error: 检查、创建、建索引或加载失败时返回错误。
func (c *MilvusClient) EnsureCollection(ctx context.Context, name string, dim int, schema MemorySchema) error {
	exists, err := c.Client.HasCollection(ctx, name)
	if err != nil {
		return fmt.Errorf("检查集合是否存在时出错: %w", err)
	}
	if !exists {
		coll := NewMemoryCollectionSchema(name, dim, schema)
		if err := c.Client.CreateCollection(ctx, coll, entity.DefaultShardNumber); err != nil {
			return fmt.Errorf("创建集合失败: %w", err)
		}
		idx, err := BuildIndex(c.Config.Index)
		if err != nil {
			return err
		}
		if err := c.Client.CreateIndex(ctx, name, schema.VectorField, idx, false); err != nil {
			return fmt.Errorf("为字段 '%s' 创建索引失败: %w", schema.VectorField, err)
		}
	}

	if err := c.Client.LoadCollection(ctx, name, false); err != nil {
		return fmt.Errorf("加载 Milvus 集合 '%s' 失败: %w", name, err)
	}
	return nil
}

// NewMemoryCollectionSchema 构建记忆集合的 schema：VarChar 主键、浮点向量和 JSON 负载。
func NewMemoryCollectionSchema(name string, dim int, schema MemorySchema) *entity.Schema {
	return entity.NewSchema().
		WithName(name).
		WithDescription("extracted user memories").
		WithField(entity.NewField().WithName(schema.IDField).WithDataType(entity.FieldTypeVarChar).
			WithMaxLength(36).WithIsPrimaryKey(true)).
		WithField(entity.NewField().WithName(schema.VectorField).WithDataType(entity.FieldTypeFloatVector).
			WithDim(int64(dim))).
		WithField(entity.NewField().WithName(schema.PayloadField).WithDataType(entity.FieldTypeJSON))
}

// BuildIndex 是一个辅助函数，用于从配置构建索引实体。未配置索引类型时使用 AUTOINDEX。
func BuildIndex(indexCfg config.IndexConfig) (entity.Index, error) {
	metricType := entity.MetricType(indexCfg.MetricType)
	if indexCfg.MetricType == "" {
		metricType = entity.COSINE
	}
	param := func(key string, def int) int {
		if v, ok := indexCfg.Params[key]; ok {
			return v
		}
		return def
	}

	switch indexCfg.IndexType {
	case "", "AUTOINDEX":
		return entity.NewIndexAUTOINDEX(metricType)
	case "IVF_FLAT":
		return entity.NewIndexIvfFlat(metricType, param("nlist", 128))
	case "HNSW":
		return entity.NewIndexHNSW(metricType, param("M", 8), param("efConstruction", 96))
	case "IVF_SQ8":
		return entity.NewIndexIvfSQ8(metricType, param("nlist", 128))
	default:
		return nil, fmt.Errorf("不支持的索引类型: %s", indexCfg.IndexType)
	}
}
