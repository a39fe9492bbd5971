package etcd

import (
	"ai_mem/backend/go/internal/config"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestServiceKey(t *testing.T) {
	assert.Equal(t, "/services/memory_service/", ServicePrefix("memory_service"))
	assert.Equal(t, "/services/memory_service/10.0.0.1:8000", ServiceKey("/memory_service/", "10.0.0.1:8000"))
}

func TestNewClientConfig(t *testing.T) {
	cfg := NewClientConfig(&config.EtcdConfig{Endpoints: []string{"localhost:2379"}, Username: "root", Password: "pw"})
	assert.Equal(t, []string{"localhost:2379"}, cfg.Endpoints)
	assert.Equal(t, "root", cfg.Username)
	assert.Equal(t, 5*time.Second, cfg.DialTimeout)
}

func TestNewServiceDiscoveryRequiresEndpoints(t *testing.T) {
	_, err := NewServiceDiscovery(&config.EtcdConfig{})
	assert.Error(t, err)
}
