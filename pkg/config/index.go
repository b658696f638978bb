package config

import "fmt"

// IndexBackend identifies the index store backend.
type IndexBackend string

const (
	// IndexBackendQdrant is the production backend.
	IndexBackendQdrant IndexBackend = "qdrant"

	// IndexBackendMemory is the embedded chromem-backed store for
	// local runs and tests.
	IndexBackendMemory IndexBackend = "memory"
)

// IndexConfig configures the vector+attribute index store.
type IndexConfig struct {
	// Backend type (qdrant, memory). Default: qdrant
	Backend IndexBackend `yaml:"backend,omitempty" json:"backend,omitempty"`

	// Host of the qdrant instance. Default: localhost
	Host string `yaml:"host,omitempty" json:"host,omitempty"`

	// Port of the qdrant gRPC endpoint. Default: 6334
	Port int `yaml:"port,omitempty" json:"port,omitempty"`

	// APIKey for the store. Supports ${VAR} expansion.
	APIKey string `yaml:"api_key,omitempty" json:"api_key,omitempty"`

	// EnableTLS toggles TLS on the connection. Default: false
	EnableTLS *bool `yaml:"enable_tls,omitempty" json:"enable_tls,omitempty"`

	// Collection holding drug documents. Default: drugs_idx
	Collection string `yaml:"collection,omitempty" json:"collection,omitempty"`

	// Quantization enables int8 scalar quantization on the drug
	// collection to bound memory. Default: true
	Quantization *bool `yaml:"quantization,omitempty" json:"quantization,omitempty"`
}

func (c *IndexConfig) SetDefaults() {
	if c.Backend == "" {
		c.Backend = IndexBackendQdrant
	}
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 6334
	}
	if c.EnableTLS == nil {
		c.EnableTLS = BoolPtr(false)
	}
	if c.Collection == "" {
		c.Collection = "drugs_idx"
	}
	if c.Quantization == nil {
		c.Quantization = BoolPtr(true)
	}
}

func (c *IndexConfig) Validate() error {
	switch c.Backend {
	case IndexBackendQdrant, IndexBackendMemory:
	default:
		return fmt.Errorf("invalid backend %q (valid: qdrant, memory)", c.Backend)
	}
	if c.Backend == IndexBackendQdrant && c.Host == "" {
		return fmt.Errorf("host is required for qdrant backend")
	}
	return nil
}
