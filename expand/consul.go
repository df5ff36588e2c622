package expand

import (
	"strings"

	"github.com/hashicorp/consul/api"
)

// ConsulVault resolves keys against a Consul KV prefix. A failed lookup
// (network, ACL) reports absent rather than failing expansion.
type ConsulVault struct {
	kv     *api.KV
	prefix string
}

type ConsulVaultConfig struct {
	// Address of the Consul server (default: "127.0.0.1:8500")
	Address string

	// Token for Consul ACL authentication (optional)
	Token string

	// Prefix prepended to every key (default: "")
	Prefix string
}

func NewConsulVault(config *ConsulVaultConfig) (*ConsulVault, error) {
	if config == nil {
		config = &ConsulVaultConfig{}
	}

	clientConfig := api.DefaultConfig()
	if config.Address != "" {
		clientConfig.Address = config.Address
	}
	if config.Token != "" {
		clientConfig.Token = config.Token
	}

	client, err := api.NewClient(clientConfig)
	if err != nil {
		return nil, err
	}

	return &ConsulVault{
		kv:     client.KV(),
		prefix: strings.TrimSuffix(config.Prefix, "/"),
	}, nil
}

func (*ConsulVault) Name() string {
	return "consul"
}

func (cv *ConsulVault) Get(key string) (string, bool) {
	full := key
	if cv.prefix != "" {
		full = cv.prefix + "/" + strings.TrimPrefix(key, "/")
	}

	pair, _, err := cv.kv.Get(full, nil)
	if err != nil || pair == nil {
		return "", false
	}

	return string(pair.Value), true
}
