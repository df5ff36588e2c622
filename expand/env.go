package expand

import "os"

// EnvVault resolves keys against the process environment.
type EnvVault struct{}

func NewEnvVault() *EnvVault {
	return &EnvVault{}
}

func (*EnvVault) Name() string {
	return "env"
}

func (*EnvVault) Get(key string) (string, bool) {
	return os.LookupEnv(key)
}
