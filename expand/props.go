package expand

import "sync"

// PropsVault resolves keys against process-level properties set by the
// host at startup or runtime.
type PropsVault struct {
	mu    sync.RWMutex
	props map[string]string
}

func NewPropsVault(props map[string]string) *PropsVault {
	vault := &PropsVault{
		props: make(map[string]string, len(props)),
	}
	for key, value := range props {
		vault.props[key] = value
	}

	return vault
}

func (*PropsVault) Name() string {
	return "props"
}

func (pv *PropsVault) Get(key string) (string, bool) {
	pv.mu.RLock()
	defer pv.mu.RUnlock()

	value, exists := pv.props[key]
	return value, exists
}

func (pv *PropsVault) Set(key, value string) {
	pv.mu.Lock()
	defer pv.mu.Unlock()

	pv.props[key] = value
}

func (pv *PropsVault) Delete(key string) {
	pv.mu.Lock()
	defer pv.mu.Unlock()

	delete(pv.props, key)
}
