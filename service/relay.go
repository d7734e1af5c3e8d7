package service

import (
	"sync"

	"github.com/pkg/errors"
)

// Relay is the process-wide LOB session service. Provided references
// register here on first touch and resolve back to paths afterwards. The
// singleton's lifecycle belongs to the boot sequence: InitRelay before the
// first statement, TeardownRelay at shutdown.
type Relay struct {
	mu    sync.RWMutex
	seq   uint64
	paths map[uint64]string
}

var (
	relayMu sync.Mutex
	relay   *Relay
)

// InitRelay installs the singleton. Calling it twice is an error the boot
// sequence must not make.
func InitRelay() error {
	relayMu.Lock()
	defer relayMu.Unlock()
	if relay != nil {
		return errors.New("LOB relay is already initialized")
	}
	relay = &Relay{paths: make(map[uint64]string)}
	return nil
}

// TeardownRelay drops the singleton and every registration.
func TeardownRelay() {
	relayMu.Lock()
	defer relayMu.Unlock()
	relay = nil
}

// GetRelay returns the singleton, nil before InitRelay.
func GetRelay() *Relay {
	relayMu.Lock()
	defer relayMu.Unlock()
	return relay
}

// Register stores a caller-side file path and returns its object id.
func (r *Relay) Register(path string) (uint64, error) {
	if path == "" {
		return 0, errors.New("empty LOB path")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	r.paths[r.seq] = path
	return r.seq, nil
}

// PathByID resolves a registered object id.
func (r *Relay) PathByID(id uint64) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	path, ok := r.paths[id]
	if !ok {
		return "", errors.Errorf("LOB id %d is not registered", id)
	}
	return path, nil
}
