package stream

import (
	"fmt"
	"sync"
)

// PortManager hands out local ports for chromedriver services.
type PortManager struct {
	basePort  int
	portRange int

	mu    sync.Mutex
	inUse map[int]bool
}

var (
	defaultPorts     *PortManager
	defaultPortsOnce sync.Once
)

// DefaultPorts returns the process-wide port manager for 4444-4459.
func DefaultPorts() *PortManager {
	defaultPortsOnce.Do(func() {
		defaultPorts = NewPortManager(4444, 16)
	})
	return defaultPorts
}

func NewPortManager(basePort, portRange int) *PortManager {
	return &PortManager{
		basePort:  basePort,
		portRange: portRange,
		inUse:     make(map[int]bool, portRange),
	}
}

// Acquire reserves the lowest free port.
func (pm *PortManager) Acquire() (int, error) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	for i := 0; i < pm.portRange; i++ {
		port := pm.basePort + i
		if !pm.inUse[port] {
			pm.inUse[port] = true
			return port, nil
		}
	}
	return 0, fmt.Errorf("no available ports in range %d-%d", pm.basePort, pm.basePort+pm.portRange-1)
}

func (pm *PortManager) Release(port int) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	delete(pm.inUse, port)
}
