package node

import (
	"strings"
	"time"

	"github.com/danmuck/connprov/internal/connprov"
	"github.com/danmuck/connprov/internal/workers"
)

// ProviderStatus is one provider's view. Port is the bare port number, empty
// for local IPC.
type ProviderStatus struct {
	Name       string            `json:"name"`
	Type       string            `json:"type"`
	Mode       string            `json:"mode"`
	State      string            `json:"state"`
	Port       string            `json:"port,omitempty"`
	Secure     bool              `json:"secure"`
	LogicalID  string            `json:"logical_id"`
	PhysicalID string            `json:"physical_id"`
	Options    map[string]string `json:"options"`
}

type Status struct {
	Name      string           `json:"name"`
	Ready     bool             `json:"ready"`
	Uptime    string           `json:"uptime"`
	Served    uint64           `json:"served"`
	Failed    uint64           `json:"failed"`
	Workers   workers.Stats    `json:"workers"`
	Providers []ProviderStatus `json:"providers"`
}

// Status snapshots the node and each provider in configuration order.
func (n *Node) Status() Status {
	st := Status{
		Name:      n.name,
		Ready:     n.Ready(),
		Uptime:    time.Since(n.appeared).Truncate(time.Second).String(),
		Served:    n.served.Load(),
		Failed:    n.failed.Load(),
		Workers:   n.pool.Stats(),
		Providers: make([]ProviderStatus, 0, len(n.members)),
	}
	for _, m := range n.members {
		st.Providers = append(st.Providers, m.status())
	}
	return st
}

// ProviderStatus returns the snapshot of one named provider.
func (n *Node) ProviderStatus(name string) (ProviderStatus, bool) {
	m, ok := n.byName[name]
	if !ok {
		return ProviderStatus{}, false
	}
	return m.status(), true
}

func (m *member) status() ProviderStatus {
	p := m.provider
	logical, physical := p.MyNetworkIDs()
	port, _ := p.Property(connprov.PropertyPort)
	port = strings.TrimPrefix(port, "@")
	secure, _ := p.Property(connprov.PropertyIsSecure)
	opts := make(map[string]string)
	for _, o := range p.Options() {
		opts[o.Name] = o.Value
	}
	return ProviderStatus{
		Name:       m.name,
		Type:       m.kind,
		Mode:       p.Mode().String(),
		State:      p.State().String(),
		Port:       port,
		Secure:     secure == "1",
		LogicalID:  logical,
		PhysicalID: physical,
		Options:    opts,
	}
}
