package gateway

import (
	"sort"
	"sync"
	"time"

	"github.com/harun/erptools/internal/observability"
)

// idleAfter marks a websocket client idle in ClientInfo
const idleAfter = 5 * time.Minute

// ClientRegistry is the set of open websocket connections. It keeps the
// erptools_ws_connections gauge in step with its size.
type ClientRegistry struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

// NewClientRegistry creates an empty registry
func NewClientRegistry() *ClientRegistry {
	return &ClientRegistry{clients: make(map[string]*Client)}
}

// Add registers a freshly upgraded connection
func (r *ClientRegistry) Add(client *Client) {
	r.mu.Lock()
	r.clients[client.ID] = client
	size := len(r.clients)
	r.mu.Unlock()

	observability.SetWSConnections(size)
}

// Remove forgets a connection; unknown IDs are ignored
func (r *ClientRegistry) Remove(clientID string) {
	r.mu.Lock()
	delete(r.clients, clientID)
	size := len(r.clients)
	r.mu.Unlock()

	observability.SetWSConnections(size)
}

// Get looks up a connection by client ID
func (r *ClientRegistry) Get(clientID string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	client, ok := r.clients[clientID]
	return client, ok
}

// All returns every connection, authenticated or not
func (r *ClientRegistry) All() []*Client {
	return r.collect(func(*Client) bool { return true })
}

// Authenticated returns the connections that may receive events and tool calls
func (r *ClientRegistry) Authenticated() []*Client {
	return r.collect((*Client).IsAuthenticated)
}

func (r *ClientRegistry) collect(keep func(*Client) bool) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Client, 0, len(r.clients))
	for _, client := range r.clients {
		if keep(client) {
			out = append(out, client)
		}
	}
	return out
}

// Count returns the number of open connections
func (r *ClientRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.clients)
}

// Snapshot describes every connection for clients.list, oldest first
func (r *ClientRegistry) Snapshot() []ClientInfo {
	r.mu.RLock()
	now := time.Now()
	infos := make([]ClientInfo, 0, len(r.clients))
	for _, client := range r.clients {
		infos = append(infos, ClientInfo{
			ID:            client.ID,
			Authenticated: client.IsAuthenticated(),
			ConnectedAt:   client.ConnectedAt,
			LastActivity:  client.LastActivity,
			IPAddress:     client.IPAddress,
			Idle:          now.Sub(client.LastActivity) > idleAfter,
		})
	}
	r.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool {
		if infos[i].ConnectedAt.Equal(infos[j].ConnectedAt) {
			return infos[i].ID < infos[j].ID
		}
		return infos[i].ConnectedAt.Before(infos[j].ConnectedAt)
	})
	return infos
}

// Touch records activity on a connection
func (r *ClientRegistry) Touch(clientID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if client, ok := r.clients[clientID]; ok {
		client.LastActivity = time.Now()
	}
}
