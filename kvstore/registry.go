package kvstore

import (
	"sync"
	"time"
)

// peer is an open store that can be asked to step aside for an upgrade.
type peer interface {
	versionChange(ev VersionChangeEvent)
}

// registry tracks the open stores of this process by database file, so an
// upgrade can evict the connections that would otherwise keep using the old
// schema.
type registry struct {
	mu    sync.Mutex
	peers map[string]map[peer]struct{}
}

var openStores = &registry{peers: map[string]map[peer]struct{}{}}

func (r *registry) add(path string, p peer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.peers[path] == nil {
		r.peers[path] = map[peer]struct{}{}
	}
	r.peers[path][p] = struct{}{}
}

func (r *registry) remove(path string, p peer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.peers[path], p)
	if len(r.peers[path]) == 0 {
		delete(r.peers, path)
	}
}

// others returns the open stores on path, except self.
func (r *registry) others(path string, self peer) []peer {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := make([]peer, 0, len(r.peers[path]))
	for p := range r.peers[path] {
		if p != self {
			list = append(list, p)
		}
	}
	return list
}

// broadcast delivers ev to every other open store on path and waits for them
// to close. It reports false when they did not all close within timeout.
func (r *registry) broadcast(path string, self peer, ev VersionChangeEvent, timeout time.Duration) bool {
	others := r.others(path, self)
	if len(others) == 0 {
		return true
	}
	var wg sync.WaitGroup
	for _, p := range others {
		wg.Add(1)
		go func(p peer) {
			defer wg.Done()
			p.versionChange(ev)
		}(p)
	}
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
