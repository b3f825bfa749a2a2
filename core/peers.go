package core

// Peer Registry (C7): maps a transport peer id to {public_key, last_seen,
// multiaddr}. Updated by the gossip transport's discovery events
// (Discovered/Expired, mirroring the original node's mDNS notifee updating
// a shared peer map). Its lookups (AnyReachable, ByPublicKey) resolve a
// peer's address; the Sync Engine does not consult the registry — it pulls
// from the fixed base URL its PeerClient was constructed with.

import "sync"

// PeerInfo is one registry entry.
type PeerInfo struct {
	PeerID    string
	PublicKey Address // empty until a handshake binds it
	LastSeen  int64   // unix seconds
	Multiaddr string
}

// PeerRegistry is the mutex-guarded process-wide peer table.
type PeerRegistry struct {
	mu       sync.Mutex
	byPeerID map[string]*PeerInfo
	byPubKey map[Address]string // public key -> peer id
}

// NewPeerRegistry returns an empty registry.
func NewPeerRegistry() *PeerRegistry {
	return &PeerRegistry{
		byPeerID: make(map[string]*PeerInfo),
		byPubKey: make(map[Address]string),
	}
}

// Discovered records or refreshes a peer seen via the transport's discovery
// event (mDNS Discovered, or a manual dial).
func (r *PeerRegistry) Discovered(peerID, multiaddr string, seenAt int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if info, ok := r.byPeerID[peerID]; ok {
		info.Multiaddr = multiaddr
		info.LastSeen = seenAt
		return
	}
	r.byPeerID[peerID] = &PeerInfo{PeerID: peerID, Multiaddr: multiaddr, LastSeen: seenAt}
}

// Expired removes a peer on the transport's Expired event.
func (r *PeerRegistry) Expired(peerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if info, ok := r.byPeerID[peerID]; ok {
		if info.PublicKey != "" {
			delete(r.byPubKey, info.PublicKey)
		}
		delete(r.byPeerID, peerID)
	}
}

// BindPublicKey associates a peer id with the public key it identified
// itself with at the application layer (outside the scope of transport
// discovery itself).
func (r *PeerRegistry) BindPublicKey(peerID string, pub Address) {
	r.mu.Lock()
	defer r.mu.Unlock()
	info, ok := r.byPeerID[peerID]
	if !ok {
		info = &PeerInfo{PeerID: peerID}
		r.byPeerID[peerID] = info
	}
	if info.PublicKey != "" {
		delete(r.byPubKey, info.PublicKey)
	}
	info.PublicKey = pub
	r.byPubKey[pub] = peerID
}

// AnyReachable returns the first peer with a resolvable multiaddr, for
// anonymous queries that don't need a specific peer.
func (r *PeerRegistry) AnyReachable() (PeerInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, info := range r.byPeerID {
		if info.Multiaddr != "" {
			return *info, true
		}
	}
	return PeerInfo{}, false
}

// ByPublicKey resolves a specific peer's address by its hex public key.
func (r *PeerRegistry) ByPublicKey(pub Address) (PeerInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	peerID, ok := r.byPubKey[pub]
	if !ok {
		return PeerInfo{}, false
	}
	info, ok := r.byPeerID[peerID]
	if !ok {
		return PeerInfo{}, false
	}
	return *info, true
}

// Snapshot returns a copy of every known peer.
func (r *PeerRegistry) Snapshot() []PeerInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]PeerInfo, 0, len(r.byPeerID))
	for _, info := range r.byPeerID {
		out = append(out, *info)
	}
	return out
}
