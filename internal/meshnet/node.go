// Package meshnet puts the spend ledger on a libp2p Kademlia DHT. Each
// spend address maps to one DHT key holding every record ever observed
// for it, validated at the routing layer, with GossipSub announcements
// so interested peers can re-audit affected keys promptly.
package meshnet

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p"
	dht "github.com/libp2p/go-libp2p-kad-dht"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	libp2pcrypto "github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multiaddr"
	"github.com/rs/zerolog"

	"github.com/meshcash/meshcash/internal/log"
	"github.com/meshcash/meshcash/pkg/types"
)

const (
	// seedConnectTimeout bounds one connection attempt to a seed peer.
	seedConnectTimeout = 10 * time.Second

	// seedRetryInterval is how often seed connections are retried while
	// the node has no peers.
	seedRetryInterval = 10 * time.Second
)

// Config holds network node configuration.
type Config struct {
	ListenAddr string
	Port       int
	Seeds      []string // multiaddrs with /p2p/ peer IDs
	DHTServer  bool     // store and serve records, not just query
	NetworkID  string   // isolates the DHT and gossip per network
	DataDir    string   // persists the node identity across restarts
}

// Node is a libp2p host participating in the spend DHT.
type Node struct {
	host   host.Host
	dht    *dht.IpfsDHT
	pubsub *pubsub.PubSub
	config Config
	logger zerolog.Logger
	ctx    context.Context
	cancel context.CancelFunc

	topicSpends *pubsub.Topic
	subSpends   *pubsub.Subscription

	mu           sync.RWMutex
	spendHandler func(peer.ID, types.SpendAddress)
}

// New creates an unstarted node.
func New(cfg Config) *Node {
	ctx, cancel := context.WithCancel(context.Background())
	return &Node{
		config: cfg,
		logger: log.Net,
		ctx:    ctx,
		cancel: cancel,
	}
}

// spendTopic returns the GossipSub topic for spend announcements.
func (n *Node) spendTopic() string {
	return Namespace + "/spends/" + n.config.NetworkID
}

// Start brings up the libp2p host, the DHT and the announcement topic.
func (n *Node) Start() error {
	addr := fmt.Sprintf("/ip4/%s/tcp/%d", n.config.ListenAddr, n.config.Port)

	opts := []libp2p.Option{
		libp2p.ListenAddrStrings(addr),
	}
	if n.config.DataDir != "" {
		privKey, err := loadOrCreateIdentity(n.config.DataDir)
		if err != nil {
			return fmt.Errorf("load node identity: %w", err)
		}
		opts = append(opts, libp2p.Identity(privKey))
	}

	h, err := libp2p.New(opts...)
	if err != nil {
		return fmt.Errorf("create libp2p host: %w", err)
	}
	n.host = h

	mode := dht.ModeClient
	if n.config.DHTServer {
		mode = dht.ModeServer
	}
	kadDHT, err := dht.New(n.ctx, h,
		dht.Mode(mode),
		dht.NamespacedValidator(Namespace, recordValidator{}),
	)
	if err != nil {
		h.Close()
		return fmt.Errorf("create kad-dht: %w", err)
	}
	n.dht = kadDHT
	if err := kadDHT.Bootstrap(n.ctx); err != nil {
		kadDHT.Close()
		h.Close()
		return fmt.Errorf("bootstrap dht: %w", err)
	}

	ps, err := pubsub.NewGossipSub(n.ctx, h)
	if err != nil {
		kadDHT.Close()
		h.Close()
		return fmt.Errorf("create pubsub: %w", err)
	}
	n.pubsub = ps
	n.topicSpends, err = ps.Join(n.spendTopic())
	if err != nil {
		return fmt.Errorf("join spend topic: %w", err)
	}
	n.subSpends, err = n.topicSpends.Subscribe()
	if err != nil {
		return fmt.Errorf("subscribe spend topic: %w", err)
	}
	go n.readSpendAnnouncements()

	if len(n.config.Seeds) > 0 {
		n.connectSeedsOnce()
		go n.connectSeedsLoop()
	}

	n.logger.Info().
		Stringer("peer_id", h.ID()).
		Str("listen", addr).
		Bool("dht_server", n.config.DHTServer).
		Msg("network node started")
	return nil
}

// Stop shuts the node down.
func (n *Node) Stop() error {
	n.cancel()
	if n.subSpends != nil {
		n.subSpends.Cancel()
	}
	if n.topicSpends != nil {
		n.topicSpends.Close()
	}
	if n.dht != nil {
		n.dht.Close()
	}
	if n.host != nil {
		return n.host.Close()
	}
	return nil
}

// ID returns the node's peer ID (empty before Start).
func (n *Node) ID() peer.ID {
	if n.host == nil {
		return ""
	}
	return n.host.ID()
}

// Addrs returns the node's full multiaddrs.
func (n *Node) Addrs() []string {
	if n.host == nil {
		return nil
	}
	var addrs []string
	for _, a := range n.host.Addrs() {
		addrs = append(addrs, fmt.Sprintf("%s/p2p/%s", a, n.host.ID()))
	}
	return addrs
}

// SetSpendHandler registers a callback for announced spend addresses.
// Typical use is triggering a re-audit of wallet state touching the key.
func (n *Node) SetSpendHandler(fn func(from peer.ID, addr types.SpendAddress)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.spendHandler = fn
}

// Announce publishes a spend address to the gossip topic. Records travel
// through the DHT; the announcement is only a hint to go look.
func (n *Node) Announce(ctx context.Context, addr types.SpendAddress) error {
	if n.topicSpends == nil {
		return fmt.Errorf("node not started")
	}
	return n.topicSpends.Publish(ctx, addr[:])
}

func (n *Node) readSpendAnnouncements() {
	for {
		msg, err := n.subSpends.Next(n.ctx)
		if err != nil {
			return // Context cancelled.
		}
		if msg.ReceivedFrom == n.host.ID() {
			continue
		}
		var addr types.SpendAddress
		if len(msg.Data) != len(addr) {
			continue
		}
		copy(addr[:], msg.Data)

		n.mu.RLock()
		handler := n.spendHandler
		n.mu.RUnlock()
		if handler != nil {
			handler(msg.ReceivedFrom, addr)
		}
	}
}

// connectSeedsOnce tries each seed once, blocking. Returns true if at
// least one connected.
func (n *Node) connectSeedsOnce() bool {
	connected := false
	for _, s := range n.config.Seeds {
		ma, err := multiaddr.NewMultiaddr(s)
		if err != nil {
			n.logger.Warn().Str("addr", s).Err(err).Msg("bad seed address")
			continue
		}
		info, err := peer.AddrInfoFromP2pAddr(ma)
		if err != nil {
			n.logger.Warn().Str("addr", s).Err(err).Msg("seed address missing peer id")
			continue
		}
		ctx, cancel := context.WithTimeout(n.ctx, seedConnectTimeout)
		err = n.host.Connect(ctx, *info)
		cancel()
		if err != nil {
			n.logger.Warn().Stringer("peer", info.ID).Err(err).Msg("seed connect failed")
			continue
		}
		n.logger.Info().Stringer("peer", info.ID).Msg("seed connected")
		connected = true
	}
	return connected
}

// connectSeedsLoop retries seeds while the node is peerless.
func (n *Node) connectSeedsLoop() {
	for {
		select {
		case <-n.ctx.Done():
			return
		case <-time.After(seedRetryInterval):
			if len(n.host.Network().Peers()) == 0 {
				n.connectSeedsOnce()
			}
		}
	}
}

// loadOrCreateIdentity loads a persisted libp2p identity key from
// dataDir, or generates and saves one so the peer ID survives restarts.
func loadOrCreateIdentity(dataDir string) (libp2pcrypto.PrivKey, error) {
	keyPath := filepath.Join(dataDir, "node.key")

	data, err := os.ReadFile(keyPath)
	if err == nil {
		keyBytes, err := hex.DecodeString(string(data))
		if err != nil {
			return nil, fmt.Errorf("decode node key: %w", err)
		}
		return libp2pcrypto.UnmarshalEd25519PrivateKey(keyBytes)
	}

	priv, _, err := libp2pcrypto.GenerateEd25519Key(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	raw, err := priv.Raw()
	if err != nil {
		return nil, fmt.Errorf("marshal key: %w", err)
	}
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	if err := os.WriteFile(keyPath, []byte(hex.EncodeToString(raw)), 0600); err != nil {
		return nil, fmt.Errorf("save node key: %w", err)
	}
	return priv, nil
}
