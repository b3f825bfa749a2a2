package core

// Gossip transport: a libp2p host running GossipSub, discovered via mDNS.
// This is the low-level transport the design treats as an external
// collaborator, specified only at the message boundary — NodeMsg::SignedBlock
// and NodeMsg::SignedTransaction, carried as RLP-encoded envelopes over two
// configurable topics.

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/p2p/discovery/mdns"
	"github.com/sirupsen/logrus"
)

// NetConfig configures the gossip transport.
type NetConfig struct {
	ListenAddr     string
	BootstrapPeers []string
	DiscoveryTag   string
	BlockTopic     string
	TxnTopic       string
}

// DefaultNetConfig fills in the two gossip topic names used when a config
// does not override them.
func DefaultNetConfig() NetConfig {
	return NetConfig{
		ListenAddr:   "/ip4/0.0.0.0/tcp/0",
		DiscoveryTag: "synnergychain-mdns",
		BlockTopic:   "synnergy/blocks/v1",
		TxnTopic:     "synnergy/txns/v1",
	}
}

// Node wraps a libp2p host plus GossipSub, feeding discovery events into a
// PeerRegistry.
type Node struct {
	host   host.Host
	pubsub *pubsub.PubSub
	cfg    NetConfig
	reg    *PeerRegistry
	ctx    context.Context
	cancel context.CancelFunc

	topicLock sync.Mutex
	topics    map[string]*pubsub.Topic

	subLock sync.Mutex
	subs    map[string]*pubsub.Subscription
}

// NewNode creates and bootstraps a gossip node: a libp2p host, a GossipSub
// router, bootstrap dialing and mDNS discovery feeding reg.
func NewNode(cfg NetConfig, reg *PeerRegistry) (*Node, error) {
	ctx, cancel := context.WithCancel(context.Background())

	h, err := libp2p.New(libp2p.ListenAddrStrings(cfg.ListenAddr))
	if err != nil {
		cancel()
		return nil, WrapErr(KindIo, "create libp2p host", err)
	}

	ps, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		h.Close()
		cancel()
		return nil, WrapErr(KindIo, "create gossipsub", err)
	}

	n := &Node{
		host:   h,
		pubsub: ps,
		cfg:    cfg,
		reg:    reg,
		ctx:    ctx,
		cancel: cancel,
		topics: make(map[string]*pubsub.Topic),
		subs:   make(map[string]*pubsub.Subscription),
	}

	if err := n.DialSeed(cfg.BootstrapPeers); err != nil {
		logrus.WithError(err).Warn("network: bootstrap dial warning")
	}

	if err := mdns.NewMdnsService(h, cfg.DiscoveryTag, n).Start(); err != nil {
		logrus.WithError(err).Warn("network: mdns discovery not started")
	}

	return n, nil
}

var _ mdns.Notifee = (*Node)(nil)

// HandlePeerFound implements mdns.Notifee: connect to a newly discovered
// peer and record it in the registry.
func (n *Node) HandlePeerFound(info peer.AddrInfo) {
	if info.ID == n.host.ID() {
		return
	}
	if err := n.host.Connect(n.ctx, info); err != nil {
		logrus.WithField("peer", info.ID.String()).WithError(err).Warn("network: failed to connect to discovered peer")
		return
	}
	n.reg.Discovered(info.ID.String(), info.String(), time.Now().Unix())
	logrus.WithField("peer", info.ID.String()).Info("network: connected via mDNS")
}

// DialSeed connects to a list of bootstrap multiaddrs.
func (n *Node) DialSeed(seeds []string) error {
	var errs []string
	for _, addr := range seeds {
		pi, err := peer.AddrInfoFromString(addr)
		if err != nil {
			errs = append(errs, fmt.Sprintf("invalid addr %s: %v", addr, err))
			continue
		}
		if err := n.host.Connect(n.ctx, *pi); err != nil {
			errs = append(errs, fmt.Sprintf("connect %s: %v", addr, err))
			continue
		}
		n.reg.Discovered(pi.ID.String(), addr, time.Now().Unix())
		logrus.WithField("peer", addr).Info("network: bootstrapped")
	}
	if len(errs) > 0 {
		return fmt.Errorf("dial errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// envelopeKind tags which NodeMsg variant an envelope carries.
type envelopeKind uint8

const (
	envelopeBlock envelopeKind = iota
	envelopeTransaction
)

type gossipEnvelope struct {
	Kind envelopeKind
	Body []byte
}

func encodeBlockEnvelope(sb SignedBlock) ([]byte, error) {
	body, err := encodeSignedBlock(sb)
	if err != nil {
		return nil, err
	}
	return EncodeCanonical(gossipEnvelope{Kind: envelopeBlock, Body: body})
}

func encodeTxnEnvelope(st SignedTransaction) ([]byte, error) {
	body, err := encodeSignedTransaction(st)
	if err != nil {
		return nil, err
	}
	return EncodeCanonical(gossipEnvelope{Kind: envelopeTransaction, Body: body})
}

// GossipMessage is a decoded NodeMsg, tagged by which field is populated.
type GossipMessage struct {
	From  string
	Block *SignedBlock
	Txn   *SignedTransaction
}

func decodeEnvelope(from string, raw []byte) (GossipMessage, error) {
	var env gossipEnvelope
	if err := DecodeCanonical(raw, &env); err != nil {
		return GossipMessage{}, err
	}
	switch env.Kind {
	case envelopeBlock:
		sb, err := decodeSignedBlock(env.Body)
		if err != nil {
			return GossipMessage{}, err
		}
		return GossipMessage{From: from, Block: &sb}, nil
	case envelopeTransaction:
		st, err := decodeSignedTransaction(env.Body)
		if err != nil {
			return GossipMessage{}, err
		}
		return GossipMessage{From: from, Txn: &st}, nil
	default:
		return GossipMessage{}, NewErr(KindSerializationError, "unknown gossip envelope kind")
	}
}

func (n *Node) joinTopic(topic string) (*pubsub.Topic, error) {
	n.topicLock.Lock()
	defer n.topicLock.Unlock()
	if t, ok := n.topics[topic]; ok {
		return t, nil
	}
	t, err := n.pubsub.Join(topic)
	if err != nil {
		return nil, fmt.Errorf("join topic %s: %w", topic, err)
	}
	n.topics[topic] = t
	return t, nil
}

func (n *Node) publish(topic string, data []byte) error {
	t, err := n.joinTopic(topic)
	if err != nil {
		return err
	}
	if err := t.Publish(n.ctx, data); err != nil {
		return fmt.Errorf("publish topic %s: %w", topic, err)
	}
	return nil
}

// PublishBlock gossips sb on the block topic.
func (n *Node) PublishBlock(sb SignedBlock) error {
	data, err := encodeBlockEnvelope(sb)
	if err != nil {
		return err
	}
	return n.publish(n.cfg.BlockTopic, data)
}

// PublishTransaction gossips st on the transaction topic.
func (n *Node) PublishTransaction(st SignedTransaction) error {
	data, err := encodeTxnEnvelope(st)
	if err != nil {
		return err
	}
	return n.publish(n.cfg.TxnTopic, data)
}

// Subscribe listens for NodeMsg envelopes on topic and returns a decoded
// message channel, closed when the subscription ends.
func (n *Node) Subscribe(topic string) (<-chan GossipMessage, error) {
	n.subLock.Lock()
	sub, ok := n.subs[topic]
	if !ok {
		t, err := n.joinTopic(topic)
		if err != nil {
			n.subLock.Unlock()
			return nil, err
		}
		sub, err = t.Subscribe()
		if err != nil {
			n.subLock.Unlock()
			return nil, fmt.Errorf("subscribe topic %s: %w", topic, err)
		}
		n.subs[topic] = sub
	}
	n.subLock.Unlock()

	out := make(chan GossipMessage)
	go func() {
		defer close(out)
		for {
			msg, err := sub.Next(n.ctx)
			if err != nil {
				logrus.WithField("topic", topic).WithError(err).Warn("network: subscription ended")
				return
			}
			decoded, err := decodeEnvelope(msg.GetFrom().String(), msg.Data)
			if err != nil {
				logrus.WithField("topic", topic).WithError(err).Warn("network: dropping malformed gossip message")
				continue
			}
			out <- decoded
		}
	}()
	return out, nil
}

// SubscribeBlocks and SubscribeTransactions are convenience wrappers over
// Subscribe for the two well-known topics.
func (n *Node) SubscribeBlocks() (<-chan GossipMessage, error) { return n.Subscribe(n.cfg.BlockTopic) }
func (n *Node) SubscribeTransactions() (<-chan GossipMessage, error) {
	return n.Subscribe(n.cfg.TxnTopic)
}

// ListenAndServe blocks until the node is closed.
func (n *Node) ListenAndServe() {
	<-n.ctx.Done()
	logrus.Info("network: node shutting down")
}

// Close tears down the host and cancels the node's context.
func (n *Node) Close() error {
	n.cancel()
	return n.host.Close()
}

// ID returns the node's own peer id string.
func (n *Node) ID() string { return n.host.ID().String() }
