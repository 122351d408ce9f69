package cluster

import (
	"github.com/go-kit/log/level"
	"github.com/hashicorp/memberlist"
)

// gossipDelegate feeds memberlist's own SWIM leave notifications (members
// that left or were declared dead) into each Node's health counter; join
// and update notifications are only logged or ignored. A node that the failure detector
// has already given up on is marked unreachable without waiting for the
// next tend cycle's Info probe to time out (§4.4 health tracking, backed
// here by memberlist's ping/suspect/confirm cycle rather than hand-rolled
// timers alone).
type gossipDelegate struct {
	cluster *Cluster
}

func (d *gossipDelegate) NotifyJoin(n *memberlist.Node) {
	level.Debug(d.cluster.logger).Log("msg", "gossip peer joined", "addr", n.Address())
}

func (d *gossipDelegate) NotifyLeave(n *memberlist.Node) {
	level.Warn(d.cluster.logger).Log("msg", "gossip peer left", "addr", n.Address())

	if node, ok := d.cluster.findByAddr(n.Address()); ok {
		node.MarkUnreachable()
	}
}

func (d *gossipDelegate) NotifyUpdate(n *memberlist.Node) {}

// startGossip joins the memberlist substrate configured by
// cfg.GossipBindAddr, if any, returning nil when gossip augmentation is
// disabled. Seeds are the same addresses passed to Connect, reused here
// as memberlist's own join targets.
func (c *Cluster) startGossip(seedHosts []string) (*memberlist.Memberlist, error) {
	if c.cfg.GossipBindAddr == "" {
		return nil, nil
	}

	conf := memberlist.DefaultLocalConfig()
	conf.BindAddr, conf.BindPort = splitGossipAddr(c.cfg.GossipBindAddr)
	conf.Name = c.cfg.GossipBindAddr
	conf.Events = &gossipDelegate{cluster: c}
	conf.LogOutput = logutilDiscard{}

	ml, err := memberlist.Create(conf)
	if err != nil {
		return nil, err
	}

	if len(seedHosts) > 0 {
		if _, err := ml.Join(seedHosts); err != nil {
			level.Warn(c.logger).Log("msg", "gossip join failed", "err", err)
		}
	}

	return ml, nil
}

func splitGossipAddr(addr string) (string, int) {
	host, port := "0.0.0.0", 7946

	for i := len(addr) - 1; i >= 0; i-- {
		if addr[i] == ':' {
			host = addr[:i]

			p := 0
			for _, c := range addr[i+1:] {
				if c < '0' || c > '9' {
					return host, port
				}

				p = p*10 + int(c-'0')
			}

			if p > 0 {
				port = p
			}

			return host, port
		}
	}

	return host, port
}

// logutilDiscard satisfies memberlist's io.Writer-shaped LogOutput without
// pulling its chatty default logger into the client's own go-kit log
// output.
type logutilDiscard struct{}

func (logutilDiscard) Write(p []byte) (int, error) { return len(p), nil }
