package cluster

import (
	"context"
	"strings"
	"sync"

	"github.com/go-kit/log/level"
	"golang.org/x/sync/errgroup"

	"github.com/aerospike/aerospike-client-go-teachable/cluster/node"
	"github.com/aerospike/aerospike-client-go-teachable/errs"
	"github.com/aerospike/aerospike-client-go-teachable/internal/multierror"
)

// discoverSeeds dials each configured seed concurrently, validates its
// cluster-name, and walks its "services" peer list breadth-first until no
// new addresses are found. Grounded on the teacher's join.go flow
// ("contact a seed, fetch its member list, connect to every member"),
// generalized to parallel fan-out via errgroup since there is no gossip
// layer here doing the propagation for us (§4.4).
func (c *Cluster) discoverSeeds(ctx context.Context, seedHosts []string) error {
	if len(seedHosts) == 0 {
		return errs.New(errs.KindPolicy, "at least one seed host is required")
	}

	var (
		mu       sync.Mutex
		visited  = make(map[string]struct{})
		queue    = append([]string(nil), seedHosts...)
		found    bool
		seedErrs = multierror.New[string]()
	)

	for len(queue) > 0 {
		batch := queue
		queue = nil

		g, gctx := errgroup.WithContext(ctx)

		newAddrs := make(chan string, len(batch)*4)

		for _, addr := range batch {
			addr := addr

			mu.Lock()
			if _, ok := visited[addr]; ok {
				mu.Unlock()
				continue
			}

			visited[addr] = struct{}{}
			mu.Unlock()

			g.Go(func() error {
				n := node.New(addr, addr, c.cfg.NodeConfig)

				if c.cfg.ClusterName != "" {
					name, err := n.ClusterName(gctx)
					if err != nil {
						level.Debug(c.logger).Log("msg", "seed unreachable", "addr", addr, "err", err)
						seedErrs.Add(addr, err)

						return nil
					}

					if name != c.cfg.ClusterName {
						mismatchErr := errs.New(errs.KindPolicy, "cluster-name mismatch: got "+name+" want "+c.cfg.ClusterName)
						level.Warn(c.logger).Log("msg", "seed cluster-name mismatch", "addr", addr, "got", name, "want", c.cfg.ClusterName)
						seedErrs.Add(addr, mismatchErr)

						return nil
					}
				}

				if err := n.Refresh(gctx); err != nil {
					level.Debug(c.logger).Log("msg", "seed refresh failed", "addr", addr, "err", err)
					seedErrs.Add(addr, err)

					return nil
				}

				c.addNode(n)

				mu.Lock()
				found = true
				mu.Unlock()

				peers, err := n.Peers(gctx)
				if err != nil {
					return nil
				}

				for _, p := range peers {
					newAddrs <- p
				}

				return nil
			})
		}

		_ = g.Wait()
		close(newAddrs)

		for addr := range newAddrs {
			addr = strings.TrimSpace(addr)

			mu.Lock()
			if _, ok := visited[addr]; !ok {
				queue = append(queue, addr)
			}
			mu.Unlock()
		}
	}

	if !found {
		if combined := seedErrs.Combined(); combined != nil {
			return errs.Wrap(errs.KindNoAvailableNode, combined, "no seed host could be reached")
		}

		return errs.New(errs.KindNoAvailableNode, "no seed host could be reached")
	}

	return nil
}
