package lavago

import (
	"context"
	"math"
)

// loadBalancer picks which Node a new Link should use and re-homes Links
// away from a Node that has gone unavailable.
type loadBalancer struct {
	client *Client
}

func newLoadBalancer(client *Client) *loadBalancer {
	return &loadBalancer{client: client}
}

// determineBestNode returns the available Node with the lowest penalty
// score. Ties keep whichever node was seen first during the scan.
func (lb *loadBalancer) determineBestNode() (*Node, error) {
	var best *Node
	bestScore := math.Inf(1)
	for _, n := range lb.client.nodeSnapshot() {
		if !n.Available() {
			continue
		}
		score := penalty(true, n.Stats())
		if score < bestScore {
			bestScore = score
			best = n
		}
	}
	if best == nil {
		return nil, ErrNoNodesAvailable
	}
	return best, nil
}

// onNodeConnect re-homes every Link whose node is absent or unavailable
// onto n, so Links created while the fleet had no healthy node recover as
// soon as one comes back up.
func (lb *loadBalancer) onNodeConnect(n *Node) {
	lb.client.logger().Info("node available for scheduling", "node", n.Name())
	for _, l := range lb.client.linkSnapshot() {
		current := l.Node()
		if current != nil && current.Available() {
			continue
		}
		l.ChangeNode(n)
		lb.client.metrics.linkMigrated(context.Background())
	}
}

// onNodeDisconnect migrates every Link that was assigned to n onto the
// best remaining node. If no node qualifies, every Link on n is destroyed
// instead of being left stranded on a dead worker.
func (lb *loadBalancer) onNodeDisconnect(n *Node) {
	links := n.linkSnapshot()
	if len(links) == 0 {
		return
	}

	best, err := lb.determineBestNode()
	if err != nil {
		lb.client.logger().Warn("no replacement node available, destroying stranded links",
			"node", n.Name(), "link_count", len(links))
		for _, l := range links {
			_ = l.Destroy()
		}
		return
	}

	lb.client.logger().Info("migrating links off disconnected node",
		"node", n.Name(), "target", best.Name(), "link_count", len(links))
	for _, l := range links {
		l.ChangeNode(best)
		lb.client.metrics.linkMigrated(context.Background())
	}
}
