package lavago

import "errors"

// ErrIllegalAction is returned when a caller violates a state precondition,
// e.g. seeking with nothing playing or changing the state of a destroyed
// Link.
var ErrIllegalAction = errors.New("lavago: illegal action")

// ErrNodeUnavailable is returned by Node.Send when the underlying websocket
// is not open.
var ErrNodeUnavailable = errors.New("lavago: node unavailable")

// ErrNodeException wraps a transport or worker-side failure reported by a
// Node. Use errors.Is(err, ErrNodeException) to detect it regardless of the
// wrapped cause.
var ErrNodeException = errors.New("lavago: node exception")

// ErrNoNodesAvailable is returned by the load balancer when the node
// registry is empty or no registered node is available.
var ErrNoNodesAvailable = errors.New("lavago: no nodes available")
