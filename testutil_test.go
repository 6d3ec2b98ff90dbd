package lavago

import (
	"encoding/json"
	"sync"
	"testing"
)

// frameRecorder captures every frame written to a recording node's socket,
// standing in for a live nodeSocket in tests that exercise Player/Link
// command dispatch without a real websocket connection.
type frameRecorder struct {
	mu   sync.Mutex
	sent [][]byte
}

func (r *frameRecorder) add(data []byte) {
	r.mu.Lock()
	r.sent = append(r.sent, data)
	r.mu.Unlock()
}

// frames returns the recorded frames decoded as generic JSON objects.
func (r *frameRecorder) frames(t *testing.T) []map[string]any {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]map[string]any, 0, len(r.sent))
	for _, raw := range r.sent {
		var m map[string]any
		if err := json.Unmarshal(raw, &m); err != nil {
			t.Fatalf("decode recorded frame: %v", err)
		}
		out = append(out, m)
	}
	return out
}

func (r *frameRecorder) ops(t *testing.T) []string {
	t.Helper()
	var ops []string
	for _, f := range r.frames(t) {
		op, _ := f["op"].(string)
		ops = append(ops, op)
	}
	return ops
}

// newRecordingNode registers an available Node on client whose every Send
// succeeds and is captured by the returned recorder, without opening a
// socket.
func newRecordingNode(t *testing.T, client *Client, name string) (*Node, *frameRecorder) {
	t.Helper()
	rec := &frameRecorder{}
	sock := &nodeSocket{
		cfg:       NewConfig(),
		sendChan:  make(chan wsData),
		connected: true,
	}
	go func() {
		for data := range sock.sendChan {
			rec.add(data.data)
			data.errChan <- nil
		}
	}()

	n := &Node{
		name:      name,
		cfg:       NewConfig(),
		client:    client,
		links:     make(map[string]*Link),
		socket:    sock,
		available: true,
	}
	client.mu.Lock()
	client.nodes[name] = n
	client.mu.Unlock()
	return n, rec
}

func newTestClient() *Client {
	return NewClient("bot-user", 1)
}

// newTestLink wires up a Client, an available recording Node, and a Link
// bound to it, bypassing GetLink's load-balancer selection.
func newTestLink(t *testing.T, guildID string) (*Client, *Node, *Link, *frameRecorder) {
	t.Helper()
	client := newTestClient()
	node, rec := newRecordingNode(t, client, "n1")
	link := newLink(client, guildID, node)
	client.mu.Lock()
	client.links[guildID] = link
	client.mu.Unlock()
	return client, node, link, rec
}
