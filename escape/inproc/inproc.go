// Package inproc implements the escape.Gateway transport for the case
// where the kernel agent and user producer share a process (tests, or
// a guest driver stack compiled into one binary). It is grounded on
// vhostuser.Server's single-request-at-a-time processing: oneRequest
// handles exactly one vhost-user call before the next is read off the
// wire, so this transport serializes calls the same way with an
// explicit mutex instead of a socket's inherent seriality.
package inproc

import (
	"sync"

	"github.com/templarsco/pvgpu/escape"
)

// Client adapts a escape.Gateway into a serialized call point, safe
// for concurrent use by multiple guest-side goroutines.
type Client struct {
	mu sync.Mutex
	gw escape.Gateway
}

// New wraps gw for in-process, mutex-serialized calls.
func New(gw escape.Gateway) *Client {
	return &Client{gw: gw}
}

func (c *Client) GetShmemInfo(m *escape.GetShmemInfo) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	m.Code = escape.CodeGetShmemInfo
	return c.gw.GetShmemInfo(m)
}

func (c *Client) AllocHeap(m *escape.AllocHeap) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	m.Code = escape.CodeAllocHeap
	return c.gw.AllocHeap(m)
}

func (c *Client) FreeHeap(m *escape.FreeHeap) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	m.Code = escape.CodeFreeHeap
	return c.gw.FreeHeap(m)
}

func (c *Client) SubmitCommands(m *escape.SubmitCommands) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	m.Code = escape.CodeSubmitCommands
	return c.gw.SubmitCommands(m)
}

func (c *Client) RingDoorbell(m *escape.RingDoorbell) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	m.Code = escape.CodeRingDoorbell
	return c.gw.RingDoorbell(m)
}

// WaitFence is deliberately NOT protected by the same critical section
// as the other calls: it can legitimately block for the caller's full
// timeout, and serializing it behind c.mu would stall every other
// escape (including FreeHeap's fence-recovery retry from §8 scenario
// 4) for the duration of an unrelated wait.
func (c *Client) WaitFence(m *escape.WaitFence) error {
	m.Code = escape.CodeWaitFence
	return c.gw.WaitFence(m)
}

func (c *Client) GetCaps(m *escape.GetCaps) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	m.Code = escape.CodeGetCaps
	return c.gw.GetCaps(m)
}

func (c *Client) SetDisplayMode(m *escape.SetDisplayMode) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	m.Code = escape.CodeSetDisplayMode
	return c.gw.SetDisplayMode(m)
}

var _ escape.Gateway = (*Client)(nil)
