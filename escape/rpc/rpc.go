// Package rpc implements the escape.Gateway transport for the case
// where the user-mode and kernel-mode halves are separate OS
// processes (§6.3 "The transport ... is outside this spec's scope").
// It frames each escape call as a small {code, size} header followed
// by the raw struct bytes, using bufiox for the buffered read/write
// side -- the same header-then-payload shape as vhostuser/server.go's
// oneRequest, but over a buffered io.ReadWriter instead of raw
// ReadMsgUnix, since this transport carries no file descriptors.
package rpc

import (
	"fmt"
	"io"
	"net"
	"unsafe"

	"github.com/cloudwego/gopkg/bufiox"

	"github.com/templarsco/pvgpu/escape"
)

type frameHeader struct {
	Code uint32
	Size uint32
}

const frameHeaderSize = int(unsafe.Sizeof(frameHeader{}))

func encode[T any](v *T) []byte {
	n := int(unsafe.Sizeof(*v))
	buf := make([]byte, n)
	*(*T)(unsafe.Pointer(&buf[0])) = *v
	return buf
}

func decodeInto[T any](dst *T, buf []byte) error {
	n := int(unsafe.Sizeof(*dst))
	if len(buf) != n {
		return fmt.Errorf("rpc: payload is %d bytes, want %d", len(buf), n)
	}
	*dst = *(*T)(unsafe.Pointer(&buf[0]))
	return nil
}

func writeFrame(w bufiox.Writer, code escape.Code, payload []byte) error {
	hdrBuf, err := w.Malloc(frameHeaderSize)
	if err != nil {
		return err
	}
	*(*frameHeader)(unsafe.Pointer(&hdrBuf[0])) = frameHeader{Code: uint32(code), Size: uint32(len(payload))}
	if _, err := w.WriteBinary(payload); err != nil {
		return err
	}
	return w.Flush()
}

func readFrame(r bufiox.Reader) (escape.Code, []byte, error) {
	hdrBuf, err := r.Next(frameHeaderSize)
	if err != nil {
		return 0, nil, err
	}
	hdr := *(*frameHeader)(unsafe.Pointer(&hdrBuf[0]))

	payload, err := r.Next(int(hdr.Size))
	if err != nil {
		return 0, nil, err
	}
	out := make([]byte, len(payload))
	copy(out, payload)
	if err := r.Release(nil); err != nil {
		return 0, nil, err
	}
	return escape.Code(hdr.Code), out, nil
}

// Client is the user-producer side of the rpc transport: it satisfies
// escape.Gateway by round-tripping each call over conn.
type Client struct {
	conn net.Conn
	r    bufiox.Reader
	w    bufiox.Writer
}

// NewClient wraps conn for escape calls. conn is typically a
// unix-domain socket connecting the unprivileged producer process to
// the privileged kernel agent process.
func NewClient(conn net.Conn) *Client {
	return &Client{conn: conn, r: bufiox.NewDefaultReader(conn), w: bufiox.NewDefaultWriter(conn)}
}

func roundTrip[T any](c *Client, code escape.Code, msg *T) error {
	if err := writeFrame(c.w, code, encode(msg)); err != nil {
		return err
	}
	gotCode, payload, err := readFrame(c.r)
	if err != nil {
		return err
	}
	if gotCode != code {
		return fmt.Errorf("rpc: response code %v, want %v", gotCode, code)
	}
	return decodeInto(msg, payload)
}

func (c *Client) GetShmemInfo(m *escape.GetShmemInfo) error {
	m.Code = escape.CodeGetShmemInfo
	return roundTrip(c, escape.CodeGetShmemInfo, m)
}
func (c *Client) AllocHeap(m *escape.AllocHeap) error {
	m.Code = escape.CodeAllocHeap
	return roundTrip(c, escape.CodeAllocHeap, m)
}
func (c *Client) FreeHeap(m *escape.FreeHeap) error {
	m.Code = escape.CodeFreeHeap
	return roundTrip(c, escape.CodeFreeHeap, m)
}
func (c *Client) SubmitCommands(m *escape.SubmitCommands) error {
	m.Code = escape.CodeSubmitCommands
	return roundTrip(c, escape.CodeSubmitCommands, m)
}
func (c *Client) RingDoorbell(m *escape.RingDoorbell) error {
	m.Code = escape.CodeRingDoorbell
	return roundTrip(c, escape.CodeRingDoorbell, m)
}
func (c *Client) WaitFence(m *escape.WaitFence) error {
	m.Code = escape.CodeWaitFence
	return roundTrip(c, escape.CodeWaitFence, m)
}
func (c *Client) GetCaps(m *escape.GetCaps) error {
	m.Code = escape.CodeGetCaps
	return roundTrip(c, escape.CodeGetCaps, m)
}
func (c *Client) SetDisplayMode(m *escape.SetDisplayMode) error {
	m.Code = escape.CodeSetDisplayMode
	return roundTrip(c, escape.CodeSetDisplayMode, m)
}

var _ escape.Gateway = (*Client)(nil)

// Server serves escape calls arriving over conn by dispatching into
// gw, mirroring vhostuser.Server's Serve/oneRequest loop.
type Server struct {
	conn net.Conn
	r    bufiox.Reader
	w    bufiox.Writer
	gw   escape.Gateway
}

func NewServer(conn net.Conn, gw escape.Gateway) *Server {
	return &Server{conn: conn, r: bufiox.NewDefaultReader(conn), w: bufiox.NewDefaultWriter(conn), gw: gw}
}

// Serve handles requests until conn is closed or a framing error
// occurs.
func (s *Server) Serve() error {
	for {
		if err := s.oneRequest(); err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
}

func (s *Server) oneRequest() error {
	code, payload, err := readFrame(s.r)
	if err != nil {
		return err
	}

	var resp []byte
	switch code {
	case escape.CodeGetShmemInfo:
		var m escape.GetShmemInfo
		if err := decodeInto(&m, payload); err != nil {
			return err
		}
		if err := s.gw.GetShmemInfo(&m); err != nil {
			return err
		}
		resp = encode(&m)
	case escape.CodeAllocHeap:
		var m escape.AllocHeap
		if err := decodeInto(&m, payload); err != nil {
			return err
		}
		if err := s.gw.AllocHeap(&m); err != nil {
			return err
		}
		resp = encode(&m)
	case escape.CodeFreeHeap:
		var m escape.FreeHeap
		if err := decodeInto(&m, payload); err != nil {
			return err
		}
		if err := s.gw.FreeHeap(&m); err != nil {
			return err
		}
		resp = encode(&m)
	case escape.CodeSubmitCommands:
		var m escape.SubmitCommands
		if err := decodeInto(&m, payload); err != nil {
			return err
		}
		if err := s.gw.SubmitCommands(&m); err != nil {
			return err
		}
		resp = encode(&m)
	case escape.CodeRingDoorbell:
		var m escape.RingDoorbell
		if err := decodeInto(&m, payload); err != nil {
			return err
		}
		if err := s.gw.RingDoorbell(&m); err != nil {
			return err
		}
		resp = encode(&m)
	case escape.CodeWaitFence:
		var m escape.WaitFence
		if err := decodeInto(&m, payload); err != nil {
			return err
		}
		if err := s.gw.WaitFence(&m); err != nil {
			return err
		}
		resp = encode(&m)
	case escape.CodeGetCaps:
		var m escape.GetCaps
		if err := decodeInto(&m, payload); err != nil {
			return err
		}
		if err := s.gw.GetCaps(&m); err != nil {
			return err
		}
		resp = encode(&m)
	case escape.CodeSetDisplayMode:
		var m escape.SetDisplayMode
		if err := decodeInto(&m, payload); err != nil {
			return err
		}
		if err := s.gw.SetDisplayMode(&m); err != nil {
			return err
		}
		resp = encode(&m)
	default:
		return fmt.Errorf("rpc: unknown escape code %d", code)
	}

	return writeFrame(s.w, code, resp)
}
