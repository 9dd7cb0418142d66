// Command pvgpu-hostd runs the privileged host half of the transport:
// it creates the shared memory region, wires a kernel agent and a host
// consumer over it, and accepts escape/rpc connections from user
// producers on a Unix socket, in the same listen-accept-serve shape as
// vhostuser.ServeFS.
package main

import (
	"context"
	"flag"
	"log"
	"net"
	"os/signal"
	"syscall"

	"github.com/templarsco/pvgpu/escape/rpc"
	"github.com/templarsco/pvgpu/hostconsumer"
	"github.com/templarsco/pvgpu/hostconsumer/nullrenderer"
	"github.com/templarsco/pvgpu/kernelagent"
	"github.com/templarsco/pvgpu/shmregion"
	"github.com/templarsco/pvgpu/vdevice"
)

func main() {
	sockPath := flag.String("socket", "/tmp/pvgpu.sock", "unix socket user producers connect to")
	regionSize := flag.Int("region-size", shmregion.DefaultSize, "shared region size in bytes")
	ringSize := flag.Uint("ring-size", shmregion.DefaultRingSize, "command ring size in bytes")
	debug := flag.Bool("debug", false, "log every renderer call")
	flag.Parse()

	region, err := shmregion.New(*regionSize, uint32(*ringSize))
	if err != nil {
		log.Fatalf("pvgpu-hostd: %v", err)
	}
	defer region.Close()

	agent, err := kernelagent.New(region, kernelagent.Caps{
		MaxTextureSize:     16384,
		MaxRenderTargets:   8,
		MaxVertexStreams:   16,
		MaxConstantBuffers: 14,
	})
	if err != nil {
		log.Fatalf("pvgpu-hostd: %v", err)
	}
	cfg := vdevice.New(vdevice.DefaultIdentity(), agent, region)

	renderer := nullrenderer.New(*debug)
	consumer := hostconsumer.New(region, agent.Doorbell(), renderer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := consumer.Run(ctx); err != nil && ctx.Err() == nil {
			log.Printf("pvgpu-hostd: host consumer stopped: %v", err)
		}
	}()

	l, err := net.Listen("unix", *sockPath)
	if err != nil {
		log.Fatalf("pvgpu-hostd: listen %s: %v", *sockPath, err)
	}
	defer l.Close()

	go func() {
		<-ctx.Done()
		l.Close()
	}()

	log.Printf("pvgpu-hostd: listening on %s (vendor=%#04x device=%#04x region=%dMiB ring=%dKiB)",
		*sockPath, cfg.Identity.VendorID, cfg.Identity.DeviceID, *regionSize>>20, *ringSize>>10)

	for {
		conn, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			log.Printf("pvgpu-hostd: accept: %v", err)
			continue
		}
		srv := rpc.NewServer(conn, agent)
		go func() {
			if err := srv.Serve(); err != nil {
				log.Printf("pvgpu-hostd: connection closed: %v", err)
			}
		}()
	}

	<-ctx.Done()
	log.Print("pvgpu-hostd: shutting down")
}
