package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/xrce-agent/agent/pkg/config"
	"github.com/xrce-agent/agent/pkg/endpoint"
	"github.com/xrce-agent/agent/pkg/middleware/inmem"
	"github.com/xrce-agent/agent/pkg/processor"
	"github.com/xrce-agent/agent/pkg/readpipeline"
	"github.com/xrce-agent/agent/pkg/root"
	"github.com/xrce-agent/agent/pkg/scheduler"
	"github.com/xrce-agent/agent/pkg/server"
	"github.com/xrce-agent/agent/pkg/transport"

	_ "github.com/xrce-agent/agent/pkg/transport/can"
	_ "github.com/xrce-agent/agent/pkg/transport/serial"
	_ "github.com/xrce-agent/agent/pkg/transport/tcp"
	_ "github.com/xrce-agent/agent/pkg/transport/udp"
)

func main() {
	kind := flag.String("kind", "udp4", "transport kind: udp4, udp6, tcp4, tcp6, serial, pseudoterminal, can")
	addr := flag.String("addr", ":7400", "bind address (host:port, device path or CAN channel depending on kind)")
	configPath := flag.String("config", "", "path to an INI config file, overlaid on top of the defaults")
	domainID := flag.Uint("domain", 0, "DDS domain id")
	verbose := flag.Bool("verbose", false, "enable debug logging")
	flag.Parse()

	if *verbose {
		log.SetLevel(log.DebugLevel)
	}

	cfg := config.Defaults()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("failed to load config %q: %v", *configPath, err)
		}
		cfg = loaded
	}
	cfg.Transport = config.Transport(*kind)
	cfg.Address = *addr
	cfg.DomainID = uint16(*domainID)
	cfg.Verbose = cfg.Verbose || *verbose
	if cfg.Verbose {
		log.SetLevel(log.DebugLevel)
	}

	tr, err := transport.NewTransport(string(cfg.Transport), cfg.Address)
	if err != nil {
		log.Fatalf("failed to construct transport %q: %v", cfg.Transport, err)
	}

	mw := inmem.New()
	r := root.New(mw, cfg.DomainID)
	endpoints := endpoint.NewTable()
	in := scheduler.New(cfg.QueueDepth, cfg.QueuePolicy)
	out := scheduler.New(cfg.QueueDepth, cfg.QueuePolicy)

	reads := readpipeline.New(out, cfg.ReadPollTimeout)

	procCfg := processor.Config{
		DomainID:   cfg.DomainID,
		DefaultMTU: int(cfg.DefaultMTU),
		AgentInfo:  processor.AgentInfo{Name: cfg.AgentName},
	}
	proc := processor.New(r, endpoints, out, reads, procCfg)

	srvCfg := server.Config{
		RecvTimeout:       cfg.RecvTimeout,
		HeartbeatPeriod:   cfg.HeartbeatPeriod,
		RetransmitTimeout: cfg.RetransmitTimeout,
	}
	srv := server.New(tr, proc, r, endpoints, in, out, srvCfg)

	if err := srv.Start(); err != nil {
		log.Fatalf("failed to start agent: %v", err)
	}
	fmt.Printf("xrce-agentd listening on %s (%s), domain %d\n", cfg.Address, cfg.Transport, cfg.DomainID)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	if err := srv.Stop(); err != nil {
		log.Errorf("error stopping agent: %v", err)
	}
	srv.Wait()
}
