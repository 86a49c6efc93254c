package main

import (
	"flag"
	"net"
	"os"

	"github.com/davecgh/go-spew/spew"
	"github.com/lab47/lsvd/logger"
	"github.com/lab47/vnic/features"
	"github.com/lab47/vnic/pci"
	"github.com/lab47/vnic/simdev"
	"github.com/lab47/vnic/virtio"
	"github.com/lab47/vnic/virtionet"
)

var (
	fPCIAddr    = flag.String("pci-addr", "", "pci address of the virtio-net function (0000:00:03.0)")
	fSimulate   = flag.Bool("simulate", false, "bring up a simulated device instead of real hardware")
	fConfig     = flag.String("config", "", "path to a yaml feature profile")
	fDump       = flag.Bool("dump", false, "dump capabilities and the negotiated state")
	fAnnounceIP = flag.String("announce-ip", "", "build a gratuitous arp for this address once up")
)

type summary struct {
	Addr       string
	DeviceID   uint16
	MAC        string
	Status     uint16
	MTU        uint16
	Advertised []string
	Negotiated []string
	History    []string
}

func simulated(log logger.Logger) *pci.Adapter {
	dev := simdev.New(log, simdev.Options{
		Features: features.Union(virtionet.DefaultRequired, features.Of(
			virtio.VIRTIO_F_VERSION_1,
			virtionet.VIRTIO_NET_F_MTU,
			virtionet.VIRTIO_NET_F_MRG_RXBUF,
		)),
		NetStatus: virtionet.VIRTIO_NET_S_LINK_UP,
	})

	return dev.Adapter()
}

func main() {
	flag.Parse()

	if *fPCIAddr == "" && !*fSimulate {
		panic("provide a pci address or -simulate")
	}

	log := logger.New(logger.Trace)

	cfg := virtionet.DefaultConfig()
	if *fConfig != "" {
		c, err := virtionet.LoadConfig(*fConfig)
		if err != nil {
			log.Error("error loading feature profile", "error", err)
			os.Exit(1)
		}
		cfg = c
	}

	var a *pci.Adapter

	if *fSimulate {
		a = simulated(log)
	} else {
		addr, err := pci.ParseAddress(*fPCIAddr)
		if err != nil {
			panic(err)
		}

		a, err = pci.Open(addr)
		if err != nil {
			log.Error("error opening device", "addr", *fPCIAddr, "error", err)
			os.Exit(1)
		}
	}

	if *fDump {
		caps, err := a.VirtioCaps()
		if err != nil {
			log.Error("error scanning capabilities", "error", err)
		}
		spew.Dump(caps)
	}

	d, err := virtionet.Init(log, a, cfg)
	if err != nil {
		log.Error("error initializing device", "error", err)
		a.Close()
		os.Exit(1)
	}

	defer d.Close()

	if *fDump {
		s := summary{
			Addr:       a.Addr.String(),
			DeviceID:   d.DeviceID(),
			MAC:        d.MAC().String(),
			Status:     d.DevStatus(),
			MTU:        d.Config().MTU(),
			Advertised: virtionet.NetFeatureNames.Names(d.Advertised()),
			Negotiated: virtionet.NetFeatureNames.Names(d.Features()),
		}

		for _, st := range d.History() {
			s.History = append(s.History, st.String())
		}

		spew.Dump(s)
	}

	if *fAnnounceIP != "" {
		ip := net.ParseIP(*fAnnounceIP)
		if ip == nil {
			panic("invalid announce ip")
		}

		frame, err := d.AnnouncementFrame(ip)
		if err != nil {
			log.Error("error building announcement", "error", err)
			return
		}

		log.Info("built announcement", "ip", ip.String(), "size", len(frame), "pending", d.AnnouncePending())

		if *fDump {
			spew.Dump(frame)
		}
	}
}
