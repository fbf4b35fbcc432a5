package packettest

import (
	"net"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// CaptureFrame is one UDP datagram to write into a synthetic capture. At is
// the offset from the start of the capture.
type CaptureFrame struct {
	DstPort int
	Payload []byte
	At      time.Duration
}

// CaptureStart is the timestamp of the first frame in captures written by WriteCapture.
var CaptureStart = time.Date(2024, time.March, 2, 15, 0, 0, 0, time.UTC)

// WriteCapture writes frames as an Ethernet/IPv4/UDP pcap file at path, sent
// from 192.168.1.20:55000 to the broadcast address.
func WriteCapture(path string, frames []CaptureFrame) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := pcapgo.NewWriter(f)
	if err := w.WriteFileHeader(65536, layers.LinkTypeEthernet); err != nil {
		return err
	}

	for _, fr := range frames {
		eth := &layers.Ethernet{
			SrcMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 1},
			DstMAC:       net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff},
			EthernetType: layers.EthernetTypeIPv4,
		}
		ip := &layers.IPv4{
			Version:  4,
			TTL:      64,
			Protocol: layers.IPProtocolUDP,
			SrcIP:    net.IPv4(192, 168, 1, 20),
			DstIP:    net.IPv4(192, 168, 1, 255),
		}
		udp := &layers.UDP{SrcPort: 55000, DstPort: layers.UDPPort(fr.DstPort)}
		if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
			return err
		}

		buf := gopacket.NewSerializeBuffer()
		opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
		if err := gopacket.SerializeLayers(buf, opts, eth, ip, udp, gopacket.Payload(fr.Payload)); err != nil {
			return err
		}

		data := buf.Bytes()
		ci := gopacket.CaptureInfo{Timestamp: CaptureStart.Add(fr.At), CaptureLength: len(data), Length: len(data)}
		if err := w.WritePacket(ci, data); err != nil {
			return err
		}
	}
	return f.Close()
}
