//go:build pcap

// Command scanhead-pcap-replay replays a captured PCAP file of scan head
// data-socket traffic over UDP, preserving original packet timing, so the
// packet assembler and the rest of the ingest path can be exercised against
// real captures without a physical scan head attached.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"

	"github.com/scanhead-sdk/scanhead-go/internal/logging"
)

func main() {
	pcapFile := flag.String("pcap", "", "path to a pcap/pcapng capture of scan head data traffic")
	destAddr := flag.String("dest", "127.0.0.1:12348", "UDP destination to replay packets to")
	sourcePort := flag.Int("source-port", 0, "only replay UDP packets whose source port matches (0 = any)")
	speed := flag.Float64("speed", 1.0, "replay speed multiplier (1.0 = real time, 0 = as fast as possible)")
	flag.Parse()

	if *pcapFile == "" {
		fmt.Fprintln(os.Stderr, "scanhead-pcap-replay: -pcap is required")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := replay(ctx, *pcapFile, *destAddr, *sourcePort, *speed); err != nil {
		fmt.Fprintf(os.Stderr, "scanhead-pcap-replay: %v\n", err)
		os.Exit(1)
	}
}

func replay(ctx context.Context, pcapFile, destAddr string, sourcePort int, speed float64) error {
	handle, err := pcap.OpenOffline(pcapFile)
	if err != nil {
		return fmt.Errorf("opening capture: %w", err)
	}
	defer handle.Close()

	if sourcePort != 0 {
		filter := fmt.Sprintf("udp src port %d", sourcePort)
		if err := handle.SetBPFFilter(filter); err != nil {
			return fmt.Errorf("setting bpf filter %q: %w", filter, err)
		}
	}

	udpAddr, err := net.ResolveUDPAddr("udp", destAddr)
	if err != nil {
		return fmt.Errorf("resolving destination: %w", err)
	}
	conn, err := net.DialUDP("udp", nil, udpAddr)
	if err != nil {
		return fmt.Errorf("dialing destination: %w", err)
	}
	defer conn.Close()

	source := gopacket.NewPacketSource(handle, handle.LinkType())
	var lastCapture time.Time
	packetCount, byteCount := 0, 0
	started := time.Now()

	for {
		select {
		case <-ctx.Done():
			logging.Logf("scanhead-pcap-replay: stopped after %d packets (%d bytes)", packetCount, byteCount)
			return nil
		case packet, ok := <-source.Packets():
			if !ok {
				logging.Logf("scanhead-pcap-replay: replay complete: %d packets (%d bytes) in %s",
					packetCount, byteCount, time.Since(started))
				return nil
			}

			udpLayer := packet.Layer(layers.LayerTypeUDP)
			if udpLayer == nil {
				continue
			}
			udp := udpLayer.(*layers.UDP)
			if len(udp.Payload) == 0 {
				continue
			}

			captureTime := packet.Metadata().Timestamp
			if speed > 0 && !lastCapture.IsZero() {
				wait := time.Duration(float64(captureTime.Sub(lastCapture)) / speed)
				if wait > 0 {
					select {
					case <-ctx.Done():
						return nil
					case <-time.After(wait):
					}
				}
			}
			lastCapture = captureTime

			if _, err := conn.Write(udp.Payload); err != nil {
				return fmt.Errorf("writing replayed packet %d: %w", packetCount, err)
			}
			packetCount++
			byteCount += len(udp.Payload)
		}
	}
}
