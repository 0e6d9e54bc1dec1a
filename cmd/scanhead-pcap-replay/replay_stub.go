//go:build !pcap

// Command scanhead-pcap-replay requires libpcap. Rebuild with -tags=pcap.
package main

import (
	"fmt"
	"os"
)

func main() {
	fmt.Fprintln(os.Stderr, "scanhead-pcap-replay: pcap support not enabled, rebuild with -tags=pcap")
	os.Exit(1)
}
