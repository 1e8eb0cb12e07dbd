package serviceaddr

import (
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
)

var (
	once   sync.Once
	cached string
	port   string
)

// Configure sets the port reported by Get. It has no effect after the first Get.
func Configure(listenAddr string) {
	_, p, err := net.SplitHostPort(strings.TrimSpace(listenAddr))
	if err != nil {
		p = strings.TrimPrefix(strings.TrimSpace(listenAddr), ":")
	}
	port = p
}

// Get returns "hostname/ip:port" for this instance. It is computed once.
func Get() string {
	once.Do(func() {
		cached = Format(hostname(), firstIP(), port)
	})
	return cached
}

func Format(host, ip, port string) string {
	return fmt.Sprintf("%s/%s:%s", host, ip, port)
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return "unknown host name"
	}
	return h
}

func firstIP() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "unknown IP address"
	}
	for _, a := range addrs {
		ipnet, ok := a.(*net.IPNet)
		if !ok || ipnet.IP.IsLoopback() {
			continue
		}
		if v4 := ipnet.IP.To4(); v4 != nil {
			return v4.String()
		}
	}
	return "127.0.0.1"
}
