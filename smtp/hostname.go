package smtp

import (
	"net"
	"os"
	"strings"
	"sync"
)

var (
	hostnameOnce sync.Once
	hostnameVal  string
)

// Hostname returns the machine's fully qualified domain name, falling
// back to the bare hostname when it cannot be canonicalized.
func Hostname() string {
	hostnameOnce.Do(func() {
		hostnameVal = lookupHostname()
	})
	return hostnameVal
}

func lookupHostname() string {
	name, err := os.Hostname()
	if err != nil {
		return "localhost"
	}
	cname, err := net.LookupCNAME(name)
	if err != nil || cname == "" {
		return name
	}
	return strings.TrimSuffix(cname, ".")
}
