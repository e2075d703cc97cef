package ringhook

import (
	"regexp"

	sockaddr "github.com/hashicorp/go-sockaddr"
)

// DefaultInterfacePattern matches Ethernet-like interface names.
var DefaultInterfacePattern = regexp.MustCompile(`^(?:en|eth)\d$`)

// AddressProbe guesses the address a node should advertise when it was not
// given any config.
type AddressProbe interface {
	ProbeAddress() (string, bool)
}

// ProbeFunc adapts a function to `AddressProbe`.
type ProbeFunc func() (string, bool)

func (fn ProbeFunc) ProbeAddress() (string, bool) {
	return fn()
}

// InterfaceProbe returns the first non-loopback IPv4 address found on an
// interface whose name matches Pattern.
type InterfaceProbe struct {
	// Pattern defaults to `DefaultInterfacePattern`.
	Pattern *regexp.Regexp

	// interfaces is replaced in tests.
	interfaces func() (sockaddr.IfAddrs, error)
}

func (p InterfaceProbe) ProbeAddress() (string, bool) {
	pattern := p.Pattern
	if pattern == nil {
		pattern = DefaultInterfacePattern
	}

	list := p.interfaces
	if list == nil {
		list = sockaddr.GetAllInterfaces
	}

	ifAddrs, err := list()
	if err != nil {
		return "", false
	}

	for _, ifAddr := range ifAddrs {
		if !pattern.MatchString(ifAddr.Name) {
			continue
		}
		if ifAddr.SockAddr == nil || ifAddr.SockAddr.Type() != sockaddr.TypeIPv4 {
			continue
		}
		ipv4 := sockaddr.ToIPv4Addr(ifAddr.SockAddr)
		if ipv4 == nil {
			continue
		}
		ip := ipv4.NetIP()
		if ip == nil || ip.IsLoopback() || ip.IsUnspecified() {
			continue
		}
		return ip.String(), true
	}

	return "", false
}
