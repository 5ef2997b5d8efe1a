// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package net

import (
	"net/url"
	"strconv"
)

var noopAddressAndPort = AddressAndPort{}

type AddressAndPort struct {
	Address string
	Port    int
}

type AddressAndPortExtractor[REQUEST any] interface {
	Extract(request REQUEST) AddressAndPort
}

type NoopAddressAndPortExtractor[REQUEST any] struct{}

func (*NoopAddressAndPortExtractor[REQUEST]) Extract(_ REQUEST) AddressAndPort {
	return noopAddressAndPort
}

// ServerAttributesGetter reads the logical server address of a request.
type ServerAttributesGetter[REQUEST any] interface {
	GetServerAddress(request REQUEST) string
	GetServerPort(request REQUEST) int
}

type ServerAddressAndPortExtractor[REQUEST any] struct {
	getter            ServerAttributesGetter[REQUEST]
	fallbackExtractor AddressAndPortExtractor[REQUEST]
}

func (s *ServerAddressAndPortExtractor[REQUEST]) Extract(request REQUEST) AddressAndPort {
	address := s.getter.GetServerAddress(request)
	port := s.getter.GetServerPort(request)
	if address == "" && port == 0 && s.fallbackExtractor != nil {
		return s.fallbackExtractor.Extract(request)
	}
	return AddressAndPort{
		Address: address,
		Port:    port,
	}
}

// URLAddressAndPortExtractor derives the address from a request URL. The
// port defaults to the scheme's well known port.
type URLAddressAndPortExtractor[REQUEST any] struct {
	URL func(request REQUEST) string
}

func (u *URLAddressAndPortExtractor[REQUEST]) Extract(request REQUEST) AddressAndPort {
	if u.URL == nil {
		return noopAddressAndPort
	}
	parsed, err := url.Parse(u.URL(request))
	if err != nil || parsed.Hostname() == "" {
		return noopAddressAndPort
	}
	port, err := strconv.Atoi(parsed.Port())
	if err != nil {
		port = defaultPort(parsed.Scheme)
	}
	return AddressAndPort{
		Address: parsed.Hostname(),
		Port:    port,
	}
}

func defaultPort(scheme string) int {
	switch scheme {
	case "http":
		return 80
	case "https":
		return 443
	default:
		return 0
	}
}
