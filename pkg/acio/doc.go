// Package acio implements the ACIO multi-drop serial bus spoken by card
// reader nodes.
package acio

// A frame on the wire is
//
//	SOF | escaped(message) | escaped(checksum)
//
// where message is addr, code (high byte first), seq, nbytes followed by
// nbytes of payload. A message or checksum byte equal to SOF or ESC is sent
// as ESC followed by its complement. The checksum is the 8-bit sum of the
// unescaped message bytes.
//
// The bus is half-duplex. The host sends a request and the addressed node
// answers with the same code and sequence number. There is never more than
// one request outstanding.
//
// Producer: host (this package)
// Consumer: reader nodes, addressed 1..N after enumeration
