package dhcp

import "errors"

// Protocol errors. Datagrams that trip these are dropped and logged; they
// never take the server down.
var (
	// ErrShortPacket means the datagram is smaller than the fixed BOOTP
	// header plus magic cookie.
	ErrShortPacket = errors.New("dhcp: packet shorter than 240 bytes")

	// ErrBadCookie means bytes 236..240 are not the DHCP magic cookie.
	ErrBadCookie = errors.New("dhcp: bad magic cookie")

	// ErrBadOp means the op field is neither BOOTREQUEST nor BOOTREPLY.
	ErrBadOp = errors.New("dhcp: invalid op")

	// ErrNoMessageType means the option region carries no option 53.
	ErrNoMessageType = errors.New("dhcp: missing message type option")

	// ErrTruncatedOptions means the option region ran out before an END
	// octet terminated it.
	ErrTruncatedOptions = errors.New("dhcp: truncated option region")
)
