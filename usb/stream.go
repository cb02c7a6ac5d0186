package usb

// TxByte is one beat of the device-to-link transmit stream. The link layer
// pulls beats from the engine while serializing a DATA packet; Last marks the
// end-of-packet boundary. A zero-length packet is a single beat with Last set
// and Empty set, carrying no payload byte.
type TxByte struct {
	Data  byte
	First bool // First payload byte of the packet
	Last  bool // Final beat of the packet
	Empty bool // Beat carries no payload (zero-length packet marker)
}

// StreamByte is one element of an application-facing byte stream, tagged with
// packet boundaries: First marks the first byte of a received packet, Last the
// final byte. Short-packet and record detection is the consumer's business.
type StreamByte struct {
	Data  byte
	First bool
	Last  bool
}
