// Package protocol implements the LiveGrapher wire codec: pure functions
// mapping between typed messages and the bit-packed, big-endian byte
// sequences exchanged between producers' clients and the host.
//
// Every frame begins with a single header octet: the top two bits select
// the packet type, the bottom six carry a DatasetId. Multi-byte fields on
// the wire are always big-endian (network byte order); this package
// never blits a Go struct onto the wire, since compiler padding and host
// endianness are not guaranteed to match the wire format.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"
)

// Sentinel errors returned by the decode functions in this package.
var (
	// ErrBadType is returned when a header's top two bits select an
	// unrecognized or reserved packet type.
	ErrBadType = errors.New("protocol: bad packet type")
	// ErrBadLength is returned when a CatalogEntry's name_len is zero.
	ErrBadLength = errors.New("protocol: bad length")
	// ErrShortRead is returned when fewer bytes are available than the
	// frame requires. Callers reading a live stream treat this as
	// "need more bytes"; callers that just hit EOF treat it as fatal.
	ErrShortRead = errors.New("protocol: short read")
)

// ClientPacketType is the 2-bit packet type a client sends to the host.
type ClientPacketType uint8

const (
	Subscribe   ClientPacketType = 0b00
	Unsubscribe ClientPacketType = 0b01
	ListRequest ClientPacketType = 0b10
	// 0b11 is reserved; decoders reject it with ErrBadType.
)

// HostPacketType is the 2-bit packet type the host sends to a client.
type HostPacketType uint8

const (
	DataPoint    HostPacketType = 0b00
	CatalogEntry HostPacketType = 0b01
)

const (
	// IDMask is the correct 6-bit mask for the DatasetId field. An
	// earlier implementation of this protocol used the arithmetically
	// wrong 0x2F in several places; this package defaults to the
	// correct mask.
	IDMask byte = 0x3F
	// IDMaskCompat reproduces that bug, for interop testing against a
	// pre-existing client or host built against the buggy mask. Off by
	// default; see Options.CompatBuggyIDMask at the engine layer.
	IDMaskCompat byte = 0x2F

	// MaxDatasetID is the largest representable DatasetId (6 bits).
	MaxDatasetID = 63

	// DataPointFrameSize is the fixed wire size of a DataPoint frame:
	// 1 header octet + 8 bytes time_ms + 4 bytes value.
	DataPointFrameSize = 13

	// MaxNameLen is the largest encodable dataset name length.
	MaxNameLen = 255

	// maxCatalogEntryFrameSize bounds the scratch buffer pool: header +
	// name_len octet + longest name + is_last octet.
	maxCatalogEntryFrameSize = 1 + 1 + MaxNameLen + 1
)

// scratchPool holds reusable byte slices sized for the largest frame
// this package ever encodes, avoiding a fresh allocation on every
// catalog entry (EncodeDataPoint allocates its frame fresh, since the
// caller keeps it). A single size class is enough here,
// since frames are bounded (unlike arbitrary WebSocket payloads).
var scratchPool = sync.Pool{
	New: func() any {
		buf := make([]byte, maxCatalogEntryFrameSize)
		return &buf
	},
}

func getScratch(n int) []byte {
	bp := scratchPool.Get().(*[]byte)
	buf := *bp
	if cap(buf) < n {
		buf = make([]byte, n)
	}
	return buf[:n]
}

func putScratch(buf []byte) {
	// Only return slices back at full pooled capacity so the pool
	// stays one size class; smaller allocations made by getScratch's
	// fallback are simply left for the GC.
	if cap(buf) < maxCatalogEntryFrameSize {
		return
	}
	b := buf[:maxCatalogEntryFrameSize]
	scratchPool.Put(&b)
}

// Header packs a packet type (top two bits) and a DatasetId (bottom six
// bits, masked with mask) into one octet.
func Header(packetType, id uint8, mask byte) byte {
	return (packetType&0b11)<<6 | (id & mask)
}

// SplitHeader extracts the raw 2-bit type and masked id from a header
// octet.
func SplitHeader(b byte, mask byte) (packetType uint8, id uint8) {
	return (b >> 6) & 0b11, b & mask
}

// DecodeClientHeader interprets a single header byte received from a
// client and returns the packet type and target DatasetId. Subscribe and
// Unsubscribe carry a meaningful id; ListRequest's id field is ignored by
// the caller (encoders must set it to 0) but is still returned for
// completeness.
func DecodeClientHeader(b byte, mask byte) (ClientPacketType, uint8, error) {
	t, id := SplitHeader(b, mask)
	switch ClientPacketType(t) {
	case Subscribe, Unsubscribe, ListRequest:
		return ClientPacketType(t), id, nil
	default:
		return 0, 0, ErrBadType
	}
}

// EncodeSubscribe encodes a Subscribe(id) client frame (a single octet).
func EncodeSubscribe(id uint8, mask byte) byte {
	return Header(uint8(Subscribe), id, mask)
}

// EncodeUnsubscribe encodes an Unsubscribe(id) client frame.
func EncodeUnsubscribe(id uint8, mask byte) byte {
	return Header(uint8(Unsubscribe), id, mask)
}

// EncodeListRequest encodes a ListRequest client frame. The id field is
// ignored on decode but encoders MUST set it to 0.
func EncodeListRequest() byte {
	return Header(uint8(ListRequest), 0, IDMask)
}

// EncodeDataPoint encodes a host→client DataPoint frame: header, then
// big-endian time_ms (u64), then the big-endian byte pattern of value's
// IEEE-754 bit representation. The returned slice is exactly
// DataPointFrameSize bytes and is safe to append directly to a write
// queue (its backing array is not retained by this package after
// return).
func EncodeDataPoint(id uint8, timeMs uint64, value float32, mask byte) []byte {
	buf := make([]byte, DataPointFrameSize)
	buf[0] = Header(uint8(DataPoint), id, mask)
	binary.BigEndian.PutUint64(buf[1:9], timeMs)
	binary.BigEndian.PutUint32(buf[9:13], math.Float32bits(value))
	return buf
}

// DecodeDataPoint decodes a DataPoint frame. buf must be exactly
// DataPointFrameSize bytes and already identified as type DataPoint by
// its header (the header octet is re-parsed here for the id).
func DecodeDataPoint(buf []byte, mask byte) (id uint8, timeMs uint64, value float32, err error) {
	if len(buf) < DataPointFrameSize {
		return 0, 0, 0, ErrShortRead
	}
	t, decodedID := SplitHeader(buf[0], mask)
	if HostPacketType(t) != DataPoint {
		return 0, 0, 0, ErrBadType
	}
	timeMs = binary.BigEndian.Uint64(buf[1:9])
	value = math.Float32frombits(binary.BigEndian.Uint32(buf[9:13]))
	return decodedID, timeMs, value, nil
}

// EncodeCatalogEntry encodes one CatalogEntry frame into a pooled
// scratch buffer. The caller must copy the returned bytes (e.g. by
// appending them to a client's write queue) before calling
// ReleaseCatalogScratch, after which the slice must not be read again.
func EncodeCatalogEntry(id uint8, name string, isLast bool, mask byte) ([]byte, error) {
	if len(name) == 0 {
		return nil, ErrBadLength
	}
	if len(name) > MaxNameLen {
		return nil, fmt.Errorf("livegrapher: protocol: name %q exceeds %d bytes", name, MaxNameLen)
	}

	frameLen := 1 + 1 + len(name) + 1
	buf := getScratch(frameLen)
	buf[0] = Header(uint8(CatalogEntry), id, mask)
	buf[1] = byte(len(name))
	copy(buf[2:2+len(name)], name)
	if isLast {
		buf[2+len(name)] = 1
	} else {
		buf[2+len(name)] = 0
	}
	return buf, nil
}

// ReleaseCatalogScratch returns a buffer obtained from EncodeCatalogEntry
// to the scratch pool. Safe to call with any slice; only pooled-capacity
// slices are actually retained.
func ReleaseCatalogScratch(buf []byte) {
	putScratch(buf)
}

// DecodeCatalogEntry decodes one CatalogEntry frame from the front of
// buf. It returns the number of bytes consumed so the caller can advance
// past it and decode the next entry in a burst. If buf does not yet
// contain a complete frame, it returns ErrShortRead and consumed == 0.
func DecodeCatalogEntry(buf []byte, mask byte) (id uint8, name string, isLast bool, consumed int, err error) {
	if len(buf) < 1 {
		return 0, "", false, 0, ErrShortRead
	}
	t, decodedID := SplitHeader(buf[0], mask)
	if HostPacketType(t) != CatalogEntry {
		return 0, "", false, 0, ErrBadType
	}
	if len(buf) < 2 {
		return 0, "", false, 0, ErrShortRead
	}
	nameLen := int(buf[1])
	if nameLen == 0 {
		return 0, "", false, 0, ErrBadLength
	}
	total := 2 + nameLen + 1
	if len(buf) < total {
		return 0, "", false, 0, ErrShortRead
	}
	name = string(buf[2 : 2+nameLen])
	isLast = buf[2+nameLen] != 0
	return decodedID, name, isLast, total, nil
}
