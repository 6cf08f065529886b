package protocol

import (
	"errors"
	"testing"
)

func TestHeaderRoundTrip(t *testing.T) {
	tests := []struct {
		name       string
		packetType uint8
		id         uint8
		mask       byte
	}{
		{"subscribe id 0", uint8(Subscribe), 0, IDMask},
		{"unsubscribe id 63", uint8(Unsubscribe), 63, IDMask},
		{"list request", uint8(ListRequest), 0, IDMask},
		{"data point id 37 compat mask", uint8(DataPoint), 37, IDMaskCompat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := Header(tt.packetType, tt.id, tt.mask)
			gotType, gotID := SplitHeader(h, tt.mask)
			if gotType != tt.packetType&0b11 {
				t.Errorf("type = %d, want %d", gotType, tt.packetType&0b11)
			}
			if gotID != tt.id&tt.mask {
				t.Errorf("id = %d, want %d", gotID, tt.id&tt.mask)
			}
		})
	}
}

func TestDecodeClientHeader_BadType(t *testing.T) {
	// Top two bits = 0b11 (reserved).
	h := byte(0xC0)
	_, _, err := DecodeClientHeader(h, IDMask)
	if !errors.Is(err, ErrBadType) {
		t.Fatalf("err = %v, want ErrBadType", err)
	}
}

func TestDecodeClientHeader_AllValidTypes(t *testing.T) {
	for _, pt := range []ClientPacketType{Subscribe, Unsubscribe, ListRequest} {
		h := Header(uint8(pt), 5, IDMask)
		got, id, err := DecodeClientHeader(h, IDMask)
		if err != nil {
			t.Fatalf("unexpected error for type %d: %v", pt, err)
		}
		if got != pt {
			t.Errorf("type = %d, want %d", got, pt)
		}
		if id != 5 {
			t.Errorf("id = %d, want 5", id)
		}
	}
}

func TestDataPointRoundTrip(t *testing.T) {
	buf := EncodeDataPoint(5, 1000, 1.5, IDMask)
	if len(buf) != DataPointFrameSize {
		t.Fatalf("len = %d, want %d", len(buf), DataPointFrameSize)
	}

	// 1.5f encodes as big-endian 0x3FC00000.
	want := []byte{
		Header(uint8(DataPoint), 5, IDMask),
		0, 0, 0, 0, 0, 0, 0x03, 0xE8, // time_ms = 1000 BE
		0x3F, 0xC0, 0x00, 0x00, // 1.5f BE
	}
	for i := range want {
		if buf[i] != want[i] {
			t.Fatalf("byte %d = %#x, want %#x", i, buf[i], want[i])
		}
	}

	id, timeMs, value, err := DecodeDataPoint(buf, IDMask)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if id != 5 || timeMs != 1000 || value != 1.5 {
		t.Fatalf("got (%d, %d, %v), want (5, 1000, 1.5)", id, timeMs, value)
	}
}

func TestDecodeDataPoint_ShortRead(t *testing.T) {
	buf := EncodeDataPoint(0, 0, 0, IDMask)
	_, _, _, err := DecodeDataPoint(buf[:5], IDMask)
	if !errors.Is(err, ErrShortRead) {
		t.Fatalf("err = %v, want ErrShortRead", err)
	}
}

func TestCatalogEntryRoundTrip(t *testing.T) {
	buf, err := EncodeCatalogEntry(1, "foo", true, IDMask)
	if err != nil {
		t.Fatalf("encode error: %v", err)
	}
	defer ReleaseCatalogScratch(buf)

	want := []byte{
		Header(uint8(CatalogEntry), 1, IDMask),
		3, 'f', 'o', 'o', 1,
	}
	if len(buf) != len(want) {
		t.Fatalf("len = %d, want %d", len(buf), len(want))
	}
	for i := range want {
		if buf[i] != want[i] {
			t.Fatalf("byte %d = %#x, want %#x", i, buf[i], want[i])
		}
	}

	id, name, isLast, consumed, err := DecodeCatalogEntry(buf, IDMask)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if id != 1 || name != "foo" || !isLast || consumed != len(buf) {
		t.Fatalf("got (%d, %q, %v, %d), want (1, foo, true, %d)", id, name, isLast, consumed, len(buf))
	}
}

func TestCatalogEntryBurst(t *testing.T) {
	a, err := EncodeCatalogEntry(1, "alpha", false, IDMask)
	if err != nil {
		t.Fatal(err)
	}
	b, err := EncodeCatalogEntry(0, "beta", true, IDMask)
	if err != nil {
		t.Fatal(err)
	}

	burst := append(append([]byte{}, a...), b...)
	ReleaseCatalogScratch(a)
	ReleaseCatalogScratch(b)

	id1, name1, last1, n1, err := DecodeCatalogEntry(burst, IDMask)
	if err != nil {
		t.Fatal(err)
	}
	if id1 != 1 || name1 != "alpha" || last1 {
		t.Fatalf("first entry wrong: %d %q %v", id1, name1, last1)
	}

	id2, name2, last2, n2, err := DecodeCatalogEntry(burst[n1:], IDMask)
	if err != nil {
		t.Fatal(err)
	}
	if id2 != 0 || name2 != "beta" || !last2 {
		t.Fatalf("second entry wrong: %d %q %v", id2, name2, last2)
	}
	if n1+n2 != len(burst) {
		t.Fatalf("consumed %d+%d, want %d", n1, n2, len(burst))
	}
}

func TestEncodeCatalogEntry_EmptyName(t *testing.T) {
	_, err := EncodeCatalogEntry(0, "", false, IDMask)
	if !errors.Is(err, ErrBadLength) {
		t.Fatalf("err = %v, want ErrBadLength", err)
	}
}

func TestDecodeCatalogEntry_ShortRead(t *testing.T) {
	buf, _ := EncodeCatalogEntry(2, "hello", true, IDMask)
	defer ReleaseCatalogScratch(buf)

	_, _, _, _, err := DecodeCatalogEntry(buf[:3], IDMask)
	if !errors.Is(err, ErrShortRead) {
		t.Fatalf("err = %v, want ErrShortRead", err)
	}
}

func TestIDMaskTruncatesToSixBits(t *testing.T) {
	h := Header(uint8(Subscribe), 0xFF, IDMask)
	_, id := SplitHeader(h, IDMask)
	if id != 0x3F {
		t.Fatalf("id = %#x, want 0x3F", id)
	}
}

func TestCompatMaskMatchesOriginalBug(t *testing.T) {
	// 0x2F == 0b0010_1111: bit 4 (0x10) is lost under the buggy mask.
	h := Header(uint8(Subscribe), 0x1F, IDMaskCompat)
	_, id := SplitHeader(h, IDMaskCompat)
	if id != 0x0F {
		t.Fatalf("id = %#x, want 0x0F under compat mask", id)
	}
}
