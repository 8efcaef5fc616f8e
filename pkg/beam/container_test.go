package beam

import (
	"errors"
	"testing"
)

func TestParseContainer(t *testing.T) {
	c, err := parseContainer(minimalModule())
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	for _, name := range []string{"AtU8", "Code", "ImpT", "ExpT"} {
		if _, ok := c.chunk(name); !ok {
			t.Errorf("chunk %q missing", name)
		}
	}
}

func TestParseContainerOddChunkPadding(t *testing.T) {
	// A 5-byte chunk payload forces 3 bytes of padding before the next
	// chunk header.
	data := buildContainer(
		chunk("AtU8", atomPayload("abc")), // 4+1+3 = 8 bytes, no padding
		chunk("StrT", []byte("hello")),    // 5 bytes, 3 padding
		chunk("Code", codePayload(0, 0, []byte{19})),
		chunk("ImpT", triplePayload()),
		chunk("ExpT", triplePayload()),
	)
	c, err := parseContainer(data)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	payload, ok := c.chunk("StrT")
	if !ok || string(payload) != "hello" {
		t.Errorf("StrT payload: got %q", payload)
	}
	if _, ok := c.chunk("ExpT"); !ok {
		t.Error("chunk after padded chunk not found")
	}
}

func TestParseContainerErrors(t *testing.T) {
	valid := minimalModule()

	badForm := append([]byte(nil), valid...)
	badForm[0] = 'X'

	badBeam := append([]byte(nil), valid...)
	badBeam[8] = 'X'

	badLength := append([]byte(nil), valid...)
	badLength[4] = 0xff // declared form length beyond the buffer

	overrun := buildContainer(chunk("AtU8", atomPayload("m")))
	// Corrupt the AtU8 size so the chunk runs past the buffer end.
	overrun[16] = 0xff

	cases := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"short", []byte("FOR1")},
		{"bad form magic", badForm},
		{"bad beam magic", badBeam},
		{"bad form length", badLength},
		{"chunk overrun", overrun},
		{"no atom chunk", buildContainer(
			chunk("Code", codePayload(0, 0, nil)),
			chunk("ImpT", triplePayload()),
			chunk("ExpT", triplePayload()),
		)},
		{"no code chunk", buildContainer(
			chunk("AtU8", atomPayload("m")),
			chunk("ImpT", triplePayload()),
			chunk("ExpT", triplePayload()),
		)},
	}
	for _, c := range cases {
		if _, err := parseContainer(c.data); !errors.Is(err, ErrMalformedContainer) {
			t.Errorf("%s: got error %v, want ErrMalformedContainer", c.name, err)
		}
	}
}

func TestAtomChunkPrefersUtf8(t *testing.T) {
	data := buildContainer(
		chunk("Atom", atomPayload("legacy")),
		chunk("AtU8", atomPayload("m")),
		chunk("Code", codePayload(0, 0, []byte{19})),
		chunk("ImpT", triplePayload()),
		chunk("ExpT", triplePayload()),
	)
	m, err := Decode(data)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if got := m.Name(); got != "m" {
		t.Errorf("module name: got %q, want the AtU8 entry %q", got, "m")
	}
}

func TestLegacyAtomChunk(t *testing.T) {
	data := buildContainer(
		chunk("Atom", atomPayload("legacy")),
		chunk("Code", codePayload(0, 0, []byte{19})),
		chunk("ImpT", triplePayload()),
		chunk("ExpT", triplePayload()),
	)
	m, err := Decode(data)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if got := m.Name(); got != "legacy" {
		t.Errorf("module name: got %q, want %q", got, "legacy")
	}
}
