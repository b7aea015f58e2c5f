package protocol

import (
	"testing"
)

// FuzzDecode feeds arbitrary bytes to the decoder. It must never panic, and
// anything it accepts must re-encode under the same tag.
func FuzzDecode(f *testing.F) {
	f.Add([]byte(`{"type":"ping","data":{},"timestamp":1}`))
	f.Add([]byte(`{"type":"join_lobby","data":{"lobby_code":"ABC123","character":{"class":"mage"}}}`))
	f.Add([]byte(`{"type":"player_update","data":{"position":[1.5,2],"velocity":[0,0],"health":80}}`))
	f.Add([]byte(`{"type":"reconnect","data":{"lobby_code":"X","player_id":"p1"}}`))
	f.Add([]byte(`{"type":"lobby_info","data":{"players":[{"id":"a","ready":true}]}}`))
	f.Add([]byte(`{"type":7}`))
	f.Add([]byte(`[]`))
	f.Add([]byte{0xff, 0xfe, 0x00})

	f.Fuzz(func(t *testing.T, data []byte) {
		typ, msg := Decode(data)
		if msg == nil {
			if typ != "" {
				t.Fatalf("nil payload with tag %q", typ)
			}
			return
		}
		if msg.Type() != typ {
			t.Fatalf("payload type %q under tag %q", msg.Type(), typ)
		}
		frame, err := Encode(msg)
		if err != nil {
			t.Fatalf("accepted %q but cannot re-encode: %v", typ, err)
		}
		// escaping can grow a frame past the read limit
		if len(frame) > MaxFrameSize {
			return
		}
		if again, _ := Decode(frame); again != typ {
			t.Fatalf("re-encoded frame decodes as %q, want %q", again, typ)
		}
	})
}

// FuzzDecodeEnvelope checks the error-returning decoder agrees with Decode
func FuzzDecodeEnvelope(f *testing.F) {
	f.Add([]byte(`{"type":"chat","data":{"text":"hi"}}`))
	f.Add([]byte(`{"type":"chat","data":"hi"}`))
	f.Add([]byte(`{`))

	f.Fuzz(func(t *testing.T, data []byte) {
		_, msg, err := DecodeEnvelope(data)
		_, plain := Decode(data)
		if (err == nil) != (plain != nil) {
			t.Fatalf("DecodeEnvelope err=%v but Decode payload=%v", err, plain)
		}
		if err != nil && msg != nil {
			t.Fatalf("payload returned alongside error %v", err)
		}
	})
}
