package jsonutil

import "testing"

type payload struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

func TestUnmarshalFlexDirect(t *testing.T) {
	var p payload
	if err := UnmarshalFlex([]byte(`{"type":"action","content":"x"}`), &p); err != nil {
		t.Fatalf("direct: %v", err)
	}
	if p.Type != "action" || p.Content != "x" {
		t.Fatalf("unexpected payload: %+v", p)
	}
}

func TestUnmarshalFlexQuotedPayload(t *testing.T) {
	raw := `"{\"type\":\"action\",\"content\":\"hi\"}"`
	var p payload
	if err := UnmarshalFlex([]byte(raw), &p); err != nil {
		t.Fatalf("quoted: %v", err)
	}
	if p.Type != "action" || p.Content != "hi" {
		t.Fatalf("unexpected payload: %+v", p)
	}
}

func TestUnmarshalFlexGarbage(t *testing.T) {
	var p payload
	if err := UnmarshalFlex([]byte(`not json at all`), &p); err == nil {
		t.Fatalf("expected error for garbage input")
	}
}

func TestMarshalNoEscape(t *testing.T) {
	out, err := MarshalNoEscape(map[string]string{"cmd": "a > b && c < d"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != `{"cmd":"a > b && c < d"}` {
		t.Fatalf("html escaping leaked into output: %s", out)
	}
}
