package contract

import "testing"

func TestDecodeWholeText(t *testing.T) {
	c, ok := Decode(`{"completed_capability":"research","data":{"sources":3}}`)
	if !ok {
		t.Fatalf("expected contract")
	}
	if c.CompletedCapability != "research" {
		t.Fatalf("capability = %q", c.CompletedCapability)
	}
	if c.Data["sources"].(float64) != 3 {
		t.Fatalf("data = %v", c.Data)
	}
}

func TestDecodeEmbeddedInProse(t *testing.T) {
	raw := `I finished gathering the material you asked for.

{"completed_capability": "research", "data": {"summary": "done"}}

Let me know if you need more depth.`
	c, ok := Decode(raw)
	if !ok {
		t.Fatalf("expected contract in prose")
	}
	if c.CompletedCapability != "research" {
		t.Fatalf("capability = %q", c.CompletedCapability)
	}
}

func TestDecodeAbsence(t *testing.T) {
	cases := map[string]string{
		"empty":            "",
		"plain prose":      "still working on it, check back soon",
		"missing field":    `{"data":{"x":1}}`,
		"empty field":      `{"completed_capability":""}`,
		"blank field":      `{"completed_capability":"   "}`,
		"non-string field": `{"completed_capability":42}`,
		"unbalanced":       `{"completed_capability":"research"`,
		"stray closer":     `} not a contract {`,
	}
	for name, raw := range cases {
		if _, ok := Decode(raw); ok {
			t.Fatalf("%s: expected no contract from %q", name, raw)
		}
	}
}

func TestDecodeBracesInsideStrings(t *testing.T) {
	raw := `note: "{" is not a contract. {"completed_capability":"gmail","data":{"body":"see {draft} attached"}}`
	c, ok := Decode(raw)
	if !ok {
		t.Fatalf("expected contract despite braces in strings")
	}
	if c.CompletedCapability != "gmail" {
		t.Fatalf("capability = %q", c.CompletedCapability)
	}
}

func TestDecodeEscapedQuotes(t *testing.T) {
	raw := `{"completed_capability":"create_document","data":{"title":"a \"quoted\" name"}}`
	c, ok := Decode(raw)
	if !ok {
		t.Fatalf("expected contract with escaped quotes")
	}
	if c.Data["title"] != `a "quoted" name` {
		t.Fatalf("title = %v", c.Data["title"])
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	in := Contract{CompletedCapability: "research", Data: map[string]interface{}{"k": "v"}}
	s, err := Encode(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, ok := Decode("prefix text " + s + " suffix text")
	if !ok {
		t.Fatalf("expected round-tripped contract")
	}
	if out.CompletedCapability != in.CompletedCapability || out.Data["k"] != "v" {
		t.Fatalf("round trip mismatch: %+v", out)
	}
}

func TestFirstJSONObject(t *testing.T) {
	span, ok := FirstJSONObject(`before {"a":{"b":1}} after {"c":2}`)
	if !ok || span != `{"a":{"b":1}}` {
		t.Fatalf("span = %q, %t", span, ok)
	}
	if _, ok := FirstJSONObject("no braces here"); ok {
		t.Fatalf("expected no object")
	}
	if _, ok := FirstJSONObject(`{"never": "closes"`); ok {
		t.Fatalf("expected no object for unbalanced input")
	}
}
