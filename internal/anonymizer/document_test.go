package anonymizer

import (
	"encoding/json"
	"testing"
)

func TestDecodeDocument(t *testing.T) {
	t.Run("PreservesKeyOrder", func(t *testing.T) {
		raw := []byte(`{"zebra":1,"apple":2,"mango":3}`)
		value, err := DecodeDocument(raw)
		if err != nil {
			t.Fatal(err)
		}
		obj, ok := value.(*Object)
		if !ok {
			t.Fatalf("Expected *Object, got %T", value)
		}
		keys := []string{}
		for _, m := range obj.Members {
			keys = append(keys, m.Key)
		}
		want := []string{"zebra", "apple", "mango"}
		for i := range want {
			if keys[i] != want[i] {
				t.Fatalf("Key order lost: %v", keys)
			}
		}
	})

	t.Run("NumbersKeepSourceText", func(t *testing.T) {
		value, err := DecodeDocument([]byte(`[1.50, 30, 1e3]`))
		if err != nil {
			t.Fatal(err)
		}
		arr := value.([]any)
		if arr[0].(json.Number).String() != "1.50" {
			t.Errorf("Number text changed: %v", arr[0])
		}
	})

	t.Run("ScalarRoot", func(t *testing.T) {
		value, err := DecodeDocument([]byte(`"hello"`))
		if err != nil {
			t.Fatal(err)
		}
		if value != "hello" {
			t.Errorf("Wrong scalar: %v", value)
		}
	})

	t.Run("RejectsTrailingContent", func(t *testing.T) {
		if _, err := DecodeDocument([]byte(`{"a":1} {"b":2}`)); err == nil {
			t.Error("Trailing content should be rejected")
		}
	})

	t.Run("RejectsInvalidJSON", func(t *testing.T) {
		if _, err := DecodeDocument([]byte(`{"a":`)); err == nil {
			t.Error("Truncated JSON should be rejected")
		}
	})
}

func TestEncodeDocument(t *testing.T) {
	t.Run("RoundTripIdentity", func(t *testing.T) {
		raw := []byte(`{"z":"v","a":[1,true,null,"s"],"n":{"inner":1.25}}`)
		value, err := DecodeDocument(raw)
		if err != nil {
			t.Fatal(err)
		}
		out, err := EncodeDocument(value)
		if err != nil {
			t.Fatal(err)
		}
		if string(out) != string(raw) {
			t.Errorf("Round trip changed document:\n in: %s\nout: %s", raw, out)
		}
	})

	t.Run("EscapesStrings", func(t *testing.T) {
		value, err := DecodeDocument([]byte(`{"k":"line\nbreak \"quoted\""}`))
		if err != nil {
			t.Fatal(err)
		}
		out, err := EncodeDocument(value)
		if err != nil {
			t.Fatal(err)
		}
		reparsed, err := DecodeDocument(out)
		if err != nil {
			t.Fatalf("Re-encoded document is invalid JSON: %v", err)
		}
		obj := reparsed.(*Object)
		if obj.Members[0].Value != "line\nbreak \"quoted\"" {
			t.Errorf("Escaping broken: %q", obj.Members[0].Value)
		}
	})
}
