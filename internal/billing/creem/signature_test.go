package creem

import "testing"

func TestVerifySignature(t *testing.T) {
	secret := "whsec_test"
	body := []byte(`{"id":"evt_1"}`)
	signature := Sign(secret, body)

	if !VerifySignature(secret, body, signature) {
		t.Fatal("valid signature rejected")
	}
	if VerifySignature(secret, body, signature+"00") {
		t.Fatal("tampered signature accepted")
	}
	if VerifySignature(secret, []byte(`{"id":"evt_2"}`), signature) {
		t.Fatal("signature accepted for different body")
	}
	if VerifySignature("", body, signature) {
		t.Fatal("empty secret accepted")
	}
	if VerifySignature(secret, body, "") {
		t.Fatal("empty signature accepted")
	}
}
