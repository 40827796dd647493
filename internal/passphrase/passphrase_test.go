package passphrase

import "testing"

func TestHashAndVerify(t *testing.T) {
	t.Parallel()

	hash, err := Hash("correct horse battery staple")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}

	match, err := Verify("correct horse battery staple", hash)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if !match {
		t.Error("Verify() = false, want true for correct passphrase")
	}

	match, err = Verify("wrong passphrase", hash)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if match {
		t.Error("Verify() = true, want false for incorrect passphrase")
	}
}
