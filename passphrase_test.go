package docvault

import (
	"testing"
)

func TestPassphrase(t *testing.T) {
	tests := []struct {
		name string
		p    *Passphrase
		want string
	}{
		{"runes", NewPassphrase([]rune("grüße 🔑")), "grüße 🔑"},
		{"bytes", NewPassphraseBytes([]byte("secret")), "secret"},
		{"string", NewPassphraseString("s3cr3t"), "s3cr3t"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.p.IsEmpty() {
				t.Fatal("passphrase reported empty")
			}
			if got := string(tt.p.Bytes()); got != tt.want {
				t.Errorf("Bytes() = %q, want %q", got, tt.want)
			}

			buf := tt.p.Bytes()
			tt.p.Wipe()
			for i, b := range buf {
				if b != 0 {
					t.Fatalf("byte %d not wiped", i)
				}
			}
			if !tt.p.IsEmpty() || tt.p.Bytes() != nil {
				t.Error("wiped passphrase should be empty")
			}
			tt.p.Wipe()
		})
	}
}

func TestPassphrase_Empty(t *testing.T) {
	var nilPass *Passphrase
	if !nilPass.IsEmpty() || nilPass.Bytes() != nil {
		t.Error("nil passphrase should be empty")
	}
	nilPass.Wipe()

	if !NewPassphrase(nil).IsEmpty() {
		t.Error("passphrase from no runes should be empty")
	}
	if !NewPassphraseString("").IsEmpty() {
		t.Error("passphrase from empty string should be empty")
	}
}
