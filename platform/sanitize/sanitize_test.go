package sanitize

import "testing"

func TestMessage(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "  Room B for 25 people  ", "Room B for 25 people"},
		{"html", "<p>Hello <b>there</b></p>", "Hello there"},
		{"encoded tag", "&lt;script&gt;alert(1)&lt;/script&gt;ok", "alert(1)ok"},
		{"crlf lines", "Company: Acme AG\r\nStreet: Bahnhofstrasse 1 \r\n", "Company: Acme AG\nStreet: Bahnhofstrasse 1"},
		{"blank runs", "a\n\n\n\nb", "a\n\nb"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Message(tt.in); got != tt.want {
				t.Fatalf("Message(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestTextPtr(t *testing.T) {
	if TextPtr(nil) != nil {
		t.Fatal("nil must stay nil")
	}
	in := " <i>Revised</i> offer "
	if got := TextPtr(&in); *got != "Revised offer" {
		t.Fatalf("unexpected %q", *got)
	}
}
