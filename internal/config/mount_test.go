package config

import "testing"

func TestParseMount(t *testing.T) {
	tests := []struct {
		in       string
		source   string
		target   string
		readOnly bool
		wantErr  bool
	}{
		{"/home/dev/keys:/home/deva/keys:ro", "/home/dev/keys", "/home/deva/keys", true, false},
		{"/data:/data", "/data", "/data", false, false},
		{"/data:/data:rw", "/data", "/data", false, false},
		{"./rel:/data:ro", "./rel", "/data", true, false},
		{"nocolon", "", "", false, true},
		{"/a:/b:badmode", "", "", false, true},
		{"/a:/b:ro:extra", "", "", false, true},
		{":/b", "", "", false, true},
		{"/a:", "", "", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			m, err := ParseMount(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseMount(%q): expected error", tt.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseMount(%q): %v", tt.in, err)
			}
			if m.Source != tt.source || m.Target != tt.target || m.ReadOnly != tt.readOnly {
				t.Errorf("ParseMount(%q) = %+v, want {%s %s %v}", tt.in, m, tt.source, tt.target, tt.readOnly)
			}
		})
	}
}

func TestMountString(t *testing.T) {
	m := &Mount{Source: "/a", Target: "/b", ReadOnly: true}
	if got := m.String(); got != "/a:/b:ro" {
		t.Errorf("String() = %q, want /a:/b:ro", got)
	}

	m = &Mount{Source: "/a", Target: "/b"}
	if got := m.String(); got != "/a:/b:rw" {
		t.Errorf("String() = %q, want /a:/b:rw", got)
	}
	if got := m.Mode(); got != "rw" {
		t.Errorf("Mode() = %q, want rw", got)
	}
}
