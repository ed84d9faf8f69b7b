package server

import (
	"path/filepath"
	"testing"
)

func TestParseAdminInterface(t *testing.T) {
	tests := []struct {
		input   string
		want    AdminInterface
		wantErr bool
	}{
		{"http", InterfaceHTTP, false},
		{"HTTP", InterfaceHTTP, false},
		{" rest ", InterfaceREST, false},
		{"", InterfaceUnset, false},
		{"jmx", InterfaceUnset, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseAdminInterface(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseAdminInterface(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestDescriptorDefaults(t *testing.T) {
	d := &Descriptor{}

	if d.GetHost() != "localhost" {
		t.Errorf("GetHost() = %q, want localhost", d.GetHost())
	}
	if d.GetAdminPort() != 4848 {
		t.Errorf("GetAdminPort() = %d, want 4848", d.GetAdminPort())
	}
	if d.GetAdminUser() != "admin" {
		t.Errorf("GetAdminUser() = %q, want admin", d.GetAdminUser())
	}
	if d.GetName() != "localhost:4848" {
		t.Errorf("GetName() = %q, want localhost:4848", d.GetName())
	}
	if d.DomainDir() != "" {
		t.Errorf("DomainDir() = %q, want empty without server root", d.DomainDir())
	}
}

func TestDescriptorAdminURL(t *testing.T) {
	d := &Descriptor{Host: "das.example.com", AdminPort: 14848, Secure: true}

	got := d.AdminURL("/__asadmin/version")
	want := "https://das.example.com:14848/__asadmin/version"
	if got != want {
		t.Errorf("AdminURL() = %q, want %q", got, want)
	}
}

func TestDescriptorDomainDir(t *testing.T) {
	d := &Descriptor{ServerRoot: "/opt/glassfish", Domain: "prod"}

	want := filepath.Join("/opt/glassfish", "domains", "prod")
	if d.DomainDir() != want {
		t.Errorf("DomainDir() = %q, want %q", d.DomainDir(), want)
	}

	d.DomainsFolder = "/srv/domains"
	if d.DomainDir() != filepath.Join("/srv/domains", "prod") {
		t.Errorf("DomainDir() = %q, want explicit domains folder", d.DomainDir())
	}
}

func TestParseVersion(t *testing.T) {
	tests := []struct {
		input   string
		want    Version
		wantErr bool
	}{
		{"3", GF3, false},
		{"3.1.2.2", GF3_1_2_2, false},
		{"4.0.0", GF4, false},
		{"4.1.2", GF4_1_2, false},
		{"4.1.2.181", GF4_1_2, false},
		{"v5.1", GF5_1, false},
		{"5.1.0-b03", GF5_1, false},
		{"6.2.5", GF6_2, false},
		{"7.0.14", GF7, false},
		{"2.1", GF2_1, false},
		{"9.1", VersionUnknown, true},
		{"abc", VersionUnknown, true},
		{"", VersionUnknown, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseVersion(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseVersion(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestVersionSupported(t *testing.T) {
	if GF2_1_1.Supported() {
		t.Error("GF 2.1.1 should not be supported")
	}
	if !GF3.Supported() {
		t.Error("GF 3 should be supported")
	}
	if Version(999).Known() {
		t.Error("Version(999) should not be known")
	}
	if GF4_1.Major() != 4 {
		t.Errorf("Major() = %d, want 4", GF4_1.Major())
	}
	if GF3_1_2_2.String() != "3.1.2.2" {
		t.Errorf("String() = %q, want 3.1.2.2", GF3_1_2_2.String())
	}
}

func TestVersionAdminInterface(t *testing.T) {
	tests := []struct {
		v    Version
		want AdminInterface
	}{
		{VersionUnknown, InterfaceUnset},
		{Version(999), InterfaceUnset},
		{GF3, InterfaceHTTP},
		{GF3_1_2_5, InterfaceHTTP},
		{GF4, InterfaceREST},
		{GF7, InterfaceREST},
	}

	for _, tt := range tests {
		if got := tt.v.AdminInterface(); got != tt.want {
			t.Errorf("%v.AdminInterface() = %v, want %v", tt.v, got, tt.want)
		}
	}
}
