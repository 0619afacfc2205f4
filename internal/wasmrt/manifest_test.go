package wasmrt

import "testing"

func TestManifestValidate(t *testing.T) {
	cases := []struct {
		name    string
		m       Manifest
		wantErr bool
	}{
		{"missing name", Manifest{}, true},
		{"valid bare", Manifest{Name: "echo"}, false},
		{"http with no hosts", Manifest{Name: "t", HTTP: &HTTPCapability{}}, true},
		{"http with hosts", Manifest{Name: "t", HTTP: &HTTPCapability{Hosts: []string{"api.example.com"}}}, false},
		{"tool_invoke empty", Manifest{Name: "t", ToolInvoke: &ToolInvokeCapability{}}, true},
		{"secrets empty", Manifest{Name: "t", Secrets: &SecretsCapability{}}, true},
	}
	for _, c := range cases {
		err := c.m.Validate()
		if (err != nil) != c.wantErr {
			t.Errorf("%s: Validate() err=%v, wantErr=%v", c.name, err, c.wantErr)
		}
	}
}

func TestHTTPCapabilityAllowsHost(t *testing.T) {
	cap := &HTTPCapability{Hosts: []string{"api.example.com", "*.trusted.io"}}
	cases := map[string]bool{
		"api.example.com":     true,
		"API.Example.com":     true,
		"sub.trusted.io":      true,
		"trusted.io":          false,
		"evil.com":            false,
		"sub.api.example.com": false,
	}
	for host, want := range cases {
		if got := cap.allowsHost(host); got != want {
			t.Errorf("allowsHost(%q) = %v, want %v", host, got, want)
		}
	}
}

func TestGrants(t *testing.T) {
	m := &Manifest{
		Name:      "full",
		Workspace: &WorkspaceReadCapability{PathPrefix: "in/"},
		HTTP:      &HTTPCapability{Hosts: []string{"x.com"}},
	}
	grants := m.Grants()
	if len(grants) != 2 {
		t.Fatalf("expected 2 grants, got %d: %v", len(grants), grants)
	}
}

func TestMemoryLimitPages(t *testing.T) {
	cases := []struct {
		bytes int
		want  uint32
	}{
		{0, 1},
		{1, 1},
		{64 * 1024, 1},
		{64*1024 + 1, 2},
		{10 << 20, 160},
	}
	for _, c := range cases {
		if got := memoryLimitPages(c.bytes); got != c.want {
			t.Errorf("memoryLimitPages(%d) = %d, want %d", c.bytes, got, c.want)
		}
	}
}
