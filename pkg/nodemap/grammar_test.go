package nodemap

import "testing"

func TestParseHost(t *testing.T) {
	tests := []struct {
		host    string
		want    HostParts
		wantErr bool
	}{
		{"chem-aws-t1", HostParts{Account: "chem", Cloud: "aws", Type: "t1"}, false},
		{"chem-aws-c5n-xlarge", HostParts{Account: "chem", Cloud: "aws", Type: "c5n-xlarge"}, false},
		{"chem-aws", HostParts{}, true},
		{"chem", HostParts{}, true},
		{"", HostParts{}, true},
		{"-aws-t1", HostParts{}, true},
		{"chem--t1", HostParts{}, true},
		{"chem-aws-", HostParts{}, true},
	}

	for _, tt := range tests {
		got, err := ParseHost(tt.host)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseHost(%q) expected error", tt.host)
			} else if !IsNamingGrammarError(err) {
				t.Errorf("ParseHost(%q) error is not a naming grammar error: %v", tt.host, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseHost(%q) failed: %v", tt.host, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseHost(%q) = %+v, want %+v", tt.host, got, tt.want)
		}
	}
}

func TestComposeHostRoundTrip(t *testing.T) {
	host, err := ComposeHost("chem", "aws", "c5n-xlarge")
	if err != nil {
		t.Fatalf("compose failed: %v", err)
	}
	parts, err := ParseHost(host)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if parts.Account != "chem" || parts.Cloud != "aws" || parts.Type != "c5n-xlarge" {
		t.Errorf("round trip lost components: %+v", parts)
	}
}

func TestComposeHostRejectsHyphenatedAccount(t *testing.T) {
	if _, err := ComposeHost("chem-lab", "aws", "t1"); err == nil {
		t.Fatal("expected error for hyphenated account")
	}
	if _, err := ComposeHost("chem", "aws-east", "t1"); err == nil {
		t.Fatal("expected error for hyphenated cloud")
	}
	if _, err := ComposeHost("chem", "aws", ""); err == nil {
		t.Fatal("expected error for empty type")
	}
}
