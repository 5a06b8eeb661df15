package inspector

import "testing"

func TestParamsValidate(t *testing.T) {
	tests := []struct {
		name    string
		params  Params
		wantErr bool
	}{
		{"valid", Params{RecordID: "001000000000001", SObject: "Account", SFHost: "acme.my.salesforce.com"}, false},
		{"custom object", Params{RecordID: "a01000000000001AAA", SObject: "Invoice__c", SFHost: "x"}, false},
		{"missing host", Params{RecordID: "001000000000001", SObject: "Account"}, true},
		{"short id", Params{RecordID: "001", SObject: "Account", SFHost: "x"}, true},
		{"quoted sobject", Params{RecordID: "001000000000001", SObject: "Account'", SFHost: "x"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.params.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLaunchURLRoundTrip(t *testing.T) {
	p := Params{RecordID: "001000000000001AAA", SObject: "Account", SFHost: "https://acme.lightning.force.com/lightning/page/home", StoreID: "ctx-1"}
	link := LaunchURL("", p)
	got, err := ParseLaunchURL(link)
	if err != nil {
		t.Fatalf("ParseLaunchURL: %v", err)
	}
	if got != p {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, p)
	}
}

func TestParamsOrigin(t *testing.T) {
	tests := map[string]string{
		"acme.my.salesforce.com":                              "https://acme.my.salesforce.com",
		"https://acme.lightning.force.com/lightning/r/x/view": "https://acme.lightning.force.com",
	}
	for host, want := range tests {
		if got := (Params{SFHost: host}).Origin(); got != want {
			t.Errorf("Origin(%q) = %q, want %q", host, got, want)
		}
	}
}

func TestParamsFromRecordPage(t *testing.T) {
	page := "https://acme.lightning.force.com/lightning/r/Contact/003000000000001AAA/view"
	p, err := ParamsFromRecordPage(page)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.SObject != "Contact" || p.RecordID != "003000000000001AAA" || p.SFHost != page {
		t.Errorf("unexpected params %+v", p)
	}
	if _, err := ParamsFromRecordPage("https://acme.lightning.force.com/lightning/page/home"); err == nil {
		t.Error("expected error for non-record page")
	}
}
