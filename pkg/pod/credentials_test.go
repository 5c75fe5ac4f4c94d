package pod

import "testing"

func TestIssueAndVerifyCredentials(t *testing.T) {
	creds, password, err := IssueCredentials("my-pod")
	if err != nil {
		t.Fatalf("IssueCredentials() error: %v", err)
	}
	if creds.Username != "my-pod" {
		t.Errorf("Username = %q, want my-pod", creds.Username)
	}
	if password == "" {
		t.Fatal("IssueCredentials() returned empty password")
	}
	if creds.PasswordHash == password {
		t.Error("PasswordHash stores the plaintext password, want a bcrypt hash")
	}
	if !VerifyCredentials(creds, password) {
		t.Error("VerifyCredentials() rejected the password it just issued")
	}
	if VerifyCredentials(creds, password+"x") {
		t.Error("VerifyCredentials() accepted a wrong password")
	}
}

func TestVerifyCredentialsNilCredentials(t *testing.T) {
	if VerifyCredentials(nil, "anything") {
		t.Error("VerifyCredentials(nil, ...) = true, want false")
	}
}

func TestIssueCredentialsUniquePasswords(t *testing.T) {
	_, p1, err := IssueCredentials("pod-a")
	if err != nil {
		t.Fatalf("IssueCredentials() error: %v", err)
	}
	_, p2, err := IssueCredentials("pod-b")
	if err != nil {
		t.Fatalf("IssueCredentials() error: %v", err)
	}
	if p1 == p2 {
		t.Error("two IssueCredentials() calls produced the same password")
	}
}
