package logger

import "testing"

func TestSanitizeKVs_RedactsSecrets(t *testing.T) {
	out := sanitizeKVs([]interface{}{
		"job_id", "01J0000000000000000000000",
		"token", "abc.def.ghi",
		"OpenRouter_API_Key", "sk-123",
		"dangling",
	})
	if len(out) != 7 {
		t.Fatalf("expected 7 entries, got %d", len(out))
	}
	if out[1] != "01J0000000000000000000000" {
		t.Fatalf("job_id should pass through, got %v", out[1])
	}
	if out[3] != "[REDACTED]" || out[5] != "[REDACTED]" {
		t.Fatalf("expected secrets to be redacted, got %v / %v", out[3], out[5])
	}
	if out[6] != "dangling" {
		t.Fatalf("expected dangling key to be kept, got %v", out[6])
	}
}
