package bargein

import "testing"

func TestIsEcho(t *testing.T) {
	agent := "Our office hours are nine to five, Monday through Friday."

	tests := []struct {
		name       string
		transcript string
		echo       bool
	}{
		{"exact echo", "our office hours are nine to five monday through friday", true},
		{"partial echo substring", "office hours are nine to five", true},
		{"echo with punctuation and case", "Office Hours, are NINE to five!", true},
		{"high word overlap", "our office hours nine five monday friday are to", true},
		{"genuine interruption", "can you send a technician tomorrow morning", false},
		{"short genuine reply", "yes please", false},
		{"empty transcript is noise", "", true},
		{"whitespace transcript is noise", "   ", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsEcho(tt.transcript, agent, DefaultEchoSimilarity); got != tt.echo {
				t.Errorf("Expected IsEcho(%q) = %v, got %v", tt.transcript, tt.echo, got)
			}
		})
	}
}

func TestIsEchoWithEmptyAgentText(t *testing.T) {
	if IsEcho("hello there", "", DefaultEchoSimilarity) {
		t.Error("Expected transcript with no agent text to not be echo")
	}
}

func TestIsEchoZeroThresholdUsesDefault(t *testing.T) {
	// Moderate overlap below the default threshold should pass through.
	if IsEcho("what are your prices for office visits", "our office hours are nine to five", 0) {
		t.Error("Expected low-overlap transcript to not be echo")
	}
}

func TestJaccard(t *testing.T) {
	a := []string{"a", "b", "c", "d"}
	b := []string{"c", "d", "e", "f"}
	if got := jaccard(a, b); got != 2.0/6.0 {
		t.Errorf("Expected 1/3, got %f", got)
	}
	if got := jaccard(nil, nil); got != 0 {
		t.Errorf("Expected 0 for empty sets, got %f", got)
	}
}
