package warehouse

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractGuestName(t *testing.T) {
	tests := []struct {
		title       string
		description string
		want        string
	}{
		{"Episode 42 with Jane Doe", "", "Jane Doe"},
		{"Scaling ops with Dr. Jane Doe | Ep 12", "", "Dr. Jane Doe"},
		{"Interview With Marcus Aurelius Jones", "", "Marcus Aurelius Jones"},
		{"Flight planning deep dive", "A conversation with Amelia Earhart.", "Amelia Earhart"},
		{"Solo episode: winter ops", "Just the host this week.", ""},
		{"Coping with turbulence", "", ""},
		{"", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.title+"/"+tt.description, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractGuestName(tt.title, tt.description))
		})
	}
}
