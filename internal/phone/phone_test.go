package phone

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"full with trunk", "5215512345678", "+5215512345678"},
		{"full with trunk and symbols", "+521 55 1234 5678", "+5215512345678"},
		{"country without trunk", "525512345678", "+52 1 5512345678"},
		{"local ten digits", "5512345678", "+52 1 5512345678"},
		{"trunk without country", "15512345678", "+52 15512345678"},
		{"hyphenated local", "55-1234-5678", "+52 1 5512345678"},
		{"unrecognized keeps plus", "+4915112345678", "+4915112345678"},
		{"unrecognized gains plus", "4915112345678", "+4915112345678"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestNormalizeRecognizedShapes(t *testing.T) {
	// All four recognized shapes end up with +52 1 and the subscriber
	// digits untouched, in order.
	inputs := []string{"5215512345678", "525512345678", "5512345678", "15512345678"}
	for _, in := range inputs {
		key := CompareKey(in)
		assert.Equal(t, "+5215512345678", key, "input %q", in)
	}
}

func TestCompareKeyIdempotent(t *testing.T) {
	inputs := []string{
		"5215512345678", "525512345678", "5512345678", "15512345678",
		"+52 1 5512345678", "55-1234-5678", "+49 151 1234 5678", "garbage42",
	}
	for _, in := range inputs {
		assert.Equal(t, CompareKey(in), CompareKey(Normalize(in)), "input %q", in)
	}
}

func TestStripPlus(t *testing.T) {
	assert.Equal(t, "5215512345678", StripPlus("+52 1 55-1234-5678"))
}

func TestHasCountryCode(t *testing.T) {
	codes := []string{"91", "92", "880"}
	assert.True(t, HasCountryCode("919812345678", codes))
	assert.True(t, HasCountryCode("+880 1712 345678", codes))
	assert.False(t, HasCountryCode("5215512345678", codes))
	assert.False(t, HasCountryCode("", codes))
}
