package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Pablo Picasso", "pablo picasso"},
		{"Picasso, Pablo", "pablo picasso"},
		{"Cézanne, Paul", "paul cezanne"},
		{"Enoch Wood & Sons", "enoch wood sons"},
		{"She-we-na (Zuni Pueblo)", "she we na"},
		{"Utagawa Kunisada (Toyokuni III)", "utagawa kunisada"},
		{"S. Van Campen & Company", "van campen company"},
		{"Charles T. Grosjean", "charles grosjean"},
		{"Augustus (Auguste Emmanuel) Eliaers", "augustus eliaers"},
		{"George W. Shiebler & Co.", "george shiebler co"},
		{"Nicolás Enríquez", "nicolas enriquez"},
		{"Pietro  di Giovanni d'Ambrogio", "pietro di giovanni d ambrogio"},
		{"J.M.W. Turner", "turner"},
		{"Tiffany & Co, Inc.", "tiffany co inc"},
		{"Professor Pablo Picasso", "pablo picasso"},
		{"Sir Joshua Reynolds", "joshua reynolds"},
		{"Reynolds, Sir Joshua", "joshua reynolds"},
		{"Dr. Prof. Ada Lovelace", "ada lovelace"},
		{"Sir", "sir"},
		{"(Unknown)", "unknown"},
		{"   ", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Name(tt.in))
		})
	}
}

func TestNameIsIdempotent(t *testing.T) {
	for _, in := range []string{"Picasso, Pablo", "Charles T. Grosjean", "Nicolás Enríquez"} {
		once := Name(in)
		assert.Equal(t, once, Name(once), in)
	}
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal("Picasso, Pablo", "Pablo Picasso"))
	assert.True(t, Equal("PABLO  PICASSO", "pablo picasso"))
	assert.True(t, Equal("Professor Pablo Picasso", "Picasso, Pablo"))
	assert.False(t, Equal("", ""))
	assert.False(t, Equal("Pablo Picasso", "Paloma Picasso"))
}

func TestTokensAndSlug(t *testing.T) {
	assert.Equal(t, []string{"cezanne", "paul"}, Tokens("Cézanne, Paul"))
	assert.Empty(t, Tokens("  ,, "))
	assert.Equal(t, "cezanne-paul", Slug("Cézanne, Paul"))
}
