package token

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeywordsLookup(t *testing.T) {
	tests := []struct {
		lexeme string
		want   Kind
	}{
		{"and", AND},
		{"class", CLASS},
		{"else", ELSE},
		{"false", FALSE},
		{"fun", FUN},
		{"for", FOR},
		{"if", IF},
		{"nil", NIL},
		{"or", OR},
		{"print", PRINT},
		{"return", RETURN},
		{"super", SUPER},
		{"this", THIS},
		{"true", TRUE},
		{"var", VAR},
		{"while", WHILE},
	}

	for _, tt := range tests {
		t.Run(tt.lexeme, func(t *testing.T) {
			got, ok := Keywords[tt.lexeme]
			assert.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestKeywordsDoesNotMatchIdentifiers(t *testing.T) {
	_, ok := Keywords["myVar"]
	assert.False(t, ok)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "IDENTIFIER", IDENTIFIER.String())
	assert.Equal(t, "EOF", EOF.String())
}

func TestTokenString(t *testing.T) {
	tok := Token{Kind: NUMBER, Lexeme: "42", Line: 3}
	assert.Contains(t, tok.String(), "42")
	assert.Contains(t, tok.String(), "NUMBER")
}
