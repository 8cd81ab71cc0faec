package scraper

import (
	"testing"

	"github.com/lgfreitas/eproc-monitor/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeSecret(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"clean secret", "JBSWY3DPEHPK3PXP", "JBSWY3DPEHPK3PXP"},
		{"lowercase", "jbswy3dpehpk3pxp", "JBSWY3DPEHPK3PXP"},
		{"spaces and dashes", "JBSW Y3DP-EHPK 3PXP", "JBSWY3DPEHPK3PXP"},
		{"invalid digits dropped", "JBSW01Y3DP89", "JBSWY3DP"},
		{"padding stripped", "JBSWY3DP====", "JBSWY3DP"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sanitizeSecret(tt.input))
		})
	}
}

func TestGenerateCode(t *testing.T) {
	a := NewAuthenticator(&config.Config{TOTPSecret: "jbsw y3dp-ehpk 3pxp"}, testLogger(t))

	code, err := a.generateCode()
	require.NoError(t, err)
	require.Len(t, code, 6)
	for _, r := range code {
		assert.True(t, r >= '0' && r <= '9', "code must be numeric, got %q", code)
	}
}

func TestGenerateCodeEmptySecret(t *testing.T) {
	a := NewAuthenticator(&config.Config{TOTPSecret: "0189"}, testLogger(t))

	_, err := a.generateCode()
	assert.Error(t, err)
}

func TestLooksLikeLogin(t *testing.T) {
	loginURL := "https://eproc.trf4.jus.br/eproc/index.php"
	idpHost := "sso.cloud.pje.jus.br"

	tests := []struct {
		name string
		url  string
		want bool
	}{
		{"login page itself", loginURL, true},
		{"idp host", "https://sso.cloud.pje.jus.br/auth/realms/pje/login", true},
		{"panel after login", "https://eproc.trf4.jus.br/eproc/controlador.php?acao=painel_advogado", false},
		{"unrelated site", "https://example.com/index.php", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, looksLikeLogin(tt.url, loginURL, idpHost))
		})
	}
}
