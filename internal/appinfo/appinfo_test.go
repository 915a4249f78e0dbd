package appinfo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnvironment(t *testing.T) {
	cases := map[string]string{
		"":           "development",
		"PROD":       "production",
		" staging ":  "staging",
		"testing":    "test",
		"qa-cluster": "qa-cluster",
	}
	for in, want := range cases {
		t.Setenv("GO_ENV", in)
		assert.Equal(t, want, Environment(), "GO_ENV=%q", in)
	}
}

func TestVersionFromEnv(t *testing.T) {
	t.Setenv("APP_VERSION", "1.4.2")
	assert.Equal(t, "1.4.2", Version())

	info := Get()
	assert.Equal(t, "1.4.2", info.Version)
	assert.Equal(t, "wannagonna-rewards", info.Name)
	assert.NotEmpty(t, info.GoVersion)
}
