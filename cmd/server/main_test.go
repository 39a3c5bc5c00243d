package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"kasirledger/backend/internal/config"
)

const strongSecret = "0123456789abcdef0123456789abcdef"

func TestValidateSecurityConfigRejectsWeakValues(t *testing.T) {
	base := config.Default()

	short := base
	short.AuthSecret = "short"
	assert.Error(t, validateSecurityConfig(short))

	wildcard := base
	wildcard.AuthSecret = strongSecret
	wildcard.AllowedOrigins = []string{"*"}
	assert.Error(t, validateSecurityConfig(wildcard))

	noOrigins := base
	noOrigins.AuthSecret = strongSecret
	noOrigins.AllowedOrigins = nil
	assert.Error(t, validateSecurityConfig(noOrigins))

	sameCurrency := base
	sameCurrency.AuthSecret = strongSecret
	sameCurrency.LocalCurrency = sameCurrency.ReferenceCurrency
	assert.Error(t, validateSecurityConfig(sameCurrency))
}

func TestValidateSecurityConfigAcceptsStrongValues(t *testing.T) {
	cfg := config.Default()
	cfg.AuthSecret = strongSecret
	assert.NoError(t, validateSecurityConfig(cfg))
}

func TestRootCommandRegistersSubcommands(t *testing.T) {
	root := newRootCmd()
	names := make([]string, 0, 2)
	for _, cmd := range root.Commands() {
		names = append(names, cmd.Name())
	}
	assert.ElementsMatch(t, []string{"serve", "migrate"}, names)
}

func TestMigrateRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("CONFIG_FILE", "")

	root := newRootCmd()
	root.SetArgs([]string{"migrate"})
	err := root.Execute()
	assert.ErrorContains(t, err, "DATABASE_URL")
}
