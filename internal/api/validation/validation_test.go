package validation_test

import (
	"strings"
	"testing"

	"github.com/gearguard/gearguard/internal/api/validation"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestIsValidEmail(t *testing.T) {
	valid := []string{
		"user@example.com",
		"first.last+tag@sub.example.co",
		"tech_42@plant-one.io",
	}
	for _, email := range valid {
		assert.True(t, validation.IsValidEmail(email), email)
	}

	invalid := []string{
		"",
		"no-at-sign",
		"@example.com",
		"user@",
		"user@example",
		strings.Repeat("a", 250) + "@example.com",
	}
	for _, email := range invalid {
		assert.False(t, validation.IsValidEmail(email), email)
	}
}

func TestIsValidUUID(t *testing.T) {
	assert.True(t, validation.IsValidUUID(uuid.New().String()))
	assert.False(t, validation.IsValidUUID("not-a-uuid"))
	assert.False(t, validation.IsValidUUID(""))
	assert.False(t, validation.IsValidUUID(uuid.New().String()+"x"))
}

func TestParseDate(t *testing.T) {
	t.Run("ISO date", func(t *testing.T) {
		parsed, ok := validation.ParseDate("2026-09-15")
		assert.True(t, ok)
		assert.Equal(t, "2026-09-15", parsed.Format("2006-01-02"))
	})

	t.Run("RFC3339 timestamp", func(t *testing.T) {
		parsed, ok := validation.ParseDate("2026-09-15T08:30:00Z")
		assert.True(t, ok)
		assert.Equal(t, 8, parsed.Hour())
	})

	t.Run("rejects other formats", func(t *testing.T) {
		for _, value := range []string{"", "15/09/2026", "September 15", "2026-13-40"} {
			_, ok := validation.ParseDate(value)
			assert.False(t, ok, value)
		}
	})
}

func TestMaxLen(t *testing.T) {
	assert.True(t, validation.MaxLen("short", 10))
	assert.True(t, validation.MaxLen("", 0))
	assert.False(t, validation.MaxLen("too long", 3))
	// Rune count, not byte count.
	assert.True(t, validation.MaxLen("ünïcödé", 7))
}
