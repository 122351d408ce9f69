package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseSeedHosts(t *testing.T) {
	assert.Equal(t, []string{"a:3000", "b:3000"}, parseSeedHosts("a:3000, b:3000"))
	assert.Equal(t, []string{}, parseSeedHosts(""))
}
