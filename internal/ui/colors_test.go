package ui

import (
	"testing"

	"github.com/law-makers/marketwatch/pkg/models"
	"github.com/stretchr/testify/assert"
)

func TestPageType(t *testing.T) {
	assert.Equal(t, ColorGreen+"CONTENT"+ColorReset, PageType(models.PageContent))
	assert.Equal(t, ColorYellow+"NO_RESULTS"+ColorReset, PageType(models.PageNoResults))
	assert.Equal(t, ColorRed+"BLOCKED"+ColorReset, PageType(models.PageBlocked))
}
