package log

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("debug"))
	assert.Equal(t, LevelError, ParseLevel(" ERROR "))
	assert.Equal(t, LevelInfo, ParseLevel("info"))
	assert.Equal(t, LevelInfo, ParseLevel("verbose"))
}

func TestFields(t *testing.T) {
	got := fields("id", "feed", 42, "skipped", "count", 3, "dangling")
	assert.Equal(t, logrus.Fields{"id": "feed", "count": 3}, got)
}

func TestSetLevel(t *testing.T) {
	SetLevel(LevelDebug)
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
	SetLevel(LevelError)
	assert.Equal(t, logrus.ErrorLevel, logger.GetLevel())
	SetLevel(LevelInfo)
	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())
}
