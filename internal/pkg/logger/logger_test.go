package logger

import (
	"os"
	"path/filepath"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/hashtag_server/config"
)

func TestNew(t *testing.T) {
	t.Run("console only", func(t *testing.T) {
		log, err := New(config.LogConfig{Level: "debug"}, "debug")
		require.NoError(t, err)
		log.Debug("hello")
	})

	t.Run("with rotating file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "app.log")
		log, err := New(config.LogConfig{Level: "info", File: path, MaxSizeMB: 1}, "release")
		require.NoError(t, err)

		log.Info("written to file")
		_ = log.Sync()

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), "written to file")
	})

	t.Run("bad level", func(t *testing.T) {
		_, err := New(config.LogConfig{Level: "loud"}, "debug")
		assert.Error(t, err)
	})
}

func TestMaskEmail(t *testing.T) {
	assert.Equal(t, "joh***@example.com", MaskEmail("john.doe@example.com"))
	assert.Equal(t, "a***@x.com", MaskEmail("a@x.com"))
	assert.Equal(t, "***", MaskEmail("nobody"))
	assert.Equal(t, "", MaskEmail(""))

	// 按字符截断，不拆分多字节字符
	masked := MaskEmail("张三丰李@example.com")
	assert.Equal(t, "张三丰***@example.com", masked)
	assert.True(t, utf8.ValidString(masked))
	assert.Equal(t, "é***@x.com", MaskEmail("é@x.com"))
}
