package filestore

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/qrave1/VanishRoom/internal/domain/apperr"
)

func TestObjectKey(t *testing.T) {
	tests := []struct {
		name     string
		fileName string
		suffix   string
	}{
		{name: "plain", fileName: "photo.png", suffix: "-photo.png"},
		{name: "traversal", fileName: "../../etc/passwd", suffix: "-passwd"},
		{name: "windows path", fileName: `C:\tmp\doc.pdf`, suffix: "-doc.pdf"},
		{name: "empty", fileName: "", suffix: "-file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := ObjectKey("123456", tt.fileName)

			assert.True(t, strings.HasPrefix(key, "rooms/123456/"), key)
			assert.True(t, strings.HasSuffix(key, tt.suffix), key)
			assert.NotContains(t, strings.TrimPrefix(key, "rooms/123456/"), "/")
		})
	}
}

func TestNoopStore(t *testing.T) {
	s := NewNoopStore()

	_, err := s.PresignUpload(context.Background(), "123456", "a.png")
	assert.ErrorIs(t, err, apperr.ErrUnavailable)

	n, err := s.DeleteRoom(context.Background(), "123456")
	assert.NoError(t, err)
	assert.Zero(t, n)
}
