package filestore

import (
	"fmt"

	"github.com/qrave1/VanishRoom/internal/domain/apperr"
)

var ErrDisabled = fmt.Errorf("file storage is not configured: %w", apperr.ErrUnavailable)
