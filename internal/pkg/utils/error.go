package utils

import (
	"errors"

	"github.com/uswegem/miracore/internal/pkg/consts"
	"github.com/uswegem/miracore/internal/pkg/models"
)

// GetErrorCode extracts the internal error code from a CustomError chain.
func GetErrorCode(err error) string {
	var customErr *models.CustomError
	if errors.As(err, &customErr) {
		return customErr.ErrorCode()
	}
	return "MIRACORE_INTERNAL_ERROR"
}

// ProtocolCode maps an error onto the 80xx wire taxonomy.
func ProtocolCode(err error) int {
	var customErr *models.CustomError
	if errors.As(err, &customErr) && customErr.ProtocolCode != 0 {
		return customErr.ProtocolCode
	}
	return consts.CodeInternalError
}
