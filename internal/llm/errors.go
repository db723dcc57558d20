package llm

import (
	"errors"
	"fmt"
	"strings"

	"github.com/raphaelgruber/diveroast/internal/models"
)

// ErrFatalAPI marks provider failures that retrying cannot fix: bad
// credentials and billing. Rate limits and quota pushback stay transient.
var ErrFatalAPI = errors.New("fatal model API error")

var fatalMarkers = []string{
	"credit balance",
	"billing",
	"invalid api key",
	"api key not valid",
	"authentication",
	"unauthorized",
	"permission denied",
	"401",
	"403",
}

func isFatalAPIError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, m := range fatalMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

func wrapFatalError(err error) error {
	if isFatalAPIError(err) {
		return fmt.Errorf("%w: %w", ErrFatalAPI, err)
	}
	return err
}

// backendError tags a provider failure as ErrModelBackend, keeping the
// fatal classification.
func backendError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", models.ErrModelBackend, op, wrapFatalError(err))
}
