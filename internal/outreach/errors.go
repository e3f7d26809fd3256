package outreach

import (
	"errors"

	"github.com/sells-group/outreach-cli/internal/credit"
	"github.com/sells-group/outreach-cli/internal/retrieve"
)

// IsFatal reports whether an error ends the run with nothing delivered.
// Everything else is recoverable: the stage degrades, the failure
// becomes a warning and the run continues with what it has.
func IsFatal(err error) bool {
	return errors.Is(err, retrieve.ErrProviderUnavailable) ||
		errors.Is(err, credit.ErrInsufficientCredit)
}
