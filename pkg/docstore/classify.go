package docstore

import (
	"errors"

	"google.golang.org/grpc/codes"

	pkgerrors "github.com/fieldpath/visittracker/pkg/errors"
)

// Classify maps a raw store failure to an error code. Errors that already
// carry a code pass through unchanged.
func Classify(err error, action string) error {
	if err == nil {
		return nil
	}
	if pkgerrors.As(err) != nil {
		return err
	}
	switch {
	case errors.Is(err, ErrNotFound), pkgerrors.GRPCCode(err) == codes.NotFound:
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, action+": not found")
	case pkgerrors.GRPCCode(err) == codes.PermissionDenied:
		return pkgerrors.Wrap(pkgerrors.CodeForbidden, err, action+": permission denied")
	default:
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, action)
	}
}
