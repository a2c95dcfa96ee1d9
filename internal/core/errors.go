// errors.go --  This file is part of goPW project.
// Mirzaeva Irina, 2024
//
//	goPW is distributed in the hope that it will be useful,
//	but WITHOUT ANY WARRANTY; without even the implied warranty
//	of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.
//	See the GNU General Public License for more details.
//
//	You should have received a copy of the GNU General Public License
//	along with this program.  If not, see http://www.gnu.org/licenses/
//
// ------------------------------------------------
package core

import (
	"errors"
	"fmt"
)

// Sentinel errors. Use errors.Is to test for the category of a failure.
var (
	ErrValidation       = errors.New("validation error")
	ErrSingularSubspace = errors.New("singular subspace")
	ErrConvergence      = errors.New("scf did not converge")
	ErrUnsupported      = errors.New("unsupported feature")
	ErrMixingSingular   = errors.New("mixing history is singular")
)

// ValidationError reports a malformed input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation error: %s", e.Reason)
	}
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Invalid builds a *ValidationError with a formatted reason.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// UnsupportedFeatureError names a requested feature that is not implemented.
type UnsupportedFeatureError struct {
	Feature string
}

func (e *UnsupportedFeatureError) Error() string {
	return fmt.Sprintf("unsupported feature: %s", e.Feature)
}

func (e *UnsupportedFeatureError) Unwrap() error { return ErrUnsupported }

// Unsupported builds an *UnsupportedFeatureError.
func Unsupported(format string, args ...any) error {
	return &UnsupportedFeatureError{Feature: fmt.Sprintf(format, args...)}
}

// SingularSubspaceError is returned when an overlap matrix keeps too few
// directions above the numerical floor.
type SingularSubspaceError struct {
	Kept, Needed int
	Floor        float64
}

func (e *SingularSubspaceError) Error() string {
	return fmt.Sprintf("singular subspace: %d directions above floor %g, need %d", e.Kept, e.Floor, e.Needed)
}

func (e *SingularSubspaceError) Unwrap() error { return ErrSingularSubspace }

// ConvergenceError is returned in strict mode when the SCF loop exhausts its
// iteration budget.
type ConvergenceError struct {
	Iterations int
	Residual   float64
}

func (e *ConvergenceError) Error() string {
	return fmt.Sprintf("scf did not converge after %d iterations (residual %.3e)", e.Iterations, e.Residual)
}

func (e *ConvergenceError) Unwrap() error { return ErrConvergence }
