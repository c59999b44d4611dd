package cli

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/spf13/cobra"

	"github.com/roach88/mpisim/internal/workload"
)

// FileValidation is the validation outcome for one scenario file.
type FileValidation struct {
	Path  string `json:"path"`
	Name  string `json:"name,omitempty"`
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid bool             `json:"valid"`
	Files []FileValidation `json:"files"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <scenario.yaml>...",
		Short: "Check scenario files without running them",
		Long: `Check scenario files against the scenario schema and the cross-field
rules (rank ranges, buffer references, known operations and diagnostic
codes) without starting a world.

Exit codes:
  0 - every file is valid
  1 - at least one file is invalid
  2 - a file could not be read`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, paths []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	result := ValidationResult{Valid: true, Files: make([]FileValidation, 0, len(paths))}
	var missing error
	for _, path := range paths {
		formatter.VerboseLog("Validating %s", path)
		fv := FileValidation{Path: path, Valid: true}
		s, err := workload.LoadScenario(path)
		if err != nil {
			fv.Valid = false
			fv.Error = err.Error()
			result.Valid = false
			if errors.Is(err, fs.ErrNotExist) && missing == nil {
				missing = err
			}
		} else {
			fv.Name = s.Name
		}
		result.Files = append(result.Files, fv)
	}

	if formatter.JSON() {
		if result.Valid {
			_ = formatter.Success(result)
		} else {
			_ = formatter.Failure(ErrCodeInvalid, "validation failed", result)
		}
	} else {
		for _, fv := range result.Files {
			if fv.Valid {
				fmt.Fprintf(formatter.Writer, "✓ %s (%s)\n", fv.Path, fv.Name)
			} else {
				fmt.Fprintf(formatter.Writer, "✗ %s: %s\n", fv.Path, fv.Error)
			}
		}
	}

	switch {
	case missing != nil:
		return WrapExitError(ExitCommandError, "failed to read scenario", missing)
	case !result.Valid:
		return NewExitError(ExitFailure, "validation failed")
	}
	return nil
}
