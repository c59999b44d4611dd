package workload

import (
	_ "embed"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaSource string

var (
	schemaOnce  sync.Once
	schemaMu    sync.Mutex // cue.Context is not safe for concurrent use
	schemaCtx   *cue.Context
	schemaValue cue.Value
	schemaErr   error
)

func scenarioSchema() (*cue.Context, cue.Value, error) {
	schemaOnce.Do(func() {
		schemaCtx = cuecontext.New()
		v := schemaCtx.CompileString(schemaSource, cue.Filename("schema.cue"))
		if err := v.Err(); err != nil {
			schemaErr = fmt.Errorf("compiling scenario schema: %w", err)
			return
		}
		schemaValue = v.LookupPath(cue.ParsePath("#Scenario"))
		if !schemaValue.Exists() {
			schemaErr = fmt.Errorf("scenario schema has no #Scenario definition")
		}
	})
	return schemaCtx, schemaValue, schemaErr
}

// SchemaError lists every schema violation of a scenario document.
type SchemaError struct {
	Details string
}

func (e *SchemaError) Error() string {
	return "scenario does not match schema:\n" + e.Details
}

// CheckSchema validates a YAML scenario document against the embedded CUE
// schema.
func CheckSchema(data []byte) error {
	ctx, schema, err := scenarioSchema()
	if err != nil {
		return err
	}
	schemaMu.Lock()
	defer schemaMu.Unlock()

	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}
	if doc == nil {
		return &SchemaError{Details: "empty document"}
	}

	v := ctx.Encode(doc)
	if err := v.Err(); err != nil {
		return fmt.Errorf("encoding scenario: %w", err)
	}
	if err := schema.Unify(v).Validate(cue.Concrete(true)); err != nil {
		return &SchemaError{Details: cueerrors.Details(err, nil)}
	}
	return nil
}
