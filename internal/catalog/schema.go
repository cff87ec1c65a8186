package catalog

import (
	_ "embed"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/tidwall/jsonc"
)

//go:embed schema.cue
var schemaSource string

var (
	schemaOnce sync.Once
	schemaCtx  *cue.Context
	schemaDef  cue.Value
	schemaErr  error
)

func catalogSchema() (*cue.Context, cue.Value, error) {
	schemaOnce.Do(func() {
		schemaCtx = cuecontext.New()
		v := schemaCtx.CompileString(schemaSource, cue.Filename("schema.cue"))
		if err := v.Err(); err != nil {
			schemaErr = fmt.Errorf("compiling catalog schema: %w", err)
			return
		}
		schemaDef = v.LookupPath(cue.ParsePath("#Catalog"))
		schemaErr = schemaDef.Err()
	})
	return schemaCtx, schemaDef, schemaErr
}

// Validate checks a raw catalog document against the embedded CUE schema.
//
// Load already rejects anything it cannot use; Validate is the stricter,
// opt-in structural check (closed structs, name patterns, digest formats)
// and reports every violation CUE finds rather than the first.
func Validate(src Source) error {
	ctx, def, err := catalogSchema()
	if err != nil {
		return err
	}
	// cue.Context is not safe for concurrent use.
	schemaMu.Lock()
	defer schemaMu.Unlock()

	doc := ctx.CompileBytes(jsonc.ToJSON(src.Data), cue.Filename(src.Name))
	if err := doc.Err(); err != nil {
		return &MalformedError{Source: src.Name, Reason: cueerrors.Details(err, nil)}
	}
	if err := def.Unify(doc).Validate(cue.Concrete(true)); err != nil {
		return &MalformedError{Source: src.Name, Reason: cueerrors.Details(err, nil)}
	}
	return nil
}

var schemaMu sync.Mutex
